package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSender struct {
	name string
	err  error
	sent []string
}

func (s *stubSender) Send(_ context.Context, title, message string) error {
	s.sent = append(s.sent, title+"|"+message)
	return s.err
}

func (s *stubSender) Name() string { return s.name }

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestAlertMessageSortsFields(t *testing.T) {
	a := Alert{Fields: map[string]string{"owner": "u1", "amount": "180", "contract": "c1"}}
	assert.Equal(t, "amount: 180\ncontract: c1\nowner: u1", a.Message())
}

func TestNotifierFiltersEvents(t *testing.T) {
	s := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{s}, []string{EventReconciliationFailed, " "}, testLogger())

	require.NoError(t, n.Notify(context.Background(), Alert{Event: EventArchiveCompleted, Title: "archive"}))
	assert.Empty(t, s.sent)

	require.NoError(t, n.Notify(context.Background(), Alert{Event: EventReconciliationFailed, Title: "credit failed"}))
	assert.Len(t, s.sent, 1)
}

func TestNotifierContinuesPastFailures(t *testing.T) {
	bad := &stubSender{name: "bad", err: errors.New("down")}
	good := &stubSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.Notify(context.Background(), Alert{Event: "x", Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Len(t, good.sent, 1)
}

func TestNilNotifierIsNoop(t *testing.T) {
	var n *Notifier
	assert.NoError(t, n.Notify(context.Background(), Alert{Event: "x"}))
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.apiBase = srv.URL
	require.NoError(t, s.Send(context.Background(), "Title", "body"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Title*\nbody", got["text"])
}

func TestDiscordSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad webhook"))
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}
