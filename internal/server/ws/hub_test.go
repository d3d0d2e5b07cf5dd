package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/optiondesk/internal/cache/memory"
	"github.com/alanyoungcy/optiondesk/internal/domain"
	"github.com/alanyoungcy/optiondesk/internal/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// withOwner stands in for the session middleware.
func withOwner(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := r.URL.Query().Get("owner")
		if owner != "" {
			r = r.WithContext(session.WithSession(r.Context(), domain.Session{Token: "t", OwnerID: owner}))
		}
		next(w, r)
	}
}

func dial(t *testing.T, srv *httptest.Server, owner string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?owner=" + owner
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	hello := readEvent(t, conn)
	require.Equal(t, "hello", hello["event"])
	require.Equal(t, owner, hello["owner_id"])
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, typ)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestHubRoutesPrivateEventsToOwner(t *testing.T) {
	bus := memory.NewBus()
	hub := NewHub(bus, testLogger(), Config{Mode: "serve"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(withOwner(hub.HandleWS))
	defer srv.Close()

	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")

	require.NoError(t, bus.Publish(ctx, domain.ChannelBalances, []byte(`{"event":"balance_updated","owner_id":"bob"}`)))
	require.NoError(t, bus.Publish(ctx, domain.ChannelQuotes, []byte(`{"event":"quotes"}`)))

	// alice never sees bob's balance; the quote is the next thing she reads.
	assert.Equal(t, "quotes", readEvent(t, alice)["event"])

	// Channels are forwarded independently, so bob's two events may arrive in
	// either order.
	events := map[string]map[string]any{}
	for range 2 {
		ev := readEvent(t, bob)
		events[ev["event"].(string)] = ev
	}
	require.Contains(t, events, "balance_updated")
	assert.Equal(t, "bob", events["balance_updated"]["owner_id"])
	assert.Contains(t, events, "quotes")
}

func TestHubUnsubscribe(t *testing.T) {
	bus := memory.NewBus()
	hub := NewHub(bus, testLogger(), Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(withOwner(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv, "alice")
	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "unsubscribe", Channels: []string{domain.ChannelQuotes}}))

	// The unsubscribe is applied by the read pump; wait for it.
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for cl := range hub.clients {
			cl.mu.RLock()
			sub := cl.subs[domain.ChannelQuotes]
			cl.mu.RUnlock()
			if sub {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(ctx, domain.ChannelQuotes, []byte(`{"event":"quotes"}`)))
	require.NoError(t, bus.Publish(ctx, domain.ChannelSettlements, []byte(`{"event":"option_settled","owner_id":"alice"}`)))
	assert.Equal(t, "option_settled", readEvent(t, conn)["event"])
}

func TestHandleWSRequiresSession(t *testing.T) {
	hub := NewHub(memory.NewBus(), testLogger(), Config{})
	rec := httptest.NewRecorder()
	hub.HandleWS(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
