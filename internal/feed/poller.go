package feed

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/optiondesk/internal/domain"
)

// ErrSuperseded is returned by Poll when a newer poll started (or the ticker
// set changed) before this one finished. Its results were discarded.
var ErrSuperseded = errors.New("feed: poll superseded")

// QuoteFetcher fetches one quote. *Client satisfies it.
type QuoteFetcher interface {
	FetchQuote(ctx context.Context, ticker string) (domain.Quote, error)
}

// QuoteHandler receives the quotes of one completed poll.
type QuoteHandler func(ctx context.Context, quotes []domain.Quote) error

// Poller fetches quotes for a set of watched tickers on a fixed interval.
// At most one poll is current: starting a poll cancels the one in flight, and
// a superseded poll never reaches the handler.
type Poller struct {
	fetcher    QuoteFetcher
	handler    QuoteHandler
	interval   time.Duration
	quoteAsset string
	logger     *slog.Logger

	mu      sync.Mutex
	tickers []string
	gen     uint64
	cancel  context.CancelFunc

	// writeMu orders handler calls so a newer poll always lands after an
	// older one that passed its generation check.
	writeMu sync.Mutex
}

// NewPoller creates a Poller. quoteAsset is excluded from the watched set.
func NewPoller(fetcher QuoteFetcher, handler QuoteHandler, interval time.Duration, quoteAsset string, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Poller{
		fetcher:    fetcher,
		handler:    handler,
		interval:   interval,
		quoteAsset: strings.ToUpper(quoteAsset),
		logger:     logger.With(slog.String("component", "price_poller")),
	}
}

// Watch replaces the watched ticker set and cancels any in-flight poll.
func (p *Poller) Watch(tickers []string) {
	normalized := p.normalize(tickers)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.tickers = normalized
	p.gen++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Tickers returns a copy of the watched set.
func (p *Poller) Tickers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.tickers...)
}

// Poll fetches every watched ticker concurrently and hands the successful
// quotes to the handler. A failing ticker is logged and omitted. If a newer
// poll starts before this one completes, Poll returns ErrSuperseded and
// discards what it fetched.
func (p *Poller) Poll(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.gen++
	gen := p.gen
	p.cancel = cancel
	tickers := append([]string(nil), p.tickers...)
	p.mu.Unlock()
	defer cancel()

	if len(tickers) == 0 {
		return nil
	}

	results := make([]*domain.Quote, len(tickers))
	g, gctx := errgroup.WithContext(pollCtx)
	for i, ticker := range tickers {
		g.Go(func() error {
			q, err := p.fetcher.FetchQuote(gctx, ticker)
			if err != nil {
				if gctx.Err() == nil {
					p.logger.DebugContext(ctx, "quote fetch failed",
						slog.String("ticker", ticker),
						slog.String("error", err.Error()),
					)
				}
				return nil
			}
			results[i] = &q
			return nil
		})
	}
	_ = g.Wait()

	if pollCtx.Err() != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrSuperseded
	}

	quotes := make([]domain.Quote, 0, len(results))
	for _, q := range results {
		if q != nil {
			quotes = append(quotes, *q)
		}
	}
	if len(quotes) == 0 {
		return nil
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if !p.current(gen) {
		return ErrSuperseded
	}
	return p.handler(ctx, quotes)
}

// Run polls immediately, then on every interval tick. Each tick starts a new
// poll without waiting for the previous one; the new poll cancels it.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "price poller started",
		slog.Duration("interval", p.interval),
		slog.Int("tickers", len(p.Tickers())),
	)
	defer p.logger.Info("price poller stopped")

	var wg sync.WaitGroup
	defer wg.Wait()

	launch := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Poll(ctx)
			if err != nil && !errors.Is(err, ErrSuperseded) && ctx.Err() == nil {
				p.logger.WarnContext(ctx, "quote handler failed", slog.String("error", err.Error()))
			}
		}()
	}

	launch()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			launch()
		}
	}
}

func (p *Poller) current(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return gen == p.gen
}

func (p *Poller) normalize(tickers []string) []string {
	seen := make(map[string]struct{}, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || t == p.quoteAsset {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
