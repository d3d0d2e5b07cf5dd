package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/optiondesk/internal/domain"
)

// SettlementConfig tunes the settlement sweep.
type SettlementConfig struct {
	Interval    time.Duration
	Concurrency int
	// MaxQuoteAge treats older cached quotes as absent. Zero accepts any age.
	MaxQuoteAge time.Duration
}

// SweepReport counts what one sweep did.
type SweepReport struct {
	Owners         int `json:"owners"`
	Checked        int `json:"checked"`
	Ticks          int `json:"ticks"`
	Won            int `json:"won"`
	Lost           int `json:"lost"`
	Expired        int `json:"expired"`
	Conflicts      int `json:"conflicts"`
	CreditFailures int `json:"credit_failures"`
	Errors         int `json:"errors"`
}

// Settled is the number of contracts this sweep moved to a terminal state.
func (r SweepReport) Settled() int { return r.Won + r.Lost + r.Expired }

func (r *SweepReport) add(o SweepReport) {
	r.Owners += o.Owners
	r.Checked += o.Checked
	r.Ticks += o.Ticks
	r.Won += o.Won
	r.Lost += o.Lost
	r.Expired += o.Expired
	r.Conflicts += o.Conflicts
	r.CreditFailures += o.CreditFailures
	r.Errors += o.Errors
}

// SettlementEngine tracks prices of active contracts and settles the ones
// that expired. Sweeps may overlap, across goroutines or replicas: the
// ledger's active-status guard lets exactly one of them write the outcome,
// and only that one credits the payout.
type SettlementEngine struct {
	store      domain.OptionStore
	prices     domain.PriceCache
	reconciler *Reconciler
	bus        domain.SignalBus
	audit      domain.AuditStore
	cfg        SettlementConfig
	now        func() time.Time
	logger     *slog.Logger
}

// NewSettlementEngine creates a SettlementEngine.
func NewSettlementEngine(
	store domain.OptionStore,
	prices domain.PriceCache,
	reconciler *Reconciler,
	bus domain.SignalBus,
	audit domain.AuditStore,
	cfg SettlementConfig,
	logger *slog.Logger,
) *SettlementEngine {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &SettlementEngine{
		store:      store,
		prices:     prices,
		reconciler: reconciler,
		bus:        bus,
		audit:      audit,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "settlement")),
	}
}

// SetClock replaces the engine clock.
func (e *SettlementEngine) SetClock(now func() time.Time) { e.now = now }

// Run sweeps all owners immediately and then every interval until ctx ends.
func (e *SettlementEngine) Run(ctx context.Context) error {
	e.logger.InfoContext(ctx, "settlement engine started",
		slog.Duration("interval", e.cfg.Interval),
		slog.Int("concurrency", e.cfg.Concurrency),
	)
	defer e.logger.Info("settlement engine stopped")

	e.runOnce(ctx)
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.runOnce(ctx)
		}
	}
}

func (e *SettlementEngine) runOnce(ctx context.Context) {
	report, err := e.SweepAll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.ErrorContext(ctx, "settlement sweep failed", slog.String("error", err.Error()))
		}
		return
	}
	if report.Settled() > 0 || report.CreditFailures > 0 || report.Errors > 0 {
		e.logger.InfoContext(ctx, "settlement sweep",
			slog.Int("owners", report.Owners),
			slog.Int("won", report.Won),
			slog.Int("lost", report.Lost),
			slog.Int("expired", report.Expired),
			slog.Int("conflicts", report.Conflicts),
			slog.Int("credit_failures", report.CreditFailures),
			slog.Int("errors", report.Errors),
		)
	}
}

// SweepAll sweeps every owner that has active contracts, at most
// cfg.Concurrency at a time. A failing owner is logged and counted; it does
// not stop the others.
func (e *SettlementEngine) SweepAll(ctx context.Context) (SweepReport, error) {
	owners, err := e.store.ListActiveOwners(ctx)
	if err != nil {
		return SweepReport{}, fmt.Errorf("settlement: list owners: %w", err)
	}

	var (
		mu    sync.Mutex
		total SweepReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for _, owner := range owners {
		g.Go(func() error {
			r, err := e.Sweep(gctx, owner)
			if err != nil {
				e.logger.WarnContext(gctx, "owner sweep failed",
					slog.String("owner_id", owner),
					slog.String("error", err.Error()),
				)
				r.Errors++
			}
			mu.Lock()
			total.add(r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return total, nil
}

// Sweep checks one owner's active contracts: every contract with a fresh
// quote gets a price tick, and every expired contract is settled. A won
// contract is credited after its settlement write succeeds.
func (e *SettlementEngine) Sweep(ctx context.Context, ownerID string) (SweepReport, error) {
	report := SweepReport{Owners: 1}

	active, err := e.store.ListActive(ctx, ownerID)
	if err != nil {
		return report, fmt.Errorf("settlement: list active %s: %w", ownerID, err)
	}
	if len(active) == 0 {
		return report, nil
	}

	quotes, err := e.prices.GetQuotes(ctx, instruments(active))
	if err != nil {
		// Without a readable cache every contract would look priceless and
		// expire. Skip the cycle instead.
		return report, &domain.TransientFetchError{Source: "price_cache", Key: ownerID, Err: err}
	}

	now := e.now().UTC()
	for _, c := range active {
		report.Checked++
		price := e.freshPrice(quotes, c.Instrument, now)

		if price != nil {
			if err := e.store.RecordTick(ctx, c.ID, *price, now); err != nil {
				e.logger.WarnContext(ctx, "record tick failed",
					slog.String("contract_id", c.ID),
					slog.String("error", err.Error()),
				)
			} else {
				report.Ticks++
			}
		}

		res, due := Resolve(c, price, now)
		if !due {
			continue
		}

		err := e.store.Settle(ctx, domain.Settlement{
			ContractID: c.ID,
			Status:     res.Status,
			ExitPrice:  res.ExitPrice,
			Payout:     res.Payout,
			ClosedAt:   now,
		})
		switch {
		case err == nil:
		case domain.IsConflict(err):
			report.Conflicts++
			e.logger.DebugContext(ctx, "contract already settled", slog.String("contract_id", c.ID))
			continue
		case errors.Is(err, domain.ErrNotFound):
			report.Conflicts++
			continue
		default:
			report.Errors++
			e.logger.WarnContext(ctx, "settle failed",
				slog.String("contract_id", c.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		switch res.Status {
		case domain.OptionWon:
			report.Won++
			if _, err := e.reconciler.Credit(ctx, c.OwnerID, c.ID, *res.Payout); err != nil {
				report.CreditFailures++
			}
		case domain.OptionLost:
			report.Lost++
		case domain.OptionExpired:
			report.Expired++
		}
		e.announce(ctx, c, res, now)
	}
	return report, nil
}

func (e *SettlementEngine) freshPrice(quotes map[string]domain.Quote, instrument string, now time.Time) *decimal.Decimal {
	q, ok := quotes[instrument]
	if !ok || !q.Price.IsPositive() {
		return nil
	}
	if e.cfg.MaxQuoteAge > 0 && now.Sub(q.Timestamp) > e.cfg.MaxQuoteAge {
		return nil
	}
	p := q.Price
	return &p
}

type settlementEvent struct {
	Event      string              `json:"event"`
	ContractID string              `json:"contract_id"`
	OwnerID    string              `json:"owner_id"`
	Instrument string              `json:"instrument"`
	Direction  domain.Direction    `json:"direction"`
	Status     domain.OptionStatus `json:"status"`
	Stake      string              `json:"stake"`
	EntryPrice string              `json:"entry_price"`
	ExitPrice  *string             `json:"exit_price,omitempty"`
	Payout     *string             `json:"payout,omitempty"`
	ClosedAt   string              `json:"closed_at"`
}

func (e *SettlementEngine) announce(ctx context.Context, c domain.OptionContract, res Resolution, at time.Time) {
	evt := settlementEvent{
		Event:      "option_settled",
		ContractID: c.ID,
		OwnerID:    c.OwnerID,
		Instrument: c.Instrument,
		Direction:  c.Direction,
		Status:     res.Status,
		Stake:      c.Stake.String(),
		EntryPrice: c.EntryPrice.String(),
		ClosedAt:   at.Format(time.RFC3339Nano),
	}
	if res.ExitPrice != nil {
		s := res.ExitPrice.String()
		evt.ExitPrice = &s
	}
	if res.Payout != nil {
		s := res.Payout.String()
		evt.Payout = &s
	}

	payload, _ := json.Marshal(evt)
	if err := e.bus.Publish(ctx, domain.ChannelSettlements, payload); err != nil {
		e.logger.WarnContext(ctx, "publish settlement failed",
			slog.String("contract_id", c.ID),
			slog.String("error", err.Error()),
		)
	}

	detail := map[string]any{
		"contract_id": c.ID,
		"owner_id":    c.OwnerID,
		"instrument":  c.Instrument,
		"status":      string(res.Status),
	}
	if evt.ExitPrice != nil {
		detail["exit_price"] = *evt.ExitPrice
	}
	if evt.Payout != nil {
		detail["payout"] = *evt.Payout
	}
	if err := e.audit.Log(ctx, "option_settled", detail); err != nil {
		e.logger.WarnContext(ctx, "audit settlement failed",
			slog.String("contract_id", c.ID),
			slog.String("error", err.Error()),
		)
	}
}

func instruments(cs []domain.OptionContract) []string {
	seen := make(map[string]struct{}, len(cs))
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		if _, ok := seen[c.Instrument]; ok {
			continue
		}
		seen[c.Instrument] = struct{}{}
		out = append(out, c.Instrument)
	}
	return out
}
