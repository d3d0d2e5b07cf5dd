package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/optiondesk/internal/domain"
	"github.com/alanyoungcy/optiondesk/internal/service"
	"github.com/alanyoungcy/optiondesk/internal/session"
)

// OptionService is what the options handler needs from the gateway.
type OptionService interface {
	Create(ctx context.Context, req service.CreateOptionRequest) (domain.OptionContract, error)
	ListActive(ctx context.Context, ownerID string) ([]service.ActiveContract, error)
	ListHistory(ctx context.Context, ownerID string, limit int) ([]domain.OptionContract, error)
	Get(ctx context.Context, ownerID, id string) (domain.OptionContract, error)
}

// OptionHandler serves binary option endpoints for the session owner.
type OptionHandler struct {
	options OptionService
	logger  *slog.Logger
}

// NewOptionHandler creates an OptionHandler.
func NewOptionHandler(options OptionService, logger *slog.Logger) *OptionHandler {
	return &OptionHandler{options: options, logger: logger}
}

// createOptionRequest accepts amounts as JSON numbers or strings. The contract
// always strikes at the server's cached quote; entry_price, when sent, must be
// within tolerance of it.
type createOptionRequest struct {
	Ticker     string           `json:"ticker"`
	Direction  domain.Direction `json:"direction"`
	Amount     decimal.Decimal  `json:"amount"`
	Duration   int              `json:"duration"`
	EntryPrice decimal.Decimal  `json:"entry_price"`
}

// Create opens a contract.
// POST /api/options
func (h *OptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := h.options.Create(r.Context(), service.CreateOptionRequest{
		OwnerID:         session.OwnerID(r.Context()),
		Instrument:      req.Ticker,
		Direction:       req.Direction,
		Stake:           req.Amount,
		EntryPrice:      req.EntryPrice,
		DurationSeconds: req.Duration,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "create option", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

type activeResponse struct {
	Options []service.ActiveContract `json:"options"`
}

// ListActive returns open contracts with their countdown.
// GET /api/options/active
func (h *OptionHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	cs, err := h.options.ListActive(r.Context(), session.OwnerID(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, "list active options", err)
		return
	}
	if cs == nil {
		cs = []service.ActiveContract{}
	}
	writeJSON(w, http.StatusOK, activeResponse{Options: cs})
}

type historyResponse struct {
	Options []domain.OptionContract `json:"options"`
}

// ListHistory returns settled contracts, newest first.
// GET /api/options/history?limit=20
func (h *OptionHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", domain.DefaultHistoryLimit)
	if limit > 200 {
		limit = 200
	}
	cs, err := h.options.ListHistory(r.Context(), session.OwnerID(r.Context()), limit)
	if err != nil {
		writeServiceError(w, r, h.logger, "list option history", err)
		return
	}
	if cs == nil {
		cs = []domain.OptionContract{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Options: cs})
}

// Get returns one of the caller's contracts.
// GET /api/options/{id}
func (h *OptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.options.Get(r.Context(), session.OwnerID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get option", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
