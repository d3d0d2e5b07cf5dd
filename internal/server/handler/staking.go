package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/optiondesk/internal/service"
	"github.com/alanyoungcy/optiondesk/internal/session"
)

// StakingService is what the staking handler needs.
type StakingService interface {
	Terms() service.StakingTerms
	Stake(ctx context.Context, ownerID string, amount decimal.Decimal, days int) (service.StakeView, error)
	List(ctx context.Context, ownerID string) ([]service.StakeView, error)
	Unstake(ctx context.Context, ownerID, id string) (service.StakeView, error)
}

// StakingHandler serves fixed-period staking.
type StakingHandler struct {
	staking StakingService
	logger  *slog.Logger
}

// NewStakingHandler creates a StakingHandler.
func NewStakingHandler(staking StakingService, logger *slog.Logger) *StakingHandler {
	return &StakingHandler{staking: staking, logger: logger}
}

// Terms returns the staking plans.
// GET /api/staking
func (h *StakingHandler) Terms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.staking.Terms())
}

type stakeRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	PeriodDays int             `json:"period_days"`
}

// Stake opens a stake.
// POST /api/stakes
func (h *StakingHandler) Stake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := h.staking.Stake(r.Context(), session.OwnerID(r.Context()), req.Amount, req.PeriodDays)
	if err != nil {
		writeServiceError(w, r, h.logger, "stake", err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

type stakesResponse struct {
	Stakes []service.StakeView `json:"stakes"`
}

// List returns the caller's stakes, newest first.
// GET /api/stakes
func (h *StakingHandler) List(w http.ResponseWriter, r *http.Request) {
	vs, err := h.staking.List(r.Context(), session.OwnerID(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, "list stakes", err)
		return
	}
	if vs == nil {
		vs = []service.StakeView{}
	}
	writeJSON(w, http.StatusOK, stakesResponse{Stakes: vs})
}

// Unstake withdraws a matured stake with its reward.
// POST /api/stakes/{id}/unstake
func (h *StakingHandler) Unstake(w http.ResponseWriter, r *http.Request) {
	v, err := h.staking.Unstake(r.Context(), session.OwnerID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "unstake", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
