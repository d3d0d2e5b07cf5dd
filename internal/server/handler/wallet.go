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

// WalletService is what the wallet handler needs.
type WalletService interface {
	Rate(ctx context.Context) (service.ExchangeRate, error)
	Exchange(ctx context.Context, ownerID, from string, amount decimal.Decimal) (domain.OperationResult, error)
	Withdraw(ctx context.Context, ownerID string, amount decimal.Decimal, card, name string) (domain.OperationResult, error)
}

// WalletHandler serves exchange and withdraw.
type WalletHandler struct {
	wallet WalletService
	logger *slog.Logger
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(wallet WalletService, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{wallet: wallet, logger: logger}
}

// Rate returns the current exchange rate.
// GET /api/exchange/rate
func (h *WalletHandler) Rate(w http.ResponseWriter, r *http.Request) {
	rate, err := h.wallet.Rate(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "exchange rate", err)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}

type exchangeRequest struct {
	From   string          `json:"from"`
	Amount decimal.Decimal `json:"amount"`
}

// Exchange converts between the cash and crypto balances.
// POST /api/exchange
func (h *WalletHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.wallet.Exchange(r.Context(), session.OwnerID(r.Context()), req.From, req.Amount)
	if err != nil {
		writeServiceError(w, r, h.logger, "exchange", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type withdrawRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	CardNumber string          `json:"card_number"`
	Name       string          `json:"name"`
}

// Withdraw requests a cash withdrawal to a card.
// POST /api/withdraw
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.wallet.Withdraw(r.Context(), session.OwnerID(r.Context()), req.Amount, req.CardNumber, req.Name)
	if err != nil {
		writeServiceError(w, r, h.logger, "withdraw", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
