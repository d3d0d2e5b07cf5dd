package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/optiondesk/internal/domain"
	"github.com/alanyoungcy/optiondesk/internal/session"
)

// DepositService is what the deposit handler needs.
type DepositService interface {
	CreateInvoice(ctx context.Context, ownerID string, amount decimal.Decimal, currency string) (domain.Invoice, error)
	History(ctx context.Context, ownerID string, limit int) ([]domain.Transaction, error)
}

// DepositHandler serves deposit invoices and the transfer history.
type DepositHandler struct {
	deposits DepositService
	logger   *slog.Logger
}

// NewDepositHandler creates a DepositHandler.
func NewDepositHandler(deposits DepositService, logger *slog.Logger) *DepositHandler {
	return &DepositHandler{deposits: deposits, logger: logger}
}

type depositRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Create records a deposit invoice.
// POST /api/deposits
func (h *DepositHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	inv, err := h.deposits.CreateInvoice(r.Context(), session.OwnerID(r.Context()), req.Amount, req.Currency)
	if err != nil {
		writeServiceError(w, r, h.logger, "create deposit", err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

type transactionsResponse struct {
	Transactions []domain.Transaction `json:"transactions"`
}

// Transactions returns deposits and withdrawals, newest first.
// GET /api/transactions?limit=20
func (h *DepositHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", domain.DefaultHistoryLimit)
	if limit > 200 {
		limit = 200
	}
	txs, err := h.deposits.History(r.Context(), session.OwnerID(r.Context()), limit)
	if err != nil {
		writeServiceError(w, r, h.logger, "list transactions", err)
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	writeJSON(w, http.StatusOK, transactionsResponse{Transactions: txs})
}
