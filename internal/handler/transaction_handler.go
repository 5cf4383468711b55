package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"ledger-service/internal/domain"
	"ledger-service/internal/errors"
	"ledger-service/internal/service"
)

type TransactionHandler struct {
	transactionService *service.TransactionService
}

func NewTransactionHandler(transactionService *service.TransactionService) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
	}
}

// AmountRequest carries the amount as a string so no precision is lost.
type AmountRequest struct {
	Amount *string `json:"amount"`
}

type TransactionResponse struct {
	TransactionID           string `json:"transaction_id"`
	AccountID               int64  `json:"account_id"`
	TransactionType         string `json:"transaction_type"`
	Amount                  string `json:"amount"`
	BalanceAfterTransaction string `json:"balance_after_transaction"`
	Timestamp               string `json:"timestamp"`
}

type ReportResponse struct {
	Account      *AccountResponse      `json:"account,omitempty"`
	Transactions []TransactionResponse `json:"transactions"`
}

func newTransactionResponse(tx *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		TransactionID:           tx.ID.String(),
		AccountID:               tx.AccountID,
		TransactionType:         string(tx.Type),
		Amount:                  tx.Amount.StringFixed(2),
		BalanceAfterTransaction: tx.BalanceAfterTransaction.StringFixed(2),
		Timestamp:               tx.Timestamp.UTC().Format(time.RFC3339),
	}
}

func (h *TransactionHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.transactionService.Deposit)
}

func (h *TransactionHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.transactionService.Withdraw)
}

type mutation func(ctx context.Context, ownerID int64, amount *decimal.Decimal) (*domain.Transaction, error)

func (h *TransactionHandler) mutate(w http.ResponseWriter, r *http.Request, apply mutation) {
	ownerID, appErr := userID(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error()))
		return
	}

	var amount *decimal.Decimal
	if req.Amount != nil && *req.Amount != "" {
		d, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			writeError(w, errors.NewFieldError("amount", errors.InvalidInput, "invalid amount format").WithDetails(err.Error()))
			return
		}
		amount = &d
	}

	transaction, err := apply(r.Context(), ownerID, amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, newTransactionResponse(transaction))
}

// Report lists the user's transactions, optionally filtered by the
// "daterange" query parameter ("YYYY-MM-DD - YYYY-MM-DD").
func (h *TransactionHandler) Report(w http.ResponseWriter, r *http.Request) {
	ownerID, appErr := userID(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	report, err := h.transactionService.ListTransactions(r.Context(), ownerID, r.URL.Query().Get("daterange"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := ReportResponse{
		Account:      newAccountResponse(report.Account),
		Transactions: make([]TransactionResponse, 0, len(report.Transactions)),
	}
	for i := range report.Transactions {
		resp.Transactions = append(resp.Transactions, newTransactionResponse(&report.Transactions[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}
