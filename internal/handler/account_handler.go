package handler

import (
	"net/http"

	"ledger-service/internal/domain"
	"ledger-service/internal/service"
)

type AccountHandler struct {
	accountService *service.AccountService
}

func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
	}
}

type AccountResponse struct {
	AccountID          int64  `json:"account_id"`
	AccountNo          int64  `json:"account_no"`
	AccountType        string `json:"account_type,omitempty"`
	Balance            string `json:"balance"`
	InitialDepositDate string `json:"initial_deposit_date,omitempty"`
	InterestStartDate  string `json:"interest_start_date,omitempty"`
}

func newAccountResponse(account *domain.Account) *AccountResponse {
	if account == nil {
		return nil
	}
	resp := &AccountResponse{
		AccountID: account.ID,
		AccountNo: account.AccountNo,
		Balance:   account.Balance.StringFixed(2),
	}
	if account.AccountType != nil {
		resp.AccountType = account.AccountType.Name
	}
	if account.InitialDepositDate != nil {
		resp.InitialDepositDate = account.InitialDepositDate.Format(domain.DateLayout)
	}
	if account.InterestStartDate != nil {
		resp.InterestStartDate = account.InterestStartDate.Format(domain.DateLayout)
	}
	return resp
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	ownerID, appErr := userID(r)
	if appErr != nil {
		writeError(w, appErr)
		return
	}

	account, err := h.accountService.GetAccount(r.Context(), ownerID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newAccountResponse(account))
}
