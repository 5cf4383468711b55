// Package validation checks proposed deposit and withdrawal amounts against the
// configured limits and the current account state. Nothing here touches storage.
package validation

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ledger-service/internal/domain"
	"ledger-service/internal/errors"
)

const (
	amountField    = "amount"
	dateRangeField = "daterange"
	rangeSeparator = " - "

	// Money columns are NUMERIC(14,2).
	amountScale = 2
)

var (
	DefaultMinimumDeposit    = decimal.RequireFromString("10.00")
	DefaultMinimumWithdrawal = decimal.RequireFromString("1.00")

	maxAmount = decimal.RequireFromString("999999999999.99")
)

// Limits are the configurable amount bounds.
type Limits struct {
	MinimumDeposit    decimal.Decimal
	MinimumWithdrawal decimal.Decimal
}

func DefaultLimits() Limits {
	return Limits{
		MinimumDeposit:    DefaultMinimumDeposit,
		MinimumWithdrawal: DefaultMinimumWithdrawal,
	}
}

type Validator struct {
	limits Limits
}

func NewValidator(limits Limits) *Validator {
	return &Validator{limits: limits}
}

func (v *Validator) Limits() Limits {
	return v.limits
}

// ValidateDeposit returns the amount when it may be deposited. The non-positive
// check only fires when the configured minimum is zero or below.
func (v *Validator) ValidateDeposit(amount *decimal.Decimal) (decimal.Decimal, error) {
	if amount == nil {
		return decimal.Zero, errors.NewFieldError(amountField, errors.MissingAmount, "Amount is required.")
	}
	if amount.LessThan(v.limits.MinimumDeposit) {
		return decimal.Zero, errors.NewFieldError(amountField, errors.BelowMinimum,
			"You need to deposit at least %s $", v.limits.MinimumDeposit.StringFixed(2))
	}
	if !amount.IsPositive() {
		return decimal.Zero, errors.NewFieldError(amountField, errors.NonPositive, "Amount must be positive.")
	}
	if err := checkPrecision(*amount); err != nil {
		return decimal.Zero, err
	}
	return *amount, nil
}

// ValidateWithdrawal runs the withdrawal checks in a fixed order and stops at the
// first failure: no account, missing amount, non-positive, below minimum, above the
// account type maximum, more than two decimal places or too large to store, above
// the balance.
func (v *Validator) ValidateWithdrawal(amount *decimal.Decimal, account *domain.Account) (decimal.Decimal, error) {
	if account == nil {
		return decimal.Zero, errors.NewFieldError(amountField, errors.NoAccount,
			"You do not have a bank account. Please create one before withdrawing.")
	}
	if amount == nil {
		return decimal.Zero, errors.NewFieldError(amountField, errors.MissingAmount, "Amount is required.")
	}
	if !amount.IsPositive() {
		return decimal.Zero, errors.NewFieldError(amountField, errors.NonPositive, "Amount must be greater than 0.")
	}
	if amount.LessThan(v.limits.MinimumWithdrawal) {
		return decimal.Zero, errors.NewFieldError(amountField, errors.BelowMinimum,
			"You can withdraw at least %s $", v.limits.MinimumWithdrawal.StringFixed(2))
	}
	if account.AccountType != nil && amount.GreaterThan(account.AccountType.MaximumWithdrawalAmount) {
		return decimal.Zero, errors.NewFieldError(amountField, errors.AboveMaximum,
			"You can withdraw at most %s $", account.AccountType.MaximumWithdrawalAmount.StringFixed(2))
	}
	if err := checkPrecision(*amount); err != nil {
		return decimal.Zero, err
	}
	if amount.GreaterThan(account.Balance) {
		return decimal.Zero, errors.NewFieldError(amountField, errors.InsufficientFunds,
			"You have %s $ in your account. You can not withdraw more than your account balance",
			account.Balance.StringFixed(2))
	}
	return *amount, nil
}

func checkPrecision(amount decimal.Decimal) error {
	if amount.Exponent() < -amountScale {
		return errors.NewFieldError(amountField, errors.InvalidAmount,
			"Ensure that there are no more than %d decimal places.", amountScale)
	}
	if amount.Abs().GreaterThan(maxAmount) {
		return errors.NewFieldError(amountField, errors.InvalidAmount,
			"Ensure that the amount is at most %s.", maxAmount.StringFixed(amountScale))
	}
	return nil
}

// ParseDateRange parses "YYYY-MM-DD - YYYY-MM-DD". Blank input means no filter and
// returns a nil range.
func ParseDateRange(text string) (*domain.DateRange, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	parts := strings.Split(text, rangeSeparator)
	if len(parts) != 2 {
		return nil, errors.NewFieldError(dateRangeField, errors.InvalidRange, "Please select a date range.")
	}

	var dates [2]time.Time
	for i, part := range parts {
		d, err := time.Parse(domain.DateLayout, part)
		if err != nil {
			return nil, errors.NewFieldError(dateRangeField, errors.InvalidRange, "Invalid date range").WithDetails(err.Error())
		}
		dates[i] = d
	}

	if dates[0].After(dates[1]) {
		return nil, errors.NewFieldError(dateRangeField, errors.InvalidRange, "Invalid date range").
			WithDetails("start date is after end date")
	}

	return &domain.DateRange{Start: dates[0], End: dates[1]}, nil
}
