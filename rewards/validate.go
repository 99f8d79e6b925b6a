package rewards

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxAmount is the largest accepted transaction amount. It keeps a single
// transaction's points, and any realistic monthly sum, inside int.
var MaxAmount = decimal.NewFromInt(1_000_000_000)

// Validator checks request inputs before any scoring or store write happens.
// It is fail-fast: the first violation found is returned.
type Validator struct {
	// Now returns the current time. Dates after Now's calendar day are
	// in the future.
	Now func() time.Time

	// Location decides which calendar day Now falls on. Nil means UTC.
	Location *time.Location
}

// NewValidator returns a Validator using the wall clock.
func NewValidator() *Validator {
	return &Validator{Now: time.Now}
}

func (v *Validator) today() time.Time {
	now := time.Now
	if v != nil && v.Now != nil {
		now = v.Now
	}
	loc := time.UTC
	if v != nil && v.Location != nil {
		loc = v.Location
	}
	return Day(now().In(loc))
}

// ValidateCustomer checks identity, name and every transaction.
func (v *Validator) ValidateCustomer(c *Customer) error {
	if c == nil {
		return fieldError(ErrMissingField, "customer", "customer request body cannot be null")
	}
	if c.ID == 0 {
		return fieldError(ErrMissingField, "customerId", "customer ID cannot be null")
	}
	if strings.TrimSpace(c.Name) == "" {
		return fieldError(ErrMissingField, "customerName", "customer name cannot be empty")
	}
	if len(c.Transactions) == 0 {
		return fieldError(ErrEmptyCollection, "transactions", "customer transactions must be provided")
	}
	for i, tx := range c.Transactions {
		if err := v.validateTransaction(tx, fmt.Sprintf("transactions[%d].", i)); err != nil {
			return err
		}
	}
	return nil
}

// ValidateTransaction checks a single transaction.
func (v *Validator) ValidateTransaction(tx Transaction) error {
	return v.validateTransaction(tx, "")
}

func (v *Validator) validateTransaction(tx Transaction, prefix string) error {
	if tx.ID == 0 {
		return fieldError(ErrMissingField, prefix+"transactionId", "transaction ID must be present")
	}
	if tx.Date.IsZero() {
		return fieldError(ErrMissingField, prefix+"transactionDate", "transaction date is required")
	}
	if Day(tx.Date).After(v.today()) {
		return fieldError(ErrFutureDate, prefix+"transactionDate",
			"transaction date %s cannot be in the future", tx.Date.Format(DateLayout))
	}
	if !tx.Amount.IsPositive() {
		return fieldError(ErrNonPositiveAmount, prefix+"amount",
			"transaction amount must be greater than zero, got %s", tx.Amount.String())
	}
	if tx.Amount.GreaterThan(MaxAmount) {
		return fieldError(ErrAmountTooLarge, prefix+"amount",
			"transaction amount must not exceed %s, got %s", MaxAmount.String(), tx.Amount.String())
	}
	return nil
}

// ValidateRange checks a resolved window: start not after end, and neither
// bound after today.
func (v *Validator) ValidateRange(w Window) error {
	today := v.today()
	if w.Start.After(w.End) {
		return fieldError(ErrInvalidRange, "start", "start date %s cannot be after end date %s",
			w.Start.Format(DateLayout), w.End.Format(DateLayout))
	}
	if w.End.After(today) {
		return fieldError(ErrInvalidRange, "end", "end date %s cannot be in the future", w.End.Format(DateLayout))
	}
	if w.Start.After(today) {
		return fieldError(ErrInvalidRange, "start", "start date %s cannot be in the future", w.Start.Format(DateLayout))
	}
	return nil
}
