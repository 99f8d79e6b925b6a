/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the rewards domain model from the external API contract:
  - camelCase field names kept compatible with existing clients
  - Dates as "YYYY-MM-DD" strings
  - Amounts decoded into decimal.NullDecimal (number or string), so an
    absent amount is told apart from zero

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Wrappers

VALIDATION:
  Only syntax and presence are checked here (date format, absent amount).
  Every business rule lives in rewards.Validator and runs inside the engine.

SEE ALSO:
  - handlers.go: Uses these types
  - rewards/types.go: Domain model
*/
package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/rewards-engine/rewards"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// TransactionRequest is a transaction in a request body. Points, if sent,
// are ignored and recomputed.
type TransactionRequest struct {
	TransactionID   int64               `json:"transactionId"`
	TransactionDate string              `json:"transactionDate"`
	Amount          decimal.NullDecimal `json:"amount"`
	Points          *int                `json:"points,omitempty"`
}

// CustomerRequest is a customer with its transactions.
type CustomerRequest struct {
	CustomerID   int64                `json:"customerId"`
	CustomerName string               `json:"customerName"`
	Transactions []TransactionRequest `json:"transactions"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// TransactionDTO is a scored transaction.
type TransactionDTO struct {
	TransactionID   int64       `json:"transactionId"`
	TransactionDate string      `json:"transactionDate"`
	Amount          json.Number `json:"amount"`
	Points          int         `json:"points"`
}

// CustomerDTO is a stored customer.
type CustomerDTO struct {
	CustomerID   int64            `json:"customerId"`
	CustomerName string           `json:"customerName"`
	Transactions []TransactionDTO `json:"transactions"`
}

// MonthlyRewardDTO is the point total of one month.
type MonthlyRewardDTO struct {
	Year        int    `json:"year"`
	Month       string `json:"month"`
	MonthNumber int    `json:"monthNumber"`
	Points      int    `json:"points"`
}

// RewardResponseDTO is the result of a reward query.
type RewardResponseDTO struct {
	CustomerName   string             `json:"customerName"`
	CustomerID     int64              `json:"customerId"`
	Start          string             `json:"start"`
	End            string             `json:"end"`
	MonthlyRewards []MonthlyRewardDTO `json:"monthlyRewards"`
	TotalPoints    int                `json:"totalPoints"`
	Transactions   []TransactionDTO   `json:"transactions"`
}

// BulkEntryDTO is one customer's outcome in a bulk request.
type BulkEntryDTO struct {
	CustomerID int64              `json:"customerId"`
	Rewards    *RewardResponseDTO `json:"rewards,omitempty"`
	Error      *ErrorResponse     `json:"error,omitempty"`
}

// BulkRewardResponse wraps per-customer outcomes, in request order.
type BulkRewardResponse struct {
	Customers []BulkEntryDTO `json:"customers"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Timestamp string `json:"timestamp"`
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

// errBadDate marks a request date that is not YYYY-MM-DD.
type errBadDate struct {
	field string
	value string
}

func (e *errBadDate) Error() string {
	return fmt.Sprintf("%s: invalid date %q, expected format: yyyy-MM-dd", e.field, e.value)
}

// parseDate parses an optional date. Empty means absent (zero time).
func parseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(rewards.DateLayout, s)
	if err != nil {
		return time.Time{}, &errBadDate{field: field, value: s}
	}
	return t, nil
}

func (r TransactionRequest) toDomain(field string) (rewards.Transaction, error) {
	date, err := parseDate(field+"transactionDate", r.TransactionDate)
	if err != nil {
		return rewards.Transaction{}, err
	}
	if !r.Amount.Valid {
		return rewards.Transaction{}, &rewards.FieldError{
			Field:   field + "amount",
			Message: "transaction amount is required",
			Kind:    rewards.ErrMissingField,
		}
	}
	return rewards.Transaction{
		ID:     rewards.TransactionID(r.TransactionID),
		Date:   date,
		Amount: r.Amount.Decimal,
	}, nil
}

// toDomain converts the request. prefix is prepended to field names in
// errors, e.g. "customers[3]." inside a bulk request.
func (r CustomerRequest) toDomain(prefix string) (rewards.Customer, error) {
	c := rewards.Customer{
		ID:   rewards.CustomerID(r.CustomerID),
		Name: r.CustomerName,
	}
	if r.Transactions != nil {
		c.Transactions = make([]rewards.Transaction, 0, len(r.Transactions))
	}
	for i, tr := range r.Transactions {
		tx, err := tr.toDomain(fmt.Sprintf("%stransactions[%d].", prefix, i))
		if err != nil {
			return rewards.Customer{}, err
		}
		c.Transactions = append(c.Transactions, tx)
	}
	return c, nil
}

func toTransactionDTOs(txs []rewards.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = TransactionDTO{
			TransactionID:   int64(tx.ID),
			TransactionDate: tx.Date.Format(rewards.DateLayout),
			Amount:          json.Number(tx.Amount.String()),
			Points:          tx.Points,
		}
	}
	return dtos
}

func toCustomerDTO(c rewards.Customer) CustomerDTO {
	return CustomerDTO{
		CustomerID:   int64(c.ID),
		CustomerName: c.Name,
		Transactions: toTransactionDTOs(c.Transactions),
	}
}

func toRewardResponseDTO(resp *rewards.RewardResponse) *RewardResponseDTO {
	monthly := make([]MonthlyRewardDTO, len(resp.MonthlyRewards))
	for i, m := range resp.MonthlyRewards {
		monthly[i] = MonthlyRewardDTO{
			Year:        m.Year,
			Month:       m.Month.String(),
			MonthNumber: int(m.Month),
			Points:      m.Points,
		}
	}
	return &RewardResponseDTO{
		CustomerName:   resp.CustomerName,
		CustomerID:     int64(resp.CustomerID),
		Start:          resp.Window.Start.Format(rewards.DateLayout),
		End:            resp.Window.End.Format(rewards.DateLayout),
		MonthlyRewards: monthly,
		TotalPoints:    resp.TotalPoints,
		Transactions:   toTransactionDTOs(resp.Transactions),
	}
}
