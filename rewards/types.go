/*
Package rewards computes loyalty points for customer purchases and rolls
them up by calendar month.

PURPOSE:
  Each purchase earns points from its amount through a tiered rule. A
  reward query picks the purchases inside a lookback window, scores them,
  and sums them per (year, month). The result is a RewardResponse with one
  MonthlyReward per month that earned points, in chronological order.

KEY CONCEPTS IN THIS FILE (types.go):
  - Customer: Owner of an ordered list of transactions
  - Transaction: One purchase (date + amount), with derived Points
  - MonthlyReward: Points earned in one calendar month
  - RewardResponse: Everything a reward query returns

DESIGN PRINCIPLES:
  1. Points are derived: always recomputed from Amount, never trusted from input
  2. Precision: Amounts use decimal.Decimal so tier boundaries are exact
  3. Queries never mutate stored records: the engine scores copies

USAGE:
  engine := rewards.NewEngine(memory.New())
  resp, err := engine.Compute(ctx, customer, rewards.RangeRequest{})
  fmt.Println(resp.TotalPoints)

SEE ALSO:
  - rule.go: The point rule
  - window.go: Lookback window resolution and filtering
  - aggregate.go: Monthly grouping
  - engine.go: Orchestration and store access
*/
package rewards

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CustomerID int64
type TransactionID int64

// =============================================================================
// CUSTOMER & TRANSACTION
// =============================================================================

// Customer owns a sequence of transactions. Insertion order is display order.
type Customer struct {
	ID           CustomerID
	Name         string
	Transactions []Transaction
}

// Clone returns a deep copy so callers can score or append without touching
// the original.
func (c Customer) Clone() Customer {
	out := c
	if c.Transactions != nil {
		out.Transactions = make([]Transaction, len(c.Transactions))
		copy(out.Transactions, c.Transactions)
	}
	return out
}

// Transaction is a single purchase. Date is a calendar day in UTC.
type Transaction struct {
	ID     TransactionID
	Date   time.Time
	Amount decimal.Decimal
	Points int
}

// Scored returns a copy of tx with Points recomputed from Amount.
func (tx Transaction) Scored() Transaction {
	tx.Points = Points(tx.Amount)
	return tx
}

// =============================================================================
// RESULTS - Built fresh per request, never persisted
// =============================================================================

// MonthlyReward is the point total for one calendar month.
type MonthlyReward struct {
	Year   int
	Month  time.Month
	Points int
}

// RewardResponse is the outcome of a reward query for one customer.
type RewardResponse struct {
	CustomerID     CustomerID
	CustomerName   string
	Window         Window
	MonthlyRewards []MonthlyReward
	TotalPoints    int
	Transactions   []Transaction // filtered and scored, in input order
}

// BulkResult pairs one customer of a bulk request with its outcome.
// Exactly one of Response and Err is set.
type BulkResult struct {
	CustomerID CustomerID
	Response   *RewardResponse
	Err        error
}
