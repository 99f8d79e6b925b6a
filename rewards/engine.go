/*
engine.go - Reward computation and customer writes

PURPOSE:
  Engine is the single entry point for reward queries and customer writes.
  Every operation validates its inputs first, then scores, filters and
  aggregates. Nothing is written when validation fails.

OPERATIONS:
  Compute:            Rewards for a customer supplied in the request (no store)
  ComputeForCustomer: Rewards for a stored customer
  ComputeBulk:        Compute for many supplied customers, one unit each
  AddCustomer:        Create a customer, scoring its transactions
  AddTransaction:     Append one scored transaction to a stored customer
  GetCustomer:        Read a stored customer

PIPELINE (per customer):
  1. Score a copy of every transaction (Points recomputed from Amount)
  2. Keep those dated inside the window
  3. Group by (year, month) and sum

  The pipeline is plain synchronous code. Concurrency only appears in
  ComputeBulk (bounded fan-out) and in the per-customer write locks.

CONCURRENCY:
  AddCustomer and AddTransaction hold a per-customer lock across
  Exists/Find and Save, so two appends to the same customer cannot lose
  each other's transaction. Different customers never wait on each other
  beyond sharing a lock shard.

SEE ALSO:
  - validate.go: Input checks
  - window.go: Lookback resolution
  - aggregate.go: Monthly grouping
*/
package rewards

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultBulkConcurrency bounds how many customers of a bulk request are
// computed at once.
const DefaultBulkConcurrency = 8

// Engine computes rewards and manages stored customers.
type Engine struct {
	store     Store
	validator *Validator
	window    WindowPolicy
	publisher EventPublisher
	logger    *slog.Logger
	bulkLimit int
	locks     keyLocks
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for "today" and future-date checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.validator.Now = now
		}
	}
}

// WithLocation sets the time zone whose calendar day counts as "today".
// The default is UTC.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.validator.Location = loc
		}
	}
}

// WithWindowPolicy sets how default lookback windows are resolved.
func WithWindowPolicy(p WindowPolicy) Option {
	return func(e *Engine) { e.window = p }
}

// WithPublisher sets where write events go.
func WithPublisher(p EventPublisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithBulkConcurrency bounds ComputeBulk fan-out. Values < 1 are ignored.
func WithBulkConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.bulkLimit = n
		}
	}
}

// NewEngine creates an engine backed by store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		validator: NewValidator(),
		window:    DefaultWindowPolicy,
		publisher: nopPublisher{},
		logger:    slog.Default(),
		bulkLimit: DefaultBulkConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Today returns the engine's current calendar day.
func (e *Engine) Today() time.Time {
	return e.validator.today()
}

// =============================================================================
// REWARD QUERIES
// =============================================================================

// ResolveWindow applies the lookback policy to rng and validates the result.
func (e *Engine) ResolveWindow(rng RangeRequest) (Window, error) {
	w := e.window.Resolve(rng, e.Today())
	if err := e.validator.ValidateRange(w); err != nil {
		return Window{}, err
	}
	return w, nil
}

// Compute returns rewards for a customer supplied by the caller. The store
// is not consulted.
func (e *Engine) Compute(ctx context.Context, customer *Customer, rng RangeRequest) (*RewardResponse, error) {
	if err := e.validator.ValidateCustomer(customer); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCustomer, err)
	}
	w, err := e.ResolveWindow(rng)
	if err != nil {
		return nil, err
	}
	return e.compute(ctx, *customer, w), nil
}

// ComputeForCustomer returns rewards for a stored customer.
func (e *Engine) ComputeForCustomer(ctx context.Context, id CustomerID, rng RangeRequest) (*RewardResponse, error) {
	w, err := e.ResolveWindow(rng)
	if err != nil {
		return nil, err
	}
	customer, err := e.store.Find(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load customer %d: %w", id, err)
	}
	if customer == nil {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return e.compute(ctx, *customer, w), nil
}

// ComputeBulk computes rewards for every customer with one shared window.
// An empty batch is rejected before any work starts. Each customer is an
// independent unit: one failing does not affect the others. Results are in
// input order and returned once every unit has finished.
func (e *Engine) ComputeBulk(ctx context.Context, customers []Customer, rng RangeRequest) ([]BulkResult, error) {
	if len(customers) == 0 {
		return nil, fieldError(ErrEmptyCollection, "customers", "customer list cannot be empty")
	}
	w, err := e.ResolveWindow(rng)
	if err != nil {
		return nil, err
	}

	results := make([]BulkResult, len(customers))
	var g errgroup.Group
	g.SetLimit(e.bulkLimit)
	for i := range customers {
		i := i
		g.Go(func() error {
			c := &customers[i]
			results[i].CustomerID = c.ID
			if err := e.validator.ValidateCustomer(c); err != nil {
				results[i].Err = fmt.Errorf("%w: %w", ErrInvalidCustomer, err)
				return nil
			}
			results[i].Response = e.compute(ctx, *c, w)
			return nil
		})
	}
	// Units never return an error; Wait is only the join.
	_ = g.Wait()

	e.logger.InfoContext(ctx, "computed bulk rewards",
		"customers", len(customers),
		"window", w.String())
	return results, nil
}

func (e *Engine) compute(ctx context.Context, customer Customer, w Window) *RewardResponse {
	scored := make([]Transaction, len(customer.Transactions))
	for i, tx := range customer.Transactions {
		scored[i] = tx.Scored()
		e.logger.DebugContext(ctx, "scored transaction",
			"customer_id", customer.ID,
			"transaction_id", scored[i].ID,
			"amount", scored[i].Amount.String(),
			"points", scored[i].Points)
	}

	filtered := FilterTransactions(scored, w)
	monthly, total := AggregateByMonth(filtered)

	e.logger.InfoContext(ctx, "computed rewards",
		"customer_id", customer.ID,
		"window", w.String(),
		"transactions", len(filtered),
		"months", len(monthly),
		"total_points", total)

	return &RewardResponse{
		CustomerID:     customer.ID,
		CustomerName:   customer.Name,
		Window:         w,
		MonthlyRewards: monthly,
		TotalPoints:    total,
		Transactions:   filtered,
	}
}

// =============================================================================
// CUSTOMER WRITES
// =============================================================================

// AddCustomer validates, scores and stores a new customer.
func (e *Engine) AddCustomer(ctx context.Context, customer Customer) (*Customer, error) {
	if err := e.validator.ValidateCustomer(&customer); err != nil {
		return nil, err
	}

	unlock := e.locks.lock(customer.ID)
	defer unlock()

	exists, err := e.store.Exists(ctx, customer.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check customer %d: %w", customer.ID, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateCustomer, customer.ID)
	}

	record := customer.Clone()
	earned := 0
	for i := range record.Transactions {
		record.Transactions[i] = record.Transactions[i].Scored()
		earned += record.Transactions[i].Points
	}

	saved, err := e.store.Save(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to save customer %d: %w", customer.ID, err)
	}

	e.logger.InfoContext(ctx, "customer created",
		"customer_id", saved.ID,
		"transactions", len(saved.Transactions))
	e.publish(ctx, Event{Type: EventCustomerCreated, CustomerID: saved.ID, Points: earned})
	return saved, nil
}

// AddTransaction appends a scored transaction to a stored customer. The
// transaction goes last; existing order is kept. Transaction IDs are not
// checked for duplicates.
func (e *Engine) AddTransaction(ctx context.Context, id CustomerID, tx Transaction) (*Customer, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	customer, err := e.store.Find(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load customer %d: %w", id, err)
	}
	if customer == nil {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err := e.validator.ValidateTransaction(tx); err != nil {
		return nil, err
	}

	scored := tx.Scored()
	updated := customer.Clone()
	updated.Transactions = append(updated.Transactions, scored)

	saved, err := e.store.Save(ctx, updated)
	if err != nil {
		return nil, fmt.Errorf("failed to save customer %d: %w", id, err)
	}

	e.logger.InfoContext(ctx, "transaction added",
		"customer_id", id,
		"transaction_id", scored.ID,
		"points", scored.Points)
	e.publish(ctx, Event{Type: EventTransactionAdded, CustomerID: id, TransactionID: scored.ID, Points: scored.Points})
	return saved, nil
}

// GetCustomer returns a stored customer.
func (e *Engine) GetCustomer(ctx context.Context, id CustomerID) (*Customer, error) {
	customer, err := e.store.Find(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load customer %d: %w", id, err)
	}
	if customer == nil {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return customer, nil
}

// ListCustomers returns all stored customers.
func (e *Engine) ListCustomers(ctx context.Context) ([]Customer, error) {
	customers, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	return customers, nil
}

func (e *Engine) publish(ctx context.Context, ev Event) {
	ev.OccurredAt = time.Now().UTC()
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.logger.WarnContext(ctx, "failed to publish event",
			"type", string(ev.Type),
			"customer_id", ev.CustomerID,
			"error", err)
	}
}
