package rewards_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rewards-engine/rewards"
	"github.com/warp/rewards-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// countingStore records writes so tests can assert nothing was saved.
type countingStore struct {
	rewards.Store
	saves atomic.Int32
}

func (s *countingStore) Save(ctx context.Context, c rewards.Customer) (*rewards.Customer, error) {
	s.saves.Add(1)
	return s.Store.Save(ctx, c)
}

// brokenStore fails every call.
type brokenStore struct{}

var errDiskGone = errors.New("disk gone")

func (brokenStore) Exists(context.Context, rewards.CustomerID) (bool, error) { return false, errDiskGone }
func (brokenStore) Save(context.Context, rewards.Customer) (*rewards.Customer, error) {
	return nil, errDiskGone
}
func (brokenStore) Find(context.Context, rewards.CustomerID) (*rewards.Customer, error) {
	return nil, errDiskGone
}
func (brokenStore) List(context.Context) ([]rewards.Customer, error) { return nil, errDiskGone }

type recordingPublisher struct {
	mu     sync.Mutex
	events []rewards.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev rewards.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func newTestEngine(store rewards.Store, opts ...rewards.Option) *rewards.Engine {
	return rewards.NewEngine(store, append([]rewards.Option{rewards.WithClock(fixedClock)}, opts...)...)
}

func tx(id int64, d time.Time, amount string) rewards.Transaction {
	return rewards.Transaction{ID: rewards.TransactionID(id), Date: d, Amount: decimal.RequireFromString(amount)}
}

// scenarioCustomer buys 120 one month ago, 80 two months ago, 70 four months ago.
func scenarioCustomer() *rewards.Customer {
	return &rewards.Customer{
		ID:   42,
		Name: "Jane",
		Transactions: []rewards.Transaction{
			tx(1, rewards.AddMonths(fixedToday, -1), "120"),
			tx(2, rewards.AddMonths(fixedToday, -2), "80"),
			tx(3, rewards.AddMonths(fixedToday, -4), "70"),
		},
	}
}

// =============================================================================
// COMPUTE
// =============================================================================

func TestCompute_DefaultLookbackScenario(t *testing.T) {
	// GIVEN: The three-purchase customer and no explicit range
	engine := newTestEngine(memory.New())
	ctx := context.Background()

	// WHEN
	resp, err := engine.Compute(ctx, scenarioCustomer(), rewards.RangeRequest{})

	// THEN: The 4-months-ago purchase is out, 90 + 30 = 120 in two buckets
	require.NoError(t, err)
	assert.Equal(t, 120, resp.TotalPoints)
	assert.Equal(t, []rewards.MonthlyReward{
		{Year: 2025, Month: time.April, Points: 30},
		{Year: 2025, Month: time.May, Points: 90},
	}, resp.MonthlyRewards)
	require.Len(t, resp.Transactions, 2)
	assert.Equal(t, rewards.TransactionID(1), resp.Transactions[0].ID)
	assert.Equal(t, 90, resp.Transactions[0].Points)
	assert.Equal(t, rewards.TransactionID(2), resp.Transactions[1].ID)
	assert.Equal(t, 30, resp.Transactions[1].Points)
	assert.Equal(t, "Jane", resp.CustomerName)
	assert.Equal(t, rewards.CustomerID(42), resp.CustomerID)
	assert.Equal(t, date(2025, time.March, 15), resp.Window.Start)
	assert.Equal(t, fixedToday, resp.Window.End)
}

func TestCompute_NothingInWindow(t *testing.T) {
	engine := newTestEngine(memory.New())
	c := scenarioCustomer()

	resp, err := engine.Compute(context.Background(), c, rewards.RangeRequest{
		Start: ptr(date(2024, time.January, 1)),
		End:   ptr(date(2024, time.December, 31)),
	})

	require.NoError(t, err)
	assert.Empty(t, resp.MonthlyRewards)
	assert.Empty(t, resp.Transactions)
	assert.Equal(t, 0, resp.TotalPoints)
}

func TestCompute_InclusiveBoundaries(t *testing.T) {
	// GIVEN: Purchases exactly on start and end, and one a month before start
	engine := newTestEngine(memory.New())
	start, end := date(2025, time.March, 10), date(2025, time.May, 10)
	c := &rewards.Customer{ID: 7, Name: "Bob", Transactions: []rewards.Transaction{
		tx(1, start, "60"),
		tx(2, end, "60"),
		tx(3, rewards.AddMonths(start, -1), "60"),
	}}

	resp, err := engine.Compute(context.Background(), c, rewards.RangeRequest{Start: &start, End: &end})

	require.NoError(t, err)
	require.Len(t, resp.Transactions, 2)
	assert.Equal(t, rewards.TransactionID(1), resp.Transactions[0].ID)
	assert.Equal(t, rewards.TransactionID(2), resp.Transactions[1].ID)
	assert.Equal(t, 20, resp.TotalPoints)
}

func TestCompute_IgnoresSuppliedPoints(t *testing.T) {
	engine := newTestEngine(memory.New())
	c := scenarioCustomer()
	c.Transactions[0].Points = 9999

	resp, err := engine.Compute(context.Background(), c, rewards.RangeRequest{})

	require.NoError(t, err)
	assert.Equal(t, 120, resp.TotalPoints)
	assert.Equal(t, 9999, c.Transactions[0].Points, "caller's payload is not modified")
}

func TestCompute_Idempotent(t *testing.T) {
	engine := newTestEngine(memory.New())
	c := scenarioCustomer()

	first, err := engine.Compute(context.Background(), c, rewards.RangeRequest{})
	require.NoError(t, err)
	second, err := engine.Compute(context.Background(), c, rewards.RangeRequest{})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCompute_InvalidCustomer(t *testing.T) {
	engine := newTestEngine(memory.New())

	c := scenarioCustomer()
	c.Transactions = nil
	_, err := engine.Compute(context.Background(), c, rewards.RangeRequest{})
	assert.ErrorIs(t, err, rewards.ErrInvalidCustomer)
	assert.ErrorIs(t, err, rewards.ErrEmptyCollection)

	_, err = engine.Compute(context.Background(), nil, rewards.RangeRequest{})
	assert.ErrorIs(t, err, rewards.ErrInvalidCustomer)
	assert.ErrorIs(t, err, rewards.ErrMissingField)
}

func TestCompute_InvalidRange(t *testing.T) {
	engine := newTestEngine(memory.New())
	c := scenarioCustomer()

	_, err := engine.Compute(context.Background(), c, rewards.RangeRequest{
		Start: ptr(date(2025, time.May, 1)),
		End:   ptr(date(2025, time.April, 1)),
	})
	assert.ErrorIs(t, err, rewards.ErrInvalidRange)

	_, err = engine.Compute(context.Background(), c, rewards.RangeRequest{End: ptr(fixedToday.AddDate(0, 0, 1))})
	assert.ErrorIs(t, err, rewards.ErrInvalidRange)
}

func TestEngine_WithLocation(t *testing.T) {
	// GIVEN: An engine whose clock reads 2025-06-15 02:00 UTC, in a zone where it is still the 14th
	engine := rewards.NewEngine(memory.New(),
		rewards.WithLocation(time.FixedZone("UTC-5", -5*3600)),
		rewards.WithClock(func() time.Time { return time.Date(2025, time.June, 15, 2, 0, 0, 0, time.UTC) }),
	)

	// THEN
	assert.Equal(t, date(2025, time.June, 14), engine.Today())
	_, err := engine.AddCustomer(context.Background(), rewards.Customer{ID: 1, Name: "Ana",
		Transactions: []rewards.Transaction{tx(1, date(2025, time.June, 15), "60")}})
	assert.ErrorIs(t, err, rewards.ErrFutureDate)
}

func TestCompute_RejectsOversizedAmount(t *testing.T) {
	engine := newTestEngine(memory.New())
	c := scenarioCustomer()
	c.Transactions[0].Amount = decimal.RequireFromString("1e19")

	_, err := engine.Compute(context.Background(), c, rewards.RangeRequest{})

	assert.ErrorIs(t, err, rewards.ErrAmountTooLarge)
	assert.True(t, rewards.IsClientError(err))
}

// =============================================================================
// STORED CUSTOMERS
// =============================================================================

func TestComputeForCustomer(t *testing.T) {
	// GIVEN: The scenario customer stored via AddCustomer
	store := memory.New()
	engine := newTestEngine(store)
	ctx := context.Background()
	_, err := engine.AddCustomer(ctx, *scenarioCustomer())
	require.NoError(t, err)

	// WHEN
	resp, err := engine.ComputeForCustomer(ctx, 42, rewards.RangeRequest{})

	// THEN
	require.NoError(t, err)
	assert.Equal(t, 120, resp.TotalPoints)
	assert.Len(t, resp.MonthlyRewards, 2)
}

func TestComputeForCustomer_NotFound(t *testing.T) {
	engine := newTestEngine(memory.New())

	_, err := engine.ComputeForCustomer(context.Background(), 404, rewards.RangeRequest{})

	assert.ErrorIs(t, err, rewards.ErrNotFound)
	assert.True(t, rewards.IsNotFound(err))
}

func TestComputeForCustomer_DoesNotTouchStoredPoints(t *testing.T) {
	// GIVEN: A stored record whose points are stale (rule changed since)
	store := memory.New()
	stale := *scenarioCustomer()
	stale.Transactions[0].Points = 1
	_, err := store.Save(context.Background(), stale)
	require.NoError(t, err)
	engine := newTestEngine(store)

	// WHEN: Querying
	resp, err := engine.ComputeForCustomer(context.Background(), 42, rewards.RangeRequest{})
	require.NoError(t, err)

	// THEN: The response uses fresh points, the store keeps its own
	assert.Equal(t, 90, resp.Transactions[0].Points)
	stored, err := store.Find(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Transactions[0].Points)
}

func TestComputeForCustomer_StoreFailure(t *testing.T) {
	engine := newTestEngine(brokenStore{})

	_, err := engine.ComputeForCustomer(context.Background(), 1, rewards.RangeRequest{})

	assert.ErrorIs(t, err, errDiskGone)
	assert.False(t, rewards.IsClientError(err))
	assert.False(t, rewards.IsNotFound(err))
}

func TestAddCustomer_ScoresAndStores(t *testing.T) {
	store := memory.New()
	pub := &recordingPublisher{}
	engine := newTestEngine(store, rewards.WithPublisher(pub))

	saved, err := engine.AddCustomer(context.Background(), *scenarioCustomer())

	require.NoError(t, err)
	assert.Equal(t, []int{90, 30, 20}, []int{
		saved.Transactions[0].Points, saved.Transactions[1].Points, saved.Transactions[2].Points,
	})
	stored, err := store.Find(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, saved, stored)

	require.Len(t, pub.events, 1)
	assert.Equal(t, rewards.EventCustomerCreated, pub.events[0].Type)
	assert.Equal(t, 140, pub.events[0].Points)
}

func TestAddCustomer_Duplicate(t *testing.T) {
	// GIVEN: Customer 42 already stored
	store := &countingStore{Store: memory.New()}
	engine := newTestEngine(store)
	ctx := context.Background()
	_, err := engine.AddCustomer(ctx, *scenarioCustomer())
	require.NoError(t, err)

	// WHEN: Creating 42 again with different data
	other := *scenarioCustomer()
	other.Name = "Impostor"
	_, err = engine.AddCustomer(ctx, other)

	// THEN: Rejected, original untouched, no second write
	assert.ErrorIs(t, err, rewards.ErrDuplicateCustomer)
	assert.True(t, rewards.IsConflict(err))
	stored, err := store.Find(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "Jane", stored.Name)
	assert.Equal(t, int32(1), store.saves.Load())
}

func TestAddCustomer_InvalidWritesNothing(t *testing.T) {
	store := &countingStore{Store: memory.New()}
	engine := newTestEngine(store)
	c := *scenarioCustomer()
	c.Transactions[2].Amount = decimal.Zero

	_, err := engine.AddCustomer(context.Background(), c)

	assert.ErrorIs(t, err, rewards.ErrNonPositiveAmount)
	assert.Equal(t, int32(0), store.saves.Load())
}

func TestAddTransaction_Appends(t *testing.T) {
	store := memory.New()
	pub := &recordingPublisher{}
	engine := newTestEngine(store, rewards.WithPublisher(pub))
	ctx := context.Background()
	_, err := engine.AddCustomer(ctx, *scenarioCustomer())
	require.NoError(t, err)

	updated, err := engine.AddTransaction(ctx, 42, tx(10, fixedToday, "250"))

	require.NoError(t, err)
	require.Len(t, updated.Transactions, 4)
	last := updated.Transactions[3]
	assert.Equal(t, rewards.TransactionID(10), last.ID)
	assert.Equal(t, 350, last.Points)
	assert.Equal(t, rewards.TransactionID(1), updated.Transactions[0].ID, "existing order kept")

	require.Len(t, pub.events, 2)
	assert.Equal(t, rewards.EventTransactionAdded, pub.events[1].Type)
	assert.Equal(t, rewards.TransactionID(10), pub.events[1].TransactionID)
}

func TestAddTransaction_NotFound(t *testing.T) {
	store := &countingStore{Store: memory.New()}
	engine := newTestEngine(store)

	_, err := engine.AddTransaction(context.Background(), 99, tx(1, fixedToday, "80"))
	assert.ErrorIs(t, err, rewards.ErrNotFound)

	// Not found wins even when the transaction itself is invalid.
	_, err = engine.AddTransaction(context.Background(), 99, rewards.Transaction{})
	assert.ErrorIs(t, err, rewards.ErrNotFound)

	assert.Equal(t, int32(0), store.saves.Load())
}

func TestAddTransaction_Invalid(t *testing.T) {
	store := &countingStore{Store: memory.New()}
	engine := newTestEngine(store)
	ctx := context.Background()
	_, err := engine.AddCustomer(ctx, *scenarioCustomer())
	require.NoError(t, err)

	_, err = engine.AddTransaction(ctx, 42, tx(5, fixedToday.AddDate(0, 0, 1), "80"))

	assert.ErrorIs(t, err, rewards.ErrFutureDate)
	assert.Equal(t, int32(1), store.saves.Load())
	stored, _ := store.Find(ctx, 42)
	assert.Len(t, stored.Transactions, 3)
}

func TestAddTransaction_DuplicateIDsAllowed(t *testing.T) {
	engine := newTestEngine(memory.New())
	ctx := context.Background()
	_, err := engine.AddCustomer(ctx, *scenarioCustomer())
	require.NoError(t, err)

	updated, err := engine.AddTransaction(ctx, 42, tx(1, fixedToday, "60"))

	require.NoError(t, err)
	assert.Len(t, updated.Transactions, 4)
}

func TestAddTransaction_ConcurrentAppendsAreNotLost(t *testing.T) {
	// GIVEN: One stored customer
	store := memory.New()
	engine := newTestEngine(store)
	ctx := context.Background()
	_, err := engine.AddCustomer(ctx, *scenarioCustomer())
	require.NoError(t, err)

	// WHEN: 50 appends race on the same customer, plus unrelated customers
	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := engine.AddTransaction(ctx, 42, tx(int64(100+i), fixedToday, "75"))
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			c := rewards.Customer{ID: rewards.CustomerID(1000 + i), Name: fmt.Sprintf("c%d", i),
				Transactions: []rewards.Transaction{tx(1, fixedToday, "10")}}
			_, err := engine.AddCustomer(ctx, c)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// THEN: Every append is present
	stored, err := store.Find(ctx, 42)
	require.NoError(t, err)
	assert.Len(t, stored.Transactions, 3+n)
	all, err := engine.ListCustomers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1+n)
}

func TestAddCustomer_PublishFailureKeepsWrite(t *testing.T) {
	store := memory.New()
	engine := newTestEngine(store, rewards.WithPublisher(&recordingPublisher{err: errors.New("broker down")}))

	_, err := engine.AddCustomer(context.Background(), *scenarioCustomer())

	require.NoError(t, err)
	ok, err := store.Exists(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetCustomer(t *testing.T) {
	engine := newTestEngine(memory.New())
	ctx := context.Background()

	_, err := engine.GetCustomer(ctx, 42)
	assert.ErrorIs(t, err, rewards.ErrNotFound)

	_, err = engine.AddCustomer(ctx, *scenarioCustomer())
	require.NoError(t, err)
	c, err := engine.GetCustomer(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "Jane", c.Name)
}

// =============================================================================
// BULK
// =============================================================================

func TestComputeBulk_EmptyRejected(t *testing.T) {
	engine := newTestEngine(memory.New())

	_, err := engine.ComputeBulk(context.Background(), nil, rewards.RangeRequest{})

	assert.ErrorIs(t, err, rewards.ErrEmptyCollection)
}

func TestComputeBulk_IndependentUnits(t *testing.T) {
	// GIVEN: A valid customer, an invalid one, and another valid one
	engine := newTestEngine(memory.New(), rewards.WithBulkConcurrency(2))
	good := *scenarioCustomer()
	bad := *scenarioCustomer()
	bad.ID = 43
	bad.Name = ""
	other := rewards.Customer{ID: 44, Name: "Kim", Transactions: []rewards.Transaction{
		tx(1, date(2025, time.June, 1), "250"),
	}}

	// WHEN
	results, err := engine.ComputeBulk(context.Background(), []rewards.Customer{good, bad, other}, rewards.RangeRequest{})

	// THEN: One result per customer, in order; the failure is contained
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, rewards.CustomerID(42), results[0].CustomerID)
	require.NoError(t, results[0].Err)
	assert.Equal(t, 120, results[0].Response.TotalPoints)

	assert.Equal(t, rewards.CustomerID(43), results[1].CustomerID)
	assert.ErrorIs(t, results[1].Err, rewards.ErrInvalidCustomer)
	assert.ErrorIs(t, results[1].Err, rewards.ErrMissingField)
	assert.Nil(t, results[1].Response)

	require.NoError(t, results[2].Err)
	assert.Equal(t, 350, results[2].Response.TotalPoints)
}

func TestComputeBulk_InvalidRangeRejectsAll(t *testing.T) {
	engine := newTestEngine(memory.New())

	_, err := engine.ComputeBulk(context.Background(), []rewards.Customer{*scenarioCustomer()}, rewards.RangeRequest{
		Start: ptr(fixedToday.AddDate(0, 0, 1)),
	})

	assert.ErrorIs(t, err, rewards.ErrInvalidRange)
}

func TestComputeBulk_ManyCustomers(t *testing.T) {
	engine := newTestEngine(memory.New(), rewards.WithBulkConcurrency(4))
	var customers []rewards.Customer
	for i := 1; i <= 40; i++ {
		customers = append(customers, rewards.Customer{
			ID:           rewards.CustomerID(i),
			Name:         fmt.Sprintf("customer-%d", i),
			Transactions: []rewards.Transaction{tx(1, fixedToday, fmt.Sprintf("%d", 50+i))},
		})
	}

	results, err := engine.ComputeBulk(context.Background(), customers, rewards.RangeRequest{})

	require.NoError(t, err)
	for i, res := range results {
		require.NoError(t, res.Err)
		assert.Equal(t, rewards.CustomerID(i+1), res.CustomerID)
		assert.Equal(t, i+1, res.Response.TotalPoints)
	}
}
