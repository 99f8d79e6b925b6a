/*
Package sqlite provides a SQLite-backed implementation of rewards.Store.

PURPOSE:
  Durable customer storage for deployments that outlive a process. The
  engine sees the same Store contract as the in-memory backend.

KEY TABLES:
  customers:    One row per customer (id, name, timestamps)
  transactions: Ordered by (customer_id, seq); seq is the insertion index

SCHEMA:
  Managed by golang-migrate from the embedded migrations/ directory.
  New() brings the schema up to date before returning.

SAVE SEMANTICS:
  Save() is an upsert of the whole record inside one SQL transaction:
  the customer row is upserted and its transaction rows are replaced.
  Either everything is written or nothing is.

CONCURRENCY:
  Uses sync.RWMutex plus a single pooled connection. Per-customer
  read-modify-write ordering is the engine's job, not the store's.

USAGE:
  store, err := sqlite.New("./data/rewards.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := rewards.NewEngine(store)

SEE ALSO:
  - rewards/store.go: Interface definition
  - store/memory: In-memory implementation
  - migrate.go: Schema migrations
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/rewards-engine/rewards"
)

// Store implements rewards.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var memoryDBs atomic.Int64

// New creates a new SQLite store with the given database path.
// Use ":memory:" for a private in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL"
	if dbPath == ":memory:" {
		// Named shared-cache DB so the migration connection sees the same data.
		dsn = fmt.Sprintf("file:rewards-mem-%d?mode=memory&cache=shared&_foreign_keys=on", memoryDBs.Add(1))
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := runMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// CUSTOMER STORE (rewards.Store interface)
// =============================================================================

// Exists checks whether a customer row exists.
func (s *Store) Exists(ctx context.Context, id rewards.CustomerID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM customers WHERE id = ?", int64(id),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check customer: %w", err)
	}
	return count > 0, nil
}

// Save upserts a customer and replaces its transactions atomically.
func (s *Store) Save(ctx context.Context, customer rewards.Customer) (*rewards.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO customers (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at
	`, int64(customer.ID), customer.Name, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert customer: %w", err)
	}

	if _, err := sqlTx.ExecContext(ctx,
		"DELETE FROM transactions WHERE customer_id = ?", int64(customer.ID),
	); err != nil {
		return nil, fmt.Errorf("failed to clear transactions: %w", err)
	}

	stmt, err := sqlTx.PrepareContext(ctx, `
		INSERT INTO transactions (customer_id, seq, transaction_id, tx_date, amount, points)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare transaction insert: %w", err)
	}
	defer stmt.Close()

	for i, tx := range customer.Transactions {
		_, err := stmt.ExecContext(ctx,
			int64(customer.ID),
			i,
			int64(tx.ID),
			tx.Date.Format(rewards.DateLayout),
			tx.Amount.String(),
			tx.Points,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert transaction %d: %w", tx.ID, err)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit customer: %w", err)
	}

	out := customer.Clone()
	return &out, nil
}

// Find loads a customer with its transactions, or (nil, nil) if absent.
func (s *Store) Find(ctx context.Context, id rewards.CustomerID) (*rewards.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := rewards.Customer{ID: id}
	err := s.db.QueryRowContext(ctx,
		"SELECT name FROM customers WHERE id = ?", int64(id),
	).Scan(&c.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	txs, err := s.loadTransactions(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Transactions = txs
	return &c, nil
}

// List returns all customers ordered by ID.
func (s *Store) List(ctx context.Context) ([]rewards.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM customers ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	var customers []rewards.Customer
	for rows.Next() {
		var (
			c  rewards.Customer
			id int64
		)
		if err := rows.Scan(&id, &c.Name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		c.ID = rewards.CustomerID(id)
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range customers {
		txs, err := s.loadTransactions(ctx, customers[i].ID)
		if err != nil {
			return nil, err
		}
		customers[i].Transactions = txs
	}
	return customers, nil
}

func (s *Store) loadTransactions(ctx context.Context, id rewards.CustomerID) ([]rewards.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, tx_date, amount, points
		FROM transactions
		WHERE customer_id = ?
		ORDER BY seq ASC
	`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []rewards.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func scanTransaction(rows *sql.Rows) (rewards.Transaction, error) {
	var (
		tx     rewards.Transaction
		txID   int64
		txDate string
		amount string
	)
	if err := rows.Scan(&txID, &txDate, &amount, &tx.Points); err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	date, err := time.Parse(rewards.DateLayout, txDate)
	if err != nil {
		return tx, fmt.Errorf("invalid stored date %q: %w", txDate, err)
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return tx, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}

	tx.ID = rewards.TransactionID(txID)
	tx.Date = date
	tx.Amount = value
	return tx, nil
}

var _ rewards.Store = (*Store)(nil)
