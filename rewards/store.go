/*
store.go - Persistence interface for customer records

PURPOSE:
  Defines the boundary between the engine and whatever holds customers.
  The engine only ever reads and upserts whole records; it never reaches
  into a backend directly, so a database can replace the in-memory map
  without touching engine.go.

CONTRACT:
  Exists(): Whether a record with this ID is present
  Save():   Upsert keyed by Customer.ID, returns the stored record
  Find():   The record, or (nil, nil) when absent
  List():   All records, ordered by ID

  Implementations must be safe for concurrent use and must return copies:
  mutating a returned Customer must not change what the store holds.

  Stores do NOT serialize read-modify-write sequences. The engine holds a
  per-customer lock around Find+Save (see locks.go).

IMPLEMENTATIONS:
  - store/memory: Sharded in-memory map (default, tests)
  - store/sqlite: SQLite with golang-migrate managed schema

SEE ALSO:
  - engine.go: Only consumer of Store
*/
package rewards

import "context"

// Store persists customers and their transactions.
type Store interface {
	Exists(ctx context.Context, id CustomerID) (bool, error)
	Save(ctx context.Context, customer Customer) (*Customer, error)
	Find(ctx context.Context, id CustomerID) (*Customer, error)
	List(ctx context.Context) ([]Customer, error)
}
