package storage

import (
	"context"
	"time"

	"github.com/poiesic/triage/core"
)

// Repository provides operations shared by every repository.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close releases resources held by the repository.
	Close() error
}

// RecordRepository persists ProcessingRecords, one per message.
type RecordRepository interface {
	Repository

	// ClaimRecord atomically creates record if no record exists for its MessageID.
	// Returns ErrAlreadyClaimed when another caller created it first, including
	// when two callers race on the same MessageID.
	ClaimRecord(ctx context.Context, record *core.ProcessingRecord) error

	// UpdateRecord replaces an existing record and refreshes UpdatedAt.
	// Returns ErrNotFound if the record was never claimed.
	UpdateRecord(ctx context.Context, record *core.ProcessingRecord) error

	// GetRecord retrieves the record for a message.
	// Returns ErrNotFound if the record doesn't exist.
	GetRecord(ctx context.Context, id core.MessageID) (*core.ProcessingRecord, error)

	// ListRecords returns records currently in any of the given stages,
	// ordered by ClaimedAt ascending. No stages means all records.
	ListRecords(ctx context.Context, stages ...core.Stage) ([]*core.ProcessingRecord, error)

	// DeleteRecords removes records by message ID. Missing IDs are ignored.
	DeleteRecords(ctx context.Context, ids ...core.MessageID) error
}

// KnowledgeRepository persists knowledge entries backing the in-memory index.
type KnowledgeRepository interface {
	Repository

	// PutEntries inserts or replaces entries by ID.
	PutEntries(ctx context.Context, entries ...*core.KnowledgeEntry) error

	// DeleteEntries removes entries by ID. Missing IDs are ignored.
	DeleteEntries(ctx context.Context, ids ...string) error

	// GetEntry retrieves a single entry.
	// Returns ErrNotFound if the entry doesn't exist.
	GetEntry(ctx context.Context, id string) (*core.KnowledgeEntry, error)

	// ForEachEntry streams every entry ordered by ID. Iteration stops at the
	// first error returned by fn.
	ForEachEntry(ctx context.Context, fn func(*core.KnowledgeEntry) error) error

	// CountEntries returns the number of stored entries.
	CountEntries(ctx context.Context) (int, error)
}

// LockRepository provides named leases that expire on their own.
type LockRepository interface {
	// AcquireLock takes the named lease for owner until ttl elapses.
	// Returns ErrLocked while another owner holds an unexpired lease.
	AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) error

	// ReleaseLock drops the lease if owner still holds it.
	ReleaseLock(ctx context.Context, name, owner string) error
}
