package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/triage/storage"
)

// LockRepository implements storage.LockRepository with TTL'd badger entries.
// An expired lease disappears on its own, so a crashed run never wedges the lock.
type LockRepository struct {
	backend *Backend
}

var _ storage.LockRepository = (*LockRepository)(nil)

// NewLockRepository creates a new LockRepository.
func NewLockRepository(backend *Backend) *LockRepository {
	return &LockRepository{backend: backend}
}

// AcquireLock takes or renews the named lease for owner.
func (r *LockRepository) AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("lock ttl must be positive, got %s", ttl)
	}
	key := makeLockKey(name)
	now := time.Now().UTC()

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		current, err := readLease(tx, key)
		if err != nil {
			return err
		}
		if current != nil && current.Owner != owner && now.Before(current.ExpiresAt) {
			return fmt.Errorf("%w: %s held by %s until %s", storage.ErrLocked, name, current.Owner, current.ExpiresAt.Format(time.RFC3339))
		}

		value, err := storage.MarshalLease(&storage.Lease{Owner: owner, ExpiresAt: now.Add(ttl)})
		if err != nil {
			return err
		}
		if err := tx.SetEntry(badger.NewEntry(key, value).WithTTL(ttl)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %s", storage.ErrLocked, name)
	}
	return err
}

// ReleaseLock deletes the lease if owner holds it. Releasing a lease held by
// someone else, or one that already expired, is a no-op.
func (r *LockRepository) ReleaseLock(ctx context.Context, name, owner string) error {
	key := makeLockKey(name)
	return r.backend.WithTx(func(tx *badger.Txn) error {
		current, err := readLease(tx, key)
		if err != nil {
			return err
		}
		if current == nil || current.Owner != owner {
			return nil
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

func readLease(tx *badger.Txn, key []byte) (*storage.Lease, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var lease *storage.Lease
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		lease, unmarshalErr = storage.UnmarshalLease(val)
		return unmarshalErr
	})
	return lease, err
}
