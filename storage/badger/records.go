// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package badger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/triage/core"
	"github.com/poiesic/triage/storage"
)

// deleteBatchSize bounds keys per transaction to stay under badger's txn limits.
const deleteBatchSize = 500

// RecordRepository implements storage.RecordRepository for BadgerDB.
type RecordRepository struct {
	backend *Backend
}

var _ storage.RecordRepository = (*RecordRepository)(nil)

// NewRecordRepository creates a new RecordRepository.
func NewRecordRepository(backend *Backend) *RecordRepository {
	return &RecordRepository{backend: backend}
}

// Close is a no-op; the backend owns the database handle.
func (r *RecordRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *RecordRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// ClaimRecord creates the record only if none exists for its MessageID.
//
// The existence check registers the key in the transaction's read set, so a
// concurrent claim that commits first makes this commit fail with
// badger.ErrConflict. Both outcomes surface as storage.ErrAlreadyClaimed.
func (r *RecordRepository) ClaimRecord(ctx context.Context, record *core.ProcessingRecord) error {
	now := time.Now().UTC()
	if record.ClaimedAt.IsZero() {
		record.ClaimedAt = now
	}
	record.UpdatedAt = now

	value, err := storage.MarshalRecord(record)
	if err != nil {
		return err
	}
	key := makeRecordKey(record.MessageID)

	err = r.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(key)
		if err == nil {
			return storage.ErrAlreadyClaimed
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %s", storage.ErrAlreadyClaimed, record.MessageID)
	}
	return err
}

// UpdateRecord replaces an existing record.
func (r *RecordRepository) UpdateRecord(ctx context.Context, record *core.ProcessingRecord) error {
	key := makeRecordKey(record.MessageID)
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := tx.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", storage.ErrNotFound, record.MessageID)
			}
			return err
		}

		record.UpdatedAt = time.Now().UTC()
		value, err := storage.MarshalRecord(record)
		if err != nil {
			return err
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetRecord retrieves the record for a message.
func (r *RecordRepository) GetRecord(ctx context.Context, id core.MessageID) (*core.ProcessingRecord, error) {
	var result *core.ProcessingRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeRecordKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var unmarshalErr error
			result, unmarshalErr = storage.UnmarshalRecord(val)
			return unmarshalErr
		})
	}, false)
	return result, err
}

// ListRecords returns records in any of the given stages ordered by claim time.
func (r *RecordRepository) ListRecords(ctx context.Context, stages ...core.Stage) ([]*core.ProcessingRecord, error) {
	var results []*core.ProcessingRecord

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var record *core.ProcessingRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			if len(stages) > 0 && !slices.Contains(stages, record.Stage) {
				continue
			}
			results = append(results, record)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b *core.ProcessingRecord) int {
		if c := a.ClaimedAt.Compare(b.ClaimedAt); c != 0 {
			return c
		}
		return strings.Compare(string(a.MessageID), string(b.MessageID))
	})
	return results, nil
}

// DeleteRecords removes records by message ID.
func (r *RecordRepository) DeleteRecords(ctx context.Context, ids ...core.MessageID) error {
	for chunk := range slices.Chunk(ids, deleteBatchSize) {
		err := r.backend.WithTx(func(tx *badger.Txn) error {
			for _, id := range chunk {
				if err := tx.Delete(makeRecordKey(id)); err != nil {
					return err
				}
			}
			return tx.Commit()
		}, true)
		if err != nil {
			return err
		}
	}
	return nil
}
