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


package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/poiesic/triage/core"
)

// MarshalRecord serializes a ProcessingRecord to bytes.
func MarshalRecord(record *core.ProcessingRecord) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalRecord deserializes a ProcessingRecord from bytes.
func UnmarshalRecord(data []byte) (*core.ProcessingRecord, error) {
	var record core.ProcessingRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if record.Facts == nil {
		record.Facts = core.Facts{}
	}
	return &record, nil
}

// MarshalEntry serializes a KnowledgeEntry to bytes.
func MarshalEntry(entry *core.KnowledgeEntry) ([]byte, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalEntry deserializes a KnowledgeEntry from bytes.
func UnmarshalEntry(data []byte) (*core.KnowledgeEntry, error) {
	var entry core.KnowledgeEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &entry, nil
}

// Lease is the stored value of a named lock.
type Lease struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MarshalLease serializes a Lease to bytes.
func MarshalLease(lease *Lease) ([]byte, error) {
	data, err := json.Marshal(lease)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalLease deserializes a Lease from bytes.
func UnmarshalLease(data []byte) (*Lease, error) {
	var lease Lease
	if err := json.Unmarshal(data, &lease); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &lease, nil
}
