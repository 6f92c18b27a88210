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


// Package storage provides the storage abstraction layer for triage.
//
// This package defines repository interfaces that decouple the pipeline from the
// storage engine. The BadgerDB implementation lives in storage/badger.
//
// # Architecture
//
//   - RecordRepository: durable per-message ProcessingRecords. ClaimRecord is an
//     atomic create-if-absent and is the only way a message enters the pipeline.
//   - KnowledgeRepository: persisted knowledge entries. The knowledge package
//     keeps the searchable copy in memory and rebuilds it from here.
//   - LockRepository: named leases with an expiry, used as the batch run lock.
//
// # Usage
//
// Use in tests with in-memory storage:
//
//	repos, err := badger.NewMemoryRepositories()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repos.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support.
package storage
