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


package knowledge

import "errors"

var (
	// ErrIndexRequired is returned when a loader is built without an index.
	ErrIndexRequired = errors.New("knowledge index required")

	// ErrEmbedderRequired is returned when a loader is built without an embedder.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrRepositoryRequired is returned by Load and Rebuild on an index with no repository.
	ErrRepositoryRequired = errors.New("knowledge repository required")

	// ErrInvalidDimensions is returned for a negative dimension option.
	ErrInvalidDimensions = errors.New("dimensions must not be negative")

	// ErrInvalidChunking is returned for a chunk size or overlap that cannot split text.
	ErrInvalidChunking = errors.New("chunk overlap must be smaller than chunk size")
)
