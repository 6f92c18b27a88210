package retrieval

import "errors"

var (
	// ErrIndexRequired is returned when a knowledge index is not provided.
	ErrIndexRequired = errors.New("knowledge index required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")
)
