package reembed

import "errors"

var (
	// ErrRepositoryRequired is returned when a knowledge repository is not provided.
	ErrRepositoryRequired = errors.New("knowledge repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInconsistentDimensions is returned when the embedder produces vectors
	// of different lengths within one run.
	ErrInconsistentDimensions = errors.New("embedder produced vectors of different lengths")
)
