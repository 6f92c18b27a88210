package pipeline

import "errors"

var (
	// ErrRecordRepositoryRequired is returned when a record repository is not provided.
	ErrRecordRepositoryRequired = errors.New("record repository required")

	// ErrMailboxRequired is returned when a mailbox is not provided.
	ErrMailboxRequired = errors.New("mailbox required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrIndexRequired is returned when a knowledge index is not provided.
	ErrIndexRequired = errors.New("knowledge index required")

	// ErrPolicyRequired is returned when a policy is not provided.
	ErrPolicyRequired = errors.New("policy required")

	// ErrRunInProgress is returned when a batch is started while another one
	// is still running, in this process or another one sharing the store.
	ErrRunInProgress = errors.New("a triage run is already in progress")

	// ErrRunLockLost is returned when the run lease could not be renewed.
	// Records left unfinished stay resumable.
	ErrRunLockLost = errors.New("run lock lost")
)
