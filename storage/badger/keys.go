package badger

import (
	"github.com/poiesic/triage/core"
)

// Key prefixes for different data types
const (
	recordPrefix    = "procrec:"
	knowledgePrefix = "knowent:"
	lockPrefix      = "lease:"
)

// makeRecordKey generates a key for a processing record by message ID.
func makeRecordKey(id core.MessageID) []byte {
	return []byte(recordPrefix + string(id))
}

// makeEntryKey generates a key for a knowledge entry by ID.
// Entry IDs sort lexicographically, so prefix iteration yields ID order.
func makeEntryKey(id string) []byte {
	return []byte(knowledgePrefix + id)
}

// makeLockKey generates a key for a named lease.
func makeLockKey(name string) []byte {
	return []byte(lockPrefix + name)
}
