package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig is returned when configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStoreUnavailable is returned when a store cannot be reached.
	// Retry policy belongs to the caller, not to this package.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrDuplicateDocument is returned by low-level store code when a
	// content hash already exists. The coordinator treats it as success
	// and returns the existing document.
	ErrDuplicateDocument = errors.New("duplicate document")

	// ErrEmbeddingFailed is returned when embedding generation fails.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrResyncInProgress is returned when a reconciliation run is
	// requested while another is still in flight.
	ErrResyncInProgress = errors.New("resync already in progress")
)

// PartialWriteError reports vector insertions that failed after the text
// transaction committed. The text write is the durability boundary: it is
// never rolled back for this, the gap is left for verification to find and
// reconciliation to repair.
type PartialWriteError struct {
	DocumentID    string
	FailedIndexes []int
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("document %s: %d chunk(s) failed to vectorize (indexes %v)",
		e.DocumentID, len(e.FailedIndexes), e.FailedIndexes)
}
