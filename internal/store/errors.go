package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound reports a lookup for a document id that does not exist.
var ErrNotFound = errors.New("document not found")

// ConflictError reports an insert that violates a uniqueness invariant, such
// as a second weather report for the same station and date.
type ConflictError struct {
	Collection string
	Key        string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: duplicate key %q", e.Collection, e.Key)
}

// VersionConflictError reports an update whose expected version no longer
// matches the stored document. The caller must re-read and retry.
type VersionConflictError struct {
	Collection string
	ID         string
	Expected   int64
	Actual     int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("%s/%s: version conflict, expected %d but found %d",
		e.Collection, e.ID, e.Expected, e.Actual)
}

// QueryError reports malformed filter parameters. It is returned before any
// execution; a query never partially runs and then fails validation.
type QueryError struct {
	Param  string
	Reason string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid query parameter %s: %s", e.Param, e.Reason)
}

// IndexError reports an index that cannot be built because existing documents
// violate its geometry or type assumptions. The offending documents are named
// rather than the index being silently dropped.
type IndexError struct {
	Collection   string
	Index        string
	ViolatingIDs []string
	Err          error
}

func (e *IndexError) Error() string {
	if len(e.ViolatingIDs) > 0 {
		return fmt.Sprintf("index %s on %s: %d documents violate index constraints: %s",
			e.Index, e.Collection, len(e.ViolatingIDs), strings.Join(e.ViolatingIDs, ", "))
	}
	return fmt.Sprintf("index %s on %s: %v", e.Index, e.Collection, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }
