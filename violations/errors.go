/*
errors.go - Error types for the sync engine

ERROR CATEGORIES:
  1. Fatal errors - Abort the whole sweep (roster, source, guard)
  2. Record errors - Counted per record, never abort the batch
  3. Store errors - Persistence facts (duplicate, not found)

Dispatch failures are not errors of the sweep at all. They are logged by the
dispatcher and the self-healing queue picks the record up later.

SEE ALSO:
  - reconcile.go: Classifies failures into fatal vs per-record
  - store/sqlite/sqlite.go: Returns ErrDuplicateReference
*/
package violations

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateReference is returned by InsertCase when a record with the
	// same reference number already exists.
	ErrDuplicateReference = errors.New("duplicate reference number")

	// ErrCaseNotFound is returned by partial updates targeting a missing record.
	ErrCaseNotFound = errors.New("case record not found")

	// ErrClientNotFound is returned when deleting a client that is not on the roster.
	ErrClientNotFound = errors.New("client not found")

	// ErrSweepInProgress is returned when another sweep holds the run guard.
	ErrSweepInProgress = errors.New("sweep already in progress")

	// ErrMalformedRecord marks a source row that cannot be reconciled.
	ErrMalformedRecord = errors.New("malformed source record")

	// ErrRosterUnavailable wraps client roster failures.
	ErrRosterUnavailable = errors.New("client roster unavailable")

	// ErrSourceUnavailable wraps external source failures.
	ErrSourceUnavailable = errors.New("external source unavailable")

	// ErrAliasCollision is the sentinel behind AliasCollisionError.
	ErrAliasCollision = errors.New("alias collision")

	// ErrInvalidEnrichmentStatus rejects unknown statuses from the worker.
	ErrInvalidEnrichmentStatus = errors.New("invalid enrichment status")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// Collision records two clients claiming the same normalized name.
type Collision struct {
	Name     string
	Kept     ClientID
	Rejected ClientID
}

// AliasCollisionError is returned by BuildAliasMap under RejectCollisions.
type AliasCollisionError struct {
	Collisions []Collision
}

func (e *AliasCollisionError) Error() string {
	names := make([]string, 0, len(e.Collisions))
	for _, c := range e.Collisions {
		names = append(names, fmt.Sprintf("%q (%s vs %s)", c.Name, c.Kept, c.Rejected))
	}
	return fmt.Sprintf("alias collision: %s", strings.Join(names, ", "))
}

func (e *AliasCollisionError) Unwrap() error {
	return ErrAliasCollision
}

// RecordError ties a per-record failure to the offending reference number.
type RecordError struct {
	ReferenceNumber string
	Op              string
	Err             error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %s: %s: %v", e.ReferenceNumber, e.Op, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsFatal returns true for errors that abort a sweep as a unit.
func IsFatal(err error) bool {
	return errors.Is(err, ErrRosterUnavailable) ||
		errors.Is(err, ErrSourceUnavailable) ||
		errors.Is(err, ErrAliasCollision) ||
		errors.Is(err, ErrSweepInProgress)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCaseNotFound) || errors.Is(err, ErrClientNotFound)
}
