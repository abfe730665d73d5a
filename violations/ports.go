/*
ports.go - Interfaces to the collaborators of the sync engine

KEY INTERFACES:
  ClientRoster:     Bulk read of all clients
  Source:           The external authoritative violation source
  CaseStore:        Persistence of CaseRecords (point lookups, insert, partial update)
  EnrichmentWorker: Fire-and-forget enrichment invocation
  RunGuard:         Prevents overlapping sweeps

PARTIAL UPDATES:
  CaseStore has no generic Save. The two update methods split the record by
  owner: UpdateTracking is called only by the sweep, UpdateEnrichment only
  by the enrichment result path. Neither touches the other's fields.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: ClientRoster + CaseStore
  - violations/store/memory.go: In-memory ClientRoster + CaseStore
  - source/client.go: Source over HTTP
  - enrichment/client.go: EnrichmentWorker over HTTP
  - lock/local.go, lock/redis.go: RunGuard
*/
package violations

import (
	"context"
	"time"
)

// ClientRoster returns the full client roster.
type ClientRoster interface {
	ListClients(ctx context.Context) ([]Client, error)
}

// SortOrder is the sort direction requested from the source.
type SortOrder string

const (
	SortAscending  SortOrder = "ASC"
	SortDescending SortOrder = "DESC"
)

// Query describes one snapshot fetch from the source.
type Query struct {
	Limit    int
	Category string
	OrderBy  string
	Order    SortOrder
}

// Source fetches the current external snapshot.
type Source interface {
	Fetch(ctx context.Context, q Query) ([]RawRecord, error)
}

// CaseStore persists CaseRecords. Lookups return (nil, nil) when the record
// does not exist.
type CaseStore interface {
	GetCase(ctx context.Context, id CaseID) (*CaseRecord, error)
	GetCaseByReference(ctx context.Context, referenceNumber string) (*CaseRecord, error)

	// InsertCase returns ErrDuplicateReference if the reference number exists.
	InsertCase(ctx context.Context, rec CaseRecord) error

	// UpdateTracking writes status, amount due, hearing date and audit fields.
	UpdateTracking(ctx context.Context, id CaseID, u TrackingUpdate) error

	// UpdateEnrichment writes enrichment status and output fields.
	UpdateEnrichment(ctx context.Context, id CaseID, u EnrichmentUpdate) error

	ListCases(ctx context.Context) ([]CaseRecord, error)
}

// EnrichmentRequest is the fixed request contract of the enrichment worker.
type EnrichmentRequest struct {
	CaseID          CaseID     `json:"case_id"`
	ReferenceNumber string     `json:"reference_number"`
	DocumentURL     string     `json:"document_url"`
	VideoURL        string     `json:"video_url"`
	ViolationDate   *time.Time `json:"violation_date,omitempty"`
}

// EnrichmentWorker starts an enrichment job. The result is not consumed;
// the worker reports back through the enrichment result endpoint.
type EnrichmentWorker interface {
	Enqueue(ctx context.Context, req EnrichmentRequest) error
}

// RunGuard serializes sweeps. Acquire never blocks: if the key is held it
// returns ErrSweepInProgress.
type RunGuard interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
