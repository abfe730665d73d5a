/*
Package violations provides the case synchronization and enrichment engine.

PURPOSE:
  Keeps a local collection of violation case records consistent with an
  external authoritative source, matches every external record to a client
  from the roster, and decides which stored records need (re)enrichment.

KEY CONCEPTS IN THIS FILE (types.go):
  - Client: A customer from the roster, with its canonical name and aliases
  - CaseRecord: One violation, keyed by the source's reference number
  - EnrichmentStatus: Where the record sits in the enrichment lifecycle
  - RawRecord: A row exactly as the external source returned it

LIFECYCLE:
  1. First sighting of a reference number creates a CaseRecord
  2. Later sweeps update status/amount/hearing date when they change
  3. The enrichment worker fills narrative and extracted fields
  Records are never deleted.

SEE ALSO:
  - reconcile.go: The sweep that creates and updates records
  - queue.go: Selection and ordering of enrichment candidates
  - ports.go: Interfaces to the roster, source, store and worker
*/
package violations

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ClientID string
type CaseID string

// =============================================================================
// CLIENT - Roster entry used for name matching
// =============================================================================

// Client is a roster entry. Respondent names are matched against Name and
// every alias.
type Client struct {
	ID      ClientID
	Name    string
	Aliases []string
}

// =============================================================================
// ENRICHMENT STATUS
// =============================================================================

type EnrichmentStatus string

const (
	EnrichmentUnset    EnrichmentStatus = ""
	EnrichmentPending  EnrichmentStatus = "pending"
	EnrichmentComplete EnrichmentStatus = "complete"
	EnrichmentFailed   EnrichmentStatus = "failed"
)

// Valid reports whether s is one of the known statuses, unset included.
func (s EnrichmentStatus) Valid() bool {
	switch s {
	case EnrichmentUnset, EnrichmentPending, EnrichmentComplete, EnrichmentFailed:
		return true
	}
	return false
}

// =============================================================================
// CASE RECORD
// =============================================================================

// CaseRecord is the locally stored view of one violation.
type CaseRecord struct {
	ID              CaseID
	ReferenceNumber string
	ClientID        ClientID
	Respondent      string

	HearingDate       *time.Time
	Status            string
	BaseFine          decimal.Decimal
	AmountDue         decimal.Decimal
	ViolationDate     *time.Time
	ViolationLocation string
	Plate             string

	// Evidentiary links derived from the reference number.
	DocumentURL string
	VideoURL    string

	// Enrichment output. Written only by a completed enrichment pass.
	EnrichmentStatus    EnrichmentStatus
	Narrative           string
	ExtractedPlate      string
	ExtractedIdentifier string
	EnrichmentError     string
	EnrichedAt          *time.Time

	// Audit. Written only when a sweep detects a material change.
	LastChangeSummary string
	LastChangeAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TrackingUpdate is the partial update a sweep writes on detected change.
type TrackingUpdate struct {
	Status            string
	AmountDue         decimal.Decimal
	HearingDate       *time.Time
	LastChangeSummary string
	ChangedAt         time.Time
}

// EnrichmentUpdate is the partial update an enrichment result writes.
type EnrichmentUpdate struct {
	Status              EnrichmentStatus
	Narrative           string
	ExtractedPlate      string
	ExtractedIdentifier string
	Error               string
	EnrichedAt          *time.Time
	// FieldsSet marks that the output fields above should be written.
	// Pending and failed results only touch status and error.
	FieldsSet bool
}

// =============================================================================
// EXTERNAL RECORDS
// =============================================================================

// RawRecord is one row from the external source. Values stay as the source
// sent them; normalization happens in the engine.
type RawRecord struct {
	ReferenceNumber   string `json:"ticket_number"`
	Respondent        string `json:"respondent_name"`
	HearingDate       string `json:"hearing_date"`
	Status            string `json:"hearing_status"`
	Plate             string `json:"plate"`
	BaseFine          any    `json:"penalty_imposed"`
	AmountDue         any    `json:"balance_due"`
	ViolationDate     string `json:"violation_date"`
	ViolationLocation string `json:"violation_location"`
}

// SweepResult is the aggregate outcome of one sweep.
type SweepResult struct {
	Matched int `json:"matched"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}
