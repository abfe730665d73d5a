/*
queue.go - Self-healing enrichment queue

PURPOSE:
  Decides which stored records need (re)enrichment and in what order. There
  is no durable queue: every drain re-scans the whole collection through
  three stages.

STAGES:
  1. Select:  any of the five predicates below
  2. Floor:   drop records whose hearing date precedes the floor date
  3. Sort:    latest hearing date first, undated last

SELECTION PREDICATES:
  pending          status "pending"
  never_attempted  status unset and no narrative
  retry            status "failed"
  repair           status "complete" but a critical field is empty
  orphaned         status unset, narrative present, critical field empty

  Orphaned records come from writes that stored the narrative but not the
  status flag. MigrateOrphans in enrichment.go fixes those rows once; the
  predicate stays so unmigrated data still heals.

SEE ALSO:
  - enrichment.go: Drainer and result intake
  - dispatch.go: Dispatcher
*/
package violations

import (
	"sort"
	"strings"
	"time"
)

// Reason labels why a record was selected. It never affects selection or
// ordering.
type Reason string

const (
	ReasonPending        Reason = "pending"
	ReasonNeverAttempted Reason = "never_attempted"
	ReasonRetry          Reason = "retry"
	ReasonRepair         Reason = "repair"
	ReasonOrphaned       Reason = "orphaned"
)

// Critical enrichment output fields, in reporting order.
const (
	FieldExtractedPlate      = "extracted_plate"
	FieldExtractedIdentifier = "extracted_identifier"
)

// DefaultFloorDate is the historical cutoff for the enrichment queue.
var DefaultFloorDate = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// =============================================================================
// SELECTION
// =============================================================================

// MissingFields lists the absent critical fields in fixed order.
func MissingFields(rec CaseRecord) []string {
	var missing []string
	if isBlank(rec.ExtractedPlate) {
		missing = append(missing, FieldExtractedPlate)
	}
	if isBlank(rec.ExtractedIdentifier) {
		missing = append(missing, FieldExtractedIdentifier)
	}
	return missing
}

// SelectReason returns why rec needs enrichment, or false if it does not.
func SelectReason(rec CaseRecord) (Reason, bool) {
	hasNarrative := !isBlank(rec.Narrative)
	incomplete := len(MissingFields(rec)) > 0

	switch {
	case rec.EnrichmentStatus == EnrichmentPending:
		return ReasonPending, true
	case rec.EnrichmentStatus == EnrichmentUnset && !hasNarrative:
		return ReasonNeverAttempted, true
	case rec.EnrichmentStatus == EnrichmentFailed:
		return ReasonRetry, true
	case rec.EnrichmentStatus == EnrichmentComplete && incomplete:
		return ReasonRepair, true
	case rec.EnrichmentStatus == EnrichmentUnset && hasNarrative && incomplete:
		return ReasonOrphaned, true
	}
	return "", false
}

// NeedsEnrichment reports whether rec is a queue candidate.
func NeedsEnrichment(rec CaseRecord) bool {
	_, ok := SelectReason(rec)
	return ok
}

// NeedsRepair is true for complete-but-incomplete and orphaned records.
// Used for logging and metrics only.
func NeedsRepair(rec CaseRecord) bool {
	reason, ok := SelectReason(rec)
	return ok && (reason == ReasonRepair || reason == ReasonOrphaned)
}

// SelectCandidates keeps the records that need enrichment, in input order.
func SelectCandidates(records []CaseRecord) []CaseRecord {
	var out []CaseRecord
	for _, rec := range records {
		if NeedsEnrichment(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// =============================================================================
// FLOOR FILTER + PRIORITY SORT
// =============================================================================

// AboveFloor keeps undated records and records dated on or after floor.
func AboveFloor(rec CaseRecord, floor time.Time) bool {
	if rec.HearingDate == nil {
		return true
	}
	return !rec.HearingDate.Before(floor)
}

// ApplyFloor filters records below the floor date, preserving order.
func ApplyFloor(records []CaseRecord, floor time.Time) []CaseRecord {
	var out []CaseRecord
	for _, rec := range records {
		if AboveFloor(rec, floor) {
			out = append(out, rec)
		}
	}
	return out
}

// SortByPriority orders records latest hearing date first, undated last.
func SortByPriority(records []CaseRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return hearsLater(records[i], records[j])
	})
}

func hearsLater(a, b CaseRecord) bool {
	switch {
	case a.HearingDate == nil:
		return false
	case b.HearingDate == nil:
		return true
	default:
		return a.HearingDate.After(*b.HearingDate)
	}
}

// =============================================================================
// QUEUE
// =============================================================================

// QueueItem is one enrichment candidate with its diagnostics.
type QueueItem struct {
	Record  CaseRecord
	Reason  Reason
	Missing []string
	Repair  bool
}

// BuildQueue runs select, floor and sort over the full collection.
func BuildQueue(records []CaseRecord, floor time.Time) []QueueItem {
	candidates := ApplyFloor(SelectCandidates(records), floor)
	SortByPriority(candidates)

	items := make([]QueueItem, 0, len(candidates))
	for _, rec := range candidates {
		reason, _ := SelectReason(rec)
		items = append(items, QueueItem{
			Record:  rec,
			Reason:  reason,
			Missing: MissingFields(rec),
			Repair:  NeedsRepair(rec),
		})
	}
	return items
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
