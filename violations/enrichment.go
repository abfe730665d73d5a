package violations

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// =============================================================================
// DRAINER - Build the queue and dispatch its head
// =============================================================================

// DrainResult summarizes one drain.
type DrainResult struct {
	Candidates int `json:"candidates"`
	Dispatched int `json:"dispatched"`
	Repairs    int `json:"repairs"`
	Orphans    int `json:"orphans"`
}

// Drainer dispatches the highest-priority enrichment candidates.
type Drainer struct {
	Store      CaseStore
	Dispatcher *Dispatcher
	Floor      time.Time
	Recorder   Recorder
}

// NewDrainer creates a drainer. A zero floor uses DefaultFloorDate.
func NewDrainer(store CaseStore, dispatcher *Dispatcher, floor time.Time) *Drainer {
	if floor.IsZero() {
		floor = DefaultFloorDate
	}
	return &Drainer{Store: store, Dispatcher: dispatcher, Floor: floor, Recorder: NopRecorder{}}
}

// Queue returns the current ordered queue without dispatching anything.
func (d *Drainer) Queue(ctx context.Context) ([]QueueItem, error) {
	records, err := d.Store.ListCases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	items := BuildQueue(records, d.Floor)
	if d.Recorder != nil {
		d.Recorder.QueueBuilt(items)
	}
	return items, nil
}

// Drain dispatches up to limit queued records. limit <= 0 dispatches all.
func (d *Drainer) Drain(ctx context.Context, limit int) (DrainResult, error) {
	items, err := d.Queue(ctx)
	if err != nil {
		return DrainResult{}, err
	}

	result := DrainResult{Candidates: len(items)}
	for _, item := range items {
		switch item.Reason {
		case ReasonRepair:
			result.Repairs++
		case ReasonOrphaned:
			result.Orphans++
		}
	}

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	for _, item := range items {
		if item.Repair {
			log.Printf("[Queue] Repair job %s (%s): missing %s",
				item.Record.ReferenceNumber, item.Reason, strings.Join(item.Missing, ", "))
		}
		if d.Dispatcher.Dispatch(ctx, item.Record) {
			result.Dispatched++
		}
	}

	log.Printf("[Queue] Drain: %d candidates, %d dispatched, %d repairs, %d orphans",
		result.Candidates, result.Dispatched, result.Repairs, result.Orphans)
	return result, nil
}

// =============================================================================
// RESULT INTAKE - The only writer of enrichment output fields
// =============================================================================

// EnrichmentResult is what the worker reports back for one record.
type EnrichmentResult struct {
	Status              EnrichmentStatus `json:"status"`
	Narrative           string           `json:"narrative"`
	ExtractedPlate      string           `json:"extracted_plate"`
	ExtractedIdentifier string           `json:"extracted_identifier"`
	Error               string           `json:"error"`
}

// ApplyEnrichmentResult stores a worker result. Output fields are written
// only for complete results.
func ApplyEnrichmentResult(ctx context.Context, store CaseStore, id CaseID, res EnrichmentResult, now time.Time) error {
	if res.Status == EnrichmentUnset || !res.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidEnrichmentStatus, res.Status)
	}

	existing, err := store.GetCase(ctx, id)
	if err != nil {
		return fmt.Errorf("get case: %w", err)
	}
	if existing == nil {
		return ErrCaseNotFound
	}

	update := EnrichmentUpdate{Status: res.Status}
	switch res.Status {
	case EnrichmentFailed:
		update.Error = res.Error
	case EnrichmentComplete:
		update.FieldsSet = true
		update.Narrative = strings.TrimSpace(res.Narrative)
		update.ExtractedPlate = strings.TrimSpace(res.ExtractedPlate)
		update.ExtractedIdentifier = strings.TrimSpace(res.ExtractedIdentifier)
		update.EnrichedAt = &now
	}

	if err := store.UpdateEnrichment(ctx, id, update); err != nil {
		return fmt.Errorf("update enrichment: %w", err)
	}
	return nil
}

// =============================================================================
// ORPHAN MIGRATION
// =============================================================================

// MigrateOrphans marks records that carry a narrative but no status flag as
// complete. Incomplete ones are then picked up by the repair rule. Returns
// the number of records migrated.
func MigrateOrphans(ctx context.Context, store CaseStore) (int, error) {
	records, err := store.ListCases(ctx)
	if err != nil {
		return 0, fmt.Errorf("list cases: %w", err)
	}

	migrated := 0
	for _, rec := range records {
		if rec.EnrichmentStatus != EnrichmentUnset || isBlank(rec.Narrative) {
			continue
		}
		if err := store.UpdateEnrichment(ctx, rec.ID, EnrichmentUpdate{Status: EnrichmentComplete}); err != nil {
			return migrated, fmt.Errorf("migrate %s: %w", rec.ReferenceNumber, err)
		}
		migrated++
	}
	log.Printf("[Queue] Migrated %d orphaned records", migrated)
	return migrated, nil
}
