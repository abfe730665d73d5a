package violations_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/violation-sync/violations"
	"github.com/warp/violation-sync/violations/store"
)

func hearingOn(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func seedQueue(mem *store.Memory) {
	mem.Put(violations.CaseRecord{ID: "c-old", ReferenceNumber: "old", HearingDate: hearingOn(2019, time.May, 1)})
	mem.Put(violations.CaseRecord{ID: "c-new", ReferenceNumber: "new", HearingDate: hearingOn(2025, time.May, 1)})
	mem.Put(violations.CaseRecord{ID: "c-mid", ReferenceNumber: "mid", HearingDate: hearingOn(2023, time.May, 1),
		EnrichmentStatus: violations.EnrichmentComplete, Narrative: "n", ExtractedPlate: "P"})
	mem.Put(violations.CaseRecord{ID: "c-orphan", ReferenceNumber: "orphan", HearingDate: hearingOn(2022, time.May, 1),
		Narrative: "n", ExtractedIdentifier: "I"})
	mem.Put(violations.CaseRecord{ID: "c-done", ReferenceNumber: "done", HearingDate: hearingOn(2025, time.June, 1),
		EnrichmentStatus: violations.EnrichmentComplete, Narrative: "n", ExtractedPlate: "P", ExtractedIdentifier: "I"})
}

// =============================================================================
// DRAIN TESTS
// =============================================================================

func TestDrainer_Queue(t *testing.T) {
	mem := store.NewMemory()
	seedQueue(mem)
	d := violations.NewDrainer(mem, nil, time.Time{})

	items, err := d.Queue(context.Background())
	require.NoError(t, err)

	var refs []string
	for _, item := range items {
		refs = append(refs, item.Record.ReferenceNumber)
	}
	assert.Equal(t, []string{"new", "mid", "orphan"}, refs)
	assert.Equal(t, violations.ReasonRepair, items[1].Reason)
	assert.Equal(t, violations.ReasonOrphaned, items[2].Reason)
}

func TestDrainer_DrainDispatchesHeadOnly(t *testing.T) {
	// GIVEN: Three queued records
	// WHEN: Draining with a limit of two
	// THEN: The two latest hearings are dispatched; repair counts cover the full queue

	mem := store.NewMemory()
	seedQueue(mem)
	worker := &fakeWorker{}
	dispatcher := violations.NewDispatcher(worker, nil)
	d := violations.NewDrainer(mem, dispatcher, time.Time{})

	result, err := d.Drain(context.Background(), 2)
	require.NoError(t, err)
	dispatcher.Wait()

	assert.Equal(t, violations.DrainResult{Candidates: 3, Dispatched: 2, Repairs: 1, Orphans: 1}, result)
	assert.ElementsMatch(t, []string{"new", "mid"}, worker.refs())
}

func TestDrainer_DrainAll(t *testing.T) {
	mem := store.NewMemory()
	seedQueue(mem)
	worker := &fakeWorker{}
	dispatcher := violations.NewDispatcher(worker, nil)
	d := violations.NewDrainer(mem, dispatcher, time.Time{})

	result, err := d.Drain(context.Background(), 0)
	require.NoError(t, err)
	dispatcher.Wait()

	assert.Equal(t, 3, result.Dispatched)
	assert.Len(t, worker.refs(), 3)
}

func TestDrainer_NoWorkerDispatchesNothing(t *testing.T) {
	// GIVEN: Two never-attempted records and no enrichment worker configured
	// WHEN: Draining
	// THEN: Both are candidates but none is reported as dispatched

	mem := store.NewMemory()
	mem.Put(violations.CaseRecord{ID: "c-1", ReferenceNumber: "1", HearingDate: hearingOn(2025, time.May, 1)})
	mem.Put(violations.CaseRecord{ID: "c-2", ReferenceNumber: "2", HearingDate: hearingOn(2024, time.May, 1)})
	d := violations.NewDrainer(mem, violations.NewDispatcher(nil, nil), time.Time{})

	result, err := d.Drain(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, violations.DrainResult{Candidates: 2}, result)
}

func TestDrainer_CustomFloor(t *testing.T) {
	mem := store.NewMemory()
	seedQueue(mem)
	d := violations.NewDrainer(mem, nil, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))

	items, err := d.Queue(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "new", items[0].Record.ReferenceNumber)
}

// =============================================================================
// RESULT INTAKE TESTS
// =============================================================================

func TestApplyEnrichmentResult_Complete(t *testing.T) {
	mem := store.NewMemory()
	mem.Put(violations.CaseRecord{ID: "c-1", ReferenceNumber: "1", EnrichmentStatus: violations.EnrichmentPending})
	now := time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)

	err := violations.ApplyEnrichmentResult(context.Background(), mem, "c-1", violations.EnrichmentResult{
		Status:              violations.EnrichmentComplete,
		Narrative:           " Bus idling at curb ",
		ExtractedPlate:      "BUS42",
		ExtractedIdentifier: "USDOT 999",
	}, now)
	require.NoError(t, err)

	rec, _ := mem.GetCase(context.Background(), "c-1")
	assert.Equal(t, violations.EnrichmentComplete, rec.EnrichmentStatus)
	assert.Equal(t, "Bus idling at curb", rec.Narrative)
	assert.Equal(t, "BUS42", rec.ExtractedPlate)
	require.NotNil(t, rec.EnrichedAt)
	assert.Equal(t, now, *rec.EnrichedAt)
	assert.False(t, violations.NeedsEnrichment(*rec))
}

func TestApplyEnrichmentResult_FailedKeepsPreviousOutput(t *testing.T) {
	mem := store.NewMemory()
	mem.Put(violations.CaseRecord{ID: "c-1", ReferenceNumber: "1", Narrative: "earlier", ExtractedPlate: "P"})

	err := violations.ApplyEnrichmentResult(context.Background(), mem, "c-1", violations.EnrichmentResult{
		Status: violations.EnrichmentFailed,
		Error:  "video not found",
	}, time.Now())
	require.NoError(t, err)

	rec, _ := mem.GetCase(context.Background(), "c-1")
	assert.Equal(t, violations.EnrichmentFailed, rec.EnrichmentStatus)
	assert.Equal(t, "video not found", rec.EnrichmentError)
	assert.Equal(t, "earlier", rec.Narrative)
	assert.Equal(t, "P", rec.ExtractedPlate)
	assert.Nil(t, rec.EnrichedAt)
}

func TestApplyEnrichmentResult_Pending(t *testing.T) {
	mem := store.NewMemory()
	mem.Put(violations.CaseRecord{ID: "c-1", ReferenceNumber: "1"})

	err := violations.ApplyEnrichmentResult(context.Background(), mem, "c-1",
		violations.EnrichmentResult{Status: violations.EnrichmentPending}, time.Now())
	require.NoError(t, err)

	rec, _ := mem.GetCase(context.Background(), "c-1")
	assert.Equal(t, violations.EnrichmentPending, rec.EnrichmentStatus)
}

func TestApplyEnrichmentResult_Rejects(t *testing.T) {
	mem := store.NewMemory()
	mem.Put(violations.CaseRecord{ID: "c-1", ReferenceNumber: "1"})
	ctx := context.Background()

	err := violations.ApplyEnrichmentResult(ctx, mem, "c-1", violations.EnrichmentResult{Status: "done"}, time.Now())
	assert.ErrorIs(t, err, violations.ErrInvalidEnrichmentStatus)

	err = violations.ApplyEnrichmentResult(ctx, mem, "c-1", violations.EnrichmentResult{}, time.Now())
	assert.ErrorIs(t, err, violations.ErrInvalidEnrichmentStatus)

	err = violations.ApplyEnrichmentResult(ctx, mem, "missing", violations.EnrichmentResult{Status: violations.EnrichmentFailed}, time.Now())
	assert.True(t, violations.IsNotFound(err))
}

// =============================================================================
// ORPHAN MIGRATION TESTS
// =============================================================================

func TestMigrateOrphans(t *testing.T) {
	// GIVEN: Two orphans (one incomplete), one untouched record, one never attempted
	// WHEN: Migrating
	// THEN: Orphans become complete; the incomplete one is now a repair job

	mem := store.NewMemory()
	mem.Put(violations.CaseRecord{ID: "c-1", ReferenceNumber: "1", Narrative: "n", ExtractedPlate: "P", ExtractedIdentifier: "I"})
	mem.Put(violations.CaseRecord{ID: "c-2", ReferenceNumber: "2", Narrative: "n", ExtractedPlate: "P"})
	mem.Put(violations.CaseRecord{ID: "c-3", ReferenceNumber: "3"})
	mem.Put(violations.CaseRecord{ID: "c-4", ReferenceNumber: "4", EnrichmentStatus: violations.EnrichmentFailed, Narrative: "n"})
	ctx := context.Background()

	migrated, err := violations.MigrateOrphans(ctx, mem)
	require.NoError(t, err)
	assert.Equal(t, 2, migrated)

	rec2, _ := mem.GetCase(ctx, "c-2")
	assert.Equal(t, violations.EnrichmentComplete, rec2.EnrichmentStatus)
	assert.Equal(t, "n", rec2.Narrative, "output fields are left as they were")
	reason, ok := violations.SelectReason(*rec2)
	assert.True(t, ok)
	assert.Equal(t, violations.ReasonRepair, reason)

	rec3, _ := mem.GetCase(ctx, "c-3")
	assert.Equal(t, violations.EnrichmentUnset, rec3.EnrichmentStatus)

	again, err := violations.MigrateOrphans(ctx, mem)
	require.NoError(t, err)
	assert.Zero(t, again)
}
