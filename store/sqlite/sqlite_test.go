package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/violation-sync/store/sqlite"
	"github.com/warp/violation-sync/violations"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func at(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func testCase(id, ref string, hearing *time.Time) violations.CaseRecord {
	created := time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC)
	return violations.CaseRecord{
		ID:                violations.CaseID(id),
		ReferenceNumber:   ref,
		ClientID:          "c-1",
		Respondent:        "ACME TRUCKING",
		HearingDate:       hearing,
		Status:            "SCHEDULED",
		BaseFine:          decimal.RequireFromString("350"),
		AmountDue:         decimal.RequireFromString("350.50"),
		ViolationDate:     at(2024, time.December, 3),
		ViolationLocation: "123 MAIN ST",
		Plate:             "ABC1234",
		DocumentURL:       "https://docs.example/" + ref,
		VideoURL:          "https://video.example/" + ref,
		CreatedAt:         created,
		UpdatedAt:         created,
	}
}

// =============================================================================
// CLIENT TESTS
// =============================================================================

func TestStore_ClientsKeepRosterOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveClient(ctx, violations.Client{ID: "c-b", Name: "Blue Line", Aliases: []string{"BLUE LINE INC"}}))
	require.NoError(t, store.SaveClient(ctx, violations.Client{ID: "c-a", Name: "Acme"}))
	// Updating keeps the original position
	require.NoError(t, store.SaveClient(ctx, violations.Client{ID: "c-b", Name: "Blue Line Corp", Aliases: []string{"BLUE LINE"}}))

	clients, err := store.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, violations.ClientID("c-b"), clients[0].ID)
	assert.Equal(t, "Blue Line Corp", clients[0].Name)
	assert.Equal(t, []string{"BLUE LINE"}, clients[0].Aliases)
	assert.Equal(t, violations.ClientID("c-a"), clients[1].ID)
	assert.Empty(t, clients[1].Aliases)

	require.NoError(t, store.DeleteClient(ctx, "c-b"))
	clients, err = store.ListClients(ctx)
	require.NoError(t, err)
	assert.Len(t, clients, 1)

	err = store.DeleteClient(ctx, "c-b")
	assert.ErrorIs(t, err, violations.ErrClientNotFound)
	assert.True(t, violations.IsNotFound(err))
}

// =============================================================================
// CASE RECORD TESTS
// =============================================================================

func TestStore_InsertAndGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := testCase("case-1", "0123456789", at(2025, time.July, 1))
	require.NoError(t, store.InsertCase(ctx, rec))

	got, err := store.GetCaseByReference(ctx, "0123456789")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.ClientID, got.ClientID)
	assert.Equal(t, "350.50", got.AmountDue.StringFixed(2))
	assert.True(t, rec.BaseFine.Equal(got.BaseFine))
	require.NotNil(t, got.HearingDate)
	assert.True(t, rec.HearingDate.Equal(*got.HearingDate))
	require.NotNil(t, got.ViolationDate)
	assert.True(t, rec.ViolationDate.Equal(*got.ViolationDate))
	assert.Nil(t, got.EnrichedAt)
	assert.Nil(t, got.LastChangeAt)
	assert.Equal(t, violations.EnrichmentUnset, got.EnrichmentStatus)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

	byID, err := store.GetCase(ctx, "case-1")
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "0123456789", byID.ReferenceNumber)
}

func TestStore_MissingCaseReturnsNil(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.GetCaseByReference(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, got)

	got, err = store.GetCase(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_ReferenceNumberUnique(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertCase(ctx, testCase("case-1", "0123456789", nil)))
	err := store.InsertCase(ctx, testCase("case-2", "0123456789", nil))

	assert.ErrorIs(t, err, violations.ErrDuplicateReference)
}

func TestStore_UpdateTrackingLeavesEnrichmentAlone(t *testing.T) {
	// GIVEN: An enriched record
	// WHEN: The sweep writes a tracking update
	// THEN: Only tracking and audit columns change

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.InsertCase(ctx, testCase("case-1", "1", at(2025, time.July, 1))))
	require.NoError(t, store.UpdateEnrichment(ctx, "case-1", violations.EnrichmentUpdate{
		Status: violations.EnrichmentComplete, FieldsSet: true,
		Narrative: "Idling", ExtractedPlate: "XYZ", ExtractedIdentifier: "USDOT 1",
		EnrichedAt: at(2025, time.May, 2),
	}))

	changed := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpdateTracking(ctx, "case-1", violations.TrackingUpdate{
		Status:            "DEFAULTED",
		AmountDue:         decimal.RequireFromString("525"),
		HearingDate:       nil,
		LastChangeSummary: "Status: 'SCHEDULED' → 'DEFAULTED'",
		ChangedAt:         changed,
	}))

	got, err := store.GetCase(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, "DEFAULTED", got.Status)
	assert.Equal(t, "525.00", got.AmountDue.StringFixed(2))
	assert.Nil(t, got.HearingDate)
	assert.Equal(t, "Status: 'SCHEDULED' → 'DEFAULTED'", got.LastChangeSummary)
	require.NotNil(t, got.LastChangeAt)
	assert.True(t, changed.Equal(*got.LastChangeAt))

	assert.Equal(t, violations.EnrichmentComplete, got.EnrichmentStatus)
	assert.Equal(t, "Idling", got.Narrative)
	assert.Equal(t, "XYZ", got.ExtractedPlate)
	assert.Equal(t, "USDOT 1", got.ExtractedIdentifier)
	assert.Equal(t, "350", got.BaseFine.String())
}

func TestStore_UpdateEnrichmentStatusOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := testCase("case-1", "1", nil)
	rec.Narrative = "earlier"
	require.NoError(t, store.InsertCase(ctx, rec))

	require.NoError(t, store.UpdateEnrichment(ctx, "case-1", violations.EnrichmentUpdate{
		Status: violations.EnrichmentFailed,
		Error:  "timeout",
	}))

	got, err := store.GetCase(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, violations.EnrichmentFailed, got.EnrichmentStatus)
	assert.Equal(t, "timeout", got.EnrichmentError)
	assert.Equal(t, "earlier", got.Narrative)
}

func TestStore_UpdatesOnMissingRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.UpdateTracking(ctx, "missing", violations.TrackingUpdate{ChangedAt: time.Now()})
	assert.ErrorIs(t, err, violations.ErrCaseNotFound)

	err = store.UpdateEnrichment(ctx, "missing", violations.EnrichmentUpdate{Status: violations.EnrichmentPending})
	assert.ErrorIs(t, err, violations.ErrCaseNotFound)
}

func TestStore_ListCasesLatestHearingFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertCase(ctx, testCase("case-1", "2022", at(2022, time.March, 1))))
	require.NoError(t, store.InsertCase(ctx, testCase("case-2", "undated", nil)))
	require.NoError(t, store.InsertCase(ctx, testCase("case-3", "2026", at(2026, time.March, 1))))
	other := testCase("case-4", "2024", at(2024, time.March, 1))
	other.ClientID = "c-2"
	require.NoError(t, store.InsertCase(ctx, other))

	records, err := store.ListCases(ctx)
	require.NoError(t, err)
	var refs []string
	for _, r := range records {
		refs = append(refs, r.ReferenceNumber)
	}
	assert.Equal(t, []string{"2026", "2024", "2022", "undated"}, refs)

	mine, err := store.ListCasesByClient(ctx, "c-2")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "2024", mine[0].ReferenceNumber)
}

func TestStore_ServesAsEngineBackend(t *testing.T) {
	store := newTestStore(t)
	var _ violations.CaseStore = store
	var _ violations.ClientRoster = store
}

// =============================================================================
// SWEEP RUN TESTS
// =============================================================================

func TestStore_SweepRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	started := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	run := sqlite.SweepRun{ID: "sweep-1", Trigger: "scheduler", Status: sqlite.RunRunning, StartedAt: started}
	require.NoError(t, store.SaveSweepRun(ctx, run))

	completed := started.Add(time.Minute)
	run.Status = sqlite.RunCompleted
	run.Result = violations.SweepResult{Matched: 3, Created: 1, Updated: 1}
	run.CompletedAt = &completed
	require.NoError(t, store.SaveSweepRun(ctx, run))

	require.NoError(t, store.SaveSweepRun(ctx, sqlite.SweepRun{
		ID: "sweep-2", Trigger: "api", Status: sqlite.RunSkipped,
		Error: "sweep already in progress", StartedAt: started.Add(time.Hour),
	}))

	all, err := store.GetSweepRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "sweep-2", all[0].ID, "newest first")

	done, err := store.GetSweepRuns(ctx, sqlite.RunCompleted, 10)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, violations.SweepResult{Matched: 3, Created: 1, Updated: 1}, done[0].Result)
	assert.Equal(t, "scheduler", done[0].Trigger)
	require.NotNil(t, done[0].CompletedAt)
	assert.True(t, completed.Equal(*done[0].CompletedAt))

	require.NoError(t, store.Reset(ctx))
	all, err = store.GetSweepRuns(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}
