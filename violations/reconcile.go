/*
reconcile.go - The sweep: fetch -> match -> diff -> create/update

PURPOSE:
  One sweep pulls the current external snapshot, matches every row to a
  client and brings the local CaseRecords in line with it.

FLOW:
  1. Load the client roster                      (fatal on error)
  2. Build the alias map                         (fatal on rejected collision)
  3. Fetch the snapshot, hearing date DESC       (fatal on error)
  4. For each row, in source order:
     - blank respondent      -> skip, not counted
     - no matching client    -> skip, not counted
     - blank reference       -> error, counted
     - not stored yet        -> insert, then dispatch enrichment (async)
     - stored                -> diff, update only on change
  5. Return {matched, created, updated, errors}

CONCURRENCY:
  Rows are processed sequentially so writes follow source order. Overlapping
  sweeps are refused by the RunGuard keyed on SweepKey.

IDEMPOTENCY:
  A second sweep over an unchanged snapshot creates nothing and updates
  nothing: inserts only happen for unseen reference numbers and updates only
  when Diff reports a change.

SEE ALSO:
  - diff.go: Change detection
  - matcher.go: Alias map
  - dispatch.go: Enrichment dispatch
*/
package violations

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SweepKey is the fixed run identifier guarded against overlapping sweeps.
const SweepKey = "violation-sweep"

// Sweep defaults.
const (
	DefaultPageSize       = 1000
	DefaultHearingDateCol = "hearing_date"
)

// EngineConfig holds the fixed parameters of a sweep.
type EngineConfig struct {
	Category   string
	PageSize   int
	Links      LinkTemplates
	Collisions CollisionPolicy
}

// Engine runs sweeps.
type Engine struct {
	Roster     ClientRoster
	Source     Source
	Store      CaseStore
	Dispatcher *Dispatcher
	Guard      RunGuard
	Recorder   Recorder
	Config     EngineConfig

	// Now is the clock; tests replace it.
	Now func() time.Time
	// NewID generates case ids.
	NewID func() CaseID
}

// NewEngine creates an engine with defaults filled in. guard and dispatcher
// may be nil.
func NewEngine(roster ClientRoster, source Source, store CaseStore, dispatcher *Dispatcher, guard RunGuard, cfg EngineConfig) *Engine {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Links == (LinkTemplates{}) {
		cfg.Links = DefaultLinkTemplates
	}
	if cfg.Collisions == "" {
		cfg.Collisions = LastWins
	}
	return &Engine{
		Roster:     roster,
		Source:     source,
		Store:      store,
		Dispatcher: dispatcher,
		Guard:      guard,
		Recorder:   NopRecorder{},
		Config:     cfg,
		Now:        func() time.Time { return time.Now().UTC() },
		NewID:      newCaseID,
	}
}

func newCaseID() CaseID {
	return CaseID(uuid.Must(uuid.NewV7()).String())
}

// Sweep runs one reconciliation pass. A returned error means the whole run
// failed; per-record problems only show up in SweepResult.Errors.
func (e *Engine) Sweep(ctx context.Context) (result SweepResult, err error) {
	defer func() {
		e.recorder().SweepFinished(result, err)
	}()

	if e.Guard != nil {
		release, gerr := e.Guard.Acquire(ctx, SweepKey)
		if gerr != nil {
			return SweepResult{}, gerr
		}
		defer release()
	}

	clients, err := e.Roster.ListClients(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("%w: %v", ErrRosterUnavailable, err)
	}

	aliases, err := BuildAliasMap(clients, e.Config.Collisions)
	if err != nil {
		return SweepResult{}, err
	}
	for _, c := range aliases.Collisions() {
		log.Printf("[Sweep] Alias %q claimed by %s and %s, using %s", c.Name, c.Kept, c.Rejected, c.Kept)
	}

	rows, err := e.Source.Fetch(ctx, Query{
		Limit:    e.Config.PageSize,
		Category: e.Config.Category,
		OrderBy:  DefaultHearingDateCol,
		Order:    SortDescending,
	})
	if err != nil {
		return SweepResult{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	log.Printf("[Sweep] Fetched %d records, %d clients (%d names)", len(rows), len(clients), aliases.Len())

	for _, row := range rows {
		if strings.TrimSpace(row.Respondent) == "" {
			continue
		}
		client, ok := aliases.Lookup(row.Respondent)
		if !ok {
			continue
		}
		result.Matched++

		outcome, rerr := e.reconcileRecord(ctx, client, row)
		if rerr != nil {
			result.Errors++
			log.Printf("[Sweep] Error processing %s: %v", row.ReferenceNumber, rerr)
			continue
		}
		switch outcome {
		case outcomeCreated:
			result.Created++
		case outcomeUpdated:
			result.Updated++
		}
	}

	log.Printf("[Sweep] Completed: %d matched, %d created, %d updated, %d errors",
		result.Matched, result.Created, result.Updated, result.Errors)
	return result, nil
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeCreated
	outcomeUpdated
)

func (e *Engine) reconcileRecord(ctx context.Context, client Client, row RawRecord) (out outcome, err error) {
	ref := strings.TrimSpace(row.ReferenceNumber)
	defer func() {
		if r := recover(); r != nil {
			err = &RecordError{ReferenceNumber: ref, Op: "reconcile", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if ref == "" {
		return outcomeUnchanged, &RecordError{Op: "validate", Err: fmt.Errorf("%w: blank reference number", ErrMalformedRecord)}
	}

	incoming, err := incomingFrom(row)
	if err != nil {
		return outcomeUnchanged, &RecordError{ReferenceNumber: ref, Op: "normalize", Err: err}
	}

	existing, err := e.Store.GetCaseByReference(ctx, ref)
	if err != nil {
		return outcomeUnchanged, &RecordError{ReferenceNumber: ref, Op: "lookup", Err: err}
	}

	if existing == nil {
		rec, err := e.newRecord(client, ref, row, incoming)
		if err != nil {
			return outcomeUnchanged, &RecordError{ReferenceNumber: ref, Op: "build", Err: err}
		}
		if err := e.Store.InsertCase(ctx, rec); err != nil {
			return outcomeUnchanged, &RecordError{ReferenceNumber: ref, Op: "insert", Err: err}
		}
		e.Dispatcher.Dispatch(ctx, rec)
		return outcomeCreated, nil
	}

	diff := Diff(*existing, incoming)
	if !diff.HasChanges {
		return outcomeUnchanged, nil
	}

	err = e.Store.UpdateTracking(ctx, existing.ID, TrackingUpdate{
		Status:            incoming.Status,
		AmountDue:         incoming.AmountDue,
		HearingDate:       incoming.HearingDate,
		LastChangeSummary: diff.Summary,
		ChangedAt:         e.Now(),
	})
	if err != nil {
		return outcomeUnchanged, &RecordError{ReferenceNumber: ref, Op: "update", Err: err}
	}
	log.Printf("[Sweep] Updated %s: %s", ref, diff.Summary)
	return outcomeUpdated, nil
}

func incomingFrom(row RawRecord) (Incoming, error) {
	hearing, err := ParseDate(row.HearingDate)
	if err != nil {
		return Incoming{}, err
	}
	return Incoming{
		Status:      strings.TrimSpace(row.Status),
		AmountDue:   NormalizeAmount(row.AmountDue),
		HearingDate: hearing,
	}, nil
}

func (e *Engine) newRecord(client Client, ref string, row RawRecord, incoming Incoming) (CaseRecord, error) {
	violationDate, err := ParseDate(row.ViolationDate)
	if err != nil {
		return CaseRecord{}, err
	}
	document, video := e.Config.Links.Build(ref)
	now := e.Now()

	return CaseRecord{
		ID:                e.NewID(),
		ReferenceNumber:   ref,
		ClientID:          client.ID,
		Respondent:        strings.TrimSpace(row.Respondent),
		HearingDate:       incoming.HearingDate,
		Status:            incoming.Status,
		BaseFine:          NormalizeAmount(row.BaseFine),
		AmountDue:         incoming.AmountDue,
		ViolationDate:     violationDate,
		ViolationLocation: strings.TrimSpace(row.ViolationLocation),
		Plate:             strings.TrimSpace(row.Plate),
		DocumentURL:       document,
		VideoURL:          video,
		EnrichmentStatus:  EnrichmentUnset,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func (e *Engine) recorder() Recorder {
	if e.Recorder == nil {
		return NopRecorder{}
	}
	return e.Recorder
}

// IsBusy reports whether err means another sweep holds the guard.
func IsBusy(err error) bool {
	return errors.Is(err, ErrSweepInProgress)
}
