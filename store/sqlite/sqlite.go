/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the client roster, the case record store and the sweep run
  history using SQLite.

INTERFACES IMPLEMENTED:
  violations.ClientRoster: Bulk roster read
  violations.CaseStore:    Case records (lookup, insert, partial updates)

KEY TABLES:
  clients:       Roster entries with their alias list (JSON)
  case_records:  One row per external reference number
  sweep_runs:    History of sweep attempts for audit and the API

PARTIAL UPDATES:
  UpdateTracking and UpdateEnrichment each touch a disjoint column set.
  The sweep never writes enrichment columns and the enrichment path never
  writes status/amount/hearing/audit columns.

INDEXES:
  - idx_case_records_reference: UNIQUE, enforces one record per reference
  - idx_case_records_hearing:   Queue ordering
  - idx_case_records_enrichment: Queue selection

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, plus WAL mode so readers don't block.

USAGE:
  store, err := sqlite.New("./data/violations.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - violations/ports.go: Interface definitions
  - violations/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/violation-sync/violations"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Client roster
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		aliases_json TEXT NOT NULL DEFAULT '[]',
		position INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Case records (one per external reference number)
	CREATE TABLE IF NOT EXISTS case_records (
		id TEXT PRIMARY KEY,
		reference_number TEXT NOT NULL,
		client_id TEXT NOT NULL,
		respondent TEXT NOT NULL,
		hearing_date TEXT,
		status TEXT NOT NULL DEFAULT '',
		base_fine TEXT NOT NULL DEFAULT '0',
		amount_due TEXT NOT NULL DEFAULT '0',
		violation_date TEXT,
		violation_location TEXT NOT NULL DEFAULT '',
		plate TEXT NOT NULL DEFAULT '',
		document_url TEXT NOT NULL DEFAULT '',
		video_url TEXT NOT NULL DEFAULT '',
		enrichment_status TEXT NOT NULL DEFAULT '',
		narrative TEXT NOT NULL DEFAULT '',
		extracted_plate TEXT NOT NULL DEFAULT '',
		extracted_identifier TEXT NOT NULL DEFAULT '',
		enrichment_error TEXT NOT NULL DEFAULT '',
		enriched_at TEXT,
		last_change_summary TEXT NOT NULL DEFAULT '',
		last_change_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_case_records_reference
		ON case_records(reference_number);
	CREATE INDEX IF NOT EXISTS idx_case_records_client
		ON case_records(client_id);
	CREATE INDEX IF NOT EXISTS idx_case_records_hearing
		ON case_records(hearing_date DESC);
	CREATE INDEX IF NOT EXISTS idx_case_records_enrichment
		ON case_records(enrichment_status);

	-- Sweep runs (history of scheduled and manual sweeps)
	CREATE TABLE IF NOT EXISTS sweep_runs (
		id TEXT PRIMARY KEY,
		trigger_source TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		matched INTEGER DEFAULT 0,
		created INTEGER DEFAULT 0,
		updated INTEGER DEFAULT 0,
		errors INTEGER DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sweep_runs_status
		ON sweep_runs(status);
	CREATE INDEX IF NOT EXISTS idx_sweep_runs_started
		ON sweep_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CLIENT ROSTER
// =============================================================================

// SaveClient inserts or replaces a client. New clients go to the end of the
// roster; updates keep their position.
func (s *Store) SaveClient(ctx context.Context, c violations.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	aliases := c.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	aliasesJSON, err := json.Marshal(aliases)
	if err != nil {
		return fmt.Errorf("failed to encode aliases: %w", err)
	}

	now := formatTime(time.Now().UTC())
	query := `
		INSERT INTO clients (id, name, aliases_json, position, created_at, updated_at)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM clients), ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			aliases_json = excluded.aliases_json,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query, c.ID, c.Name, string(aliasesJSON), now, now)
	if err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

// ListClients returns the roster in insertion order.
func (s *Store) ListClients(ctx context.Context) ([]violations.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, aliases_json FROM clients ORDER BY position ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []violations.Client
	for rows.Next() {
		var c violations.Client
		var aliasesJSON string
		if err := rows.Scan(&c.ID, &c.Name, &aliasesJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(aliasesJSON), &c.Aliases); err != nil {
			return nil, fmt.Errorf("client %s: bad aliases: %w", c.ID, err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// DeleteClient removes a client from the roster. Case records already matched
// to it keep their client ID.
func (s *Store) DeleteClient(ctx context.Context, id violations.ClientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM clients WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return violations.ErrClientNotFound
	}
	return nil
}

// =============================================================================
// CASE STORE (violations.CaseStore interface)
// =============================================================================

const caseColumns = `
	id, reference_number, client_id, respondent, hearing_date, status,
	base_fine, amount_due, violation_date, violation_location, plate,
	document_url, video_url, enrichment_status, narrative, extracted_plate,
	extracted_identifier, enrichment_error, enriched_at, last_change_summary,
	last_change_at, created_at, updated_at
`

// GetCase returns a record by id, or nil if absent.
func (s *Store) GetCase(ctx context.Context, id violations.CaseID) (*violations.CaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getCaseWhere(ctx, "id = ?", id)
}

// GetCaseByReference returns a record by reference number, or nil if absent.
func (s *Store) GetCaseByReference(ctx context.Context, referenceNumber string) (*violations.CaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getCaseWhere(ctx, "reference_number = ?", referenceNumber)
}

func (s *Store) getCaseWhere(ctx context.Context, where string, arg any) (*violations.CaseRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+caseColumns+" FROM case_records WHERE "+where, arg)
	rec, err := scanCase(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// InsertCase adds a new record. Returns violations.ErrDuplicateReference if
// the reference number is already stored.
func (s *Store) InsertCase(ctx context.Context, rec violations.CaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `INSERT INTO case_records (` + caseColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.ReferenceNumber,
		rec.ClientID,
		rec.Respondent,
		nullTime(rec.HearingDate),
		rec.Status,
		rec.BaseFine.String(),
		rec.AmountDue.String(),
		nullTime(rec.ViolationDate),
		rec.ViolationLocation,
		rec.Plate,
		rec.DocumentURL,
		rec.VideoURL,
		string(rec.EnrichmentStatus),
		rec.Narrative,
		rec.ExtractedPlate,
		rec.ExtractedIdentifier,
		rec.EnrichmentError,
		nullTime(rec.EnrichedAt),
		rec.LastChangeSummary,
		nullTime(rec.LastChangeAt),
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return violations.ErrDuplicateReference
		}
		return fmt.Errorf("failed to insert case record: %w", err)
	}
	return nil
}

// UpdateTracking writes the sweep-owned columns.
func (s *Store) UpdateTracking(ctx context.Context, id violations.CaseID, u violations.TrackingUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE case_records SET
			status = ?,
			amount_due = ?,
			hearing_date = ?,
			last_change_summary = ?,
			last_change_at = ?,
			updated_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		u.Status,
		u.AmountDue.String(),
		nullTime(u.HearingDate),
		u.LastChangeSummary,
		formatTime(u.ChangedAt),
		formatTime(u.ChangedAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update case record: %w", err)
	}
	return requireOneRow(res)
}

// UpdateEnrichment writes the enrichment-owned columns.
func (s *Store) UpdateEnrichment(ctx context.Context, id violations.CaseID, u violations.EnrichmentUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		res sql.Result
		err error
	)
	now := formatTime(time.Now().UTC())
	if u.FieldsSet {
		res, err = s.db.ExecContext(ctx, `
			UPDATE case_records SET
				enrichment_status = ?,
				enrichment_error = ?,
				narrative = ?,
				extracted_plate = ?,
				extracted_identifier = ?,
				enriched_at = ?,
				updated_at = ?
			WHERE id = ?
		`, string(u.Status), u.Error, u.Narrative, u.ExtractedPlate, u.ExtractedIdentifier,
			nullTime(u.EnrichedAt), now, id)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE case_records SET
				enrichment_status = ?,
				enrichment_error = ?,
				updated_at = ?
			WHERE id = ?
		`, string(u.Status), u.Error, now, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update enrichment: %w", err)
	}
	return requireOneRow(res)
}

// ListCases returns every record, latest hearing date first.
func (s *Store) ListCases(ctx context.Context) ([]violations.CaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryCases(ctx,
		"SELECT "+caseColumns+" FROM case_records ORDER BY hearing_date IS NULL, hearing_date DESC, created_at ASC")
}

// ListCasesByClient returns the records matched to one client.
func (s *Store) ListCasesByClient(ctx context.Context, clientID violations.ClientID) ([]violations.CaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryCases(ctx,
		"SELECT "+caseColumns+" FROM case_records WHERE client_id = ? ORDER BY hearing_date IS NULL, hearing_date DESC",
		clientID)
}

func (s *Store) queryCases(ctx context.Context, query string, args ...any) ([]violations.CaseRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []violations.CaseRecord
	for rows.Next() {
		rec, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCase(row scanner) (violations.CaseRecord, error) {
	var (
		rec                                        violations.CaseRecord
		hearing, violation, enrichedAt, lastChange sql.NullString
		baseFine, amountDue, enrichment            string
		createdAt, updatedAt                       string
	)
	err := row.Scan(
		&rec.ID, &rec.ReferenceNumber, &rec.ClientID, &rec.Respondent, &hearing, &rec.Status,
		&baseFine, &amountDue, &violation, &rec.ViolationLocation, &rec.Plate,
		&rec.DocumentURL, &rec.VideoURL, &enrichment, &rec.Narrative, &rec.ExtractedPlate,
		&rec.ExtractedIdentifier, &rec.EnrichmentError, &enrichedAt, &rec.LastChangeSummary,
		&lastChange, &createdAt, &updatedAt,
	)
	if err != nil {
		return violations.CaseRecord{}, err
	}

	rec.HearingDate = parseNullTime(hearing)
	rec.ViolationDate = parseNullTime(violation)
	rec.EnrichedAt = parseNullTime(enrichedAt)
	rec.LastChangeAt = parseNullTime(lastChange)
	rec.BaseFine = parseDecimal(baseFine)
	rec.AmountDue = parseDecimal(amountDue)
	rec.EnrichmentStatus = violations.EnrichmentStatus(enrichment)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return rec, nil
}

// =============================================================================
// SWEEP RUNS
// =============================================================================

// SweepRun is one recorded sweep attempt.
type SweepRun struct {
	ID          string
	Trigger     string // scheduler, api, cli
	Status      string // running, completed, failed, skipped
	Result      violations.SweepResult
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// Sweep run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunSkipped   = "skipped"
)

// SaveSweepRun inserts or updates a sweep run.
func (s *Store) SaveSweepRun(ctx context.Context, r SweepRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO sweep_runs (id, trigger_source, status, matched, created, updated, errors,
			error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			matched = excluded.matched,
			created = excluded.created,
			updated = excluded.updated,
			errors = excluded.errors,
			error = excluded.error,
			completed_at = excluded.completed_at
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Trigger, r.Status,
		r.Result.Matched, r.Result.Created, r.Result.Updated, r.Result.Errors,
		r.Error, formatTime(r.StartedAt), nullTime(r.CompletedAt),
	)
	return err
}

// GetSweepRuns returns sweep runs, newest first. Empty status means all.
func (s *Store) GetSweepRuns(ctx context.Context, status string, limit int) ([]SweepRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, trigger_source, status, matched, created, updated, errors, error,
			started_at, completed_at
		FROM sweep_runs
	`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []SweepRun
	for rows.Next() {
		var r SweepRun
		var startedAt string
		var completedAt sql.NullString
		if err := rows.Scan(
			&r.ID, &r.Trigger, &r.Status,
			&r.Result.Matched, &r.Result.Created, &r.Result.Updated, &r.Result.Errors,
			&r.Error, &startedAt, &completedAt,
		); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		r.CompletedAt = parseNullTime(completedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Reset deletes all data. Test helper; no route exposes it.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"case_records", "clients", "sweep_runs"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

// timeLayout is fixed-width so stored timestamps sort chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return violations.ErrCaseNotFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
