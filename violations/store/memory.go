// Package store provides in-memory implementations of the violations ports.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/violation-sync/violations"
)

// =============================================================================
// MEMORY STORE - In-memory roster + case store (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	clients []violations.Client
	cases   map[violations.CaseID]violations.CaseRecord
	byRef   map[string]violations.CaseID
	order   []violations.CaseID
}

func NewMemory() *Memory {
	return &Memory{
		cases: make(map[violations.CaseID]violations.CaseRecord),
		byRef: make(map[string]violations.CaseID),
	}
}

// SaveClient adds or replaces a client, keeping roster order.
func (m *Memory) SaveClient(_ context.Context, c violations.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c.Aliases = append([]string(nil), c.Aliases...)
	for i := range m.clients {
		if m.clients[i].ID == c.ID {
			m.clients[i] = c
			return nil
		}
	}
	m.clients = append(m.clients, c)
	return nil
}

func (m *Memory) ListClients(_ context.Context) ([]violations.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]violations.Client, len(m.clients))
	for i, c := range m.clients {
		c.Aliases = append([]string(nil), c.Aliases...)
		out[i] = c
	}
	return out, nil
}

func (m *Memory) GetCase(_ context.Context, id violations.CaseID) (*violations.CaseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.cases[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) GetCaseByReference(_ context.Context, referenceNumber string) (*violations.CaseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byRef[referenceNumber]
	if !ok {
		return nil, nil
	}
	rec := m.cases[id]
	return &rec, nil
}

func (m *Memory) InsertCase(_ context.Context, rec violations.CaseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byRef[rec.ReferenceNumber]; exists {
		return violations.ErrDuplicateReference
	}
	m.cases[rec.ID] = rec
	m.byRef[rec.ReferenceNumber] = rec.ID
	m.order = append(m.order, rec.ID)
	return nil
}

func (m *Memory) UpdateTracking(_ context.Context, id violations.CaseID, u violations.TrackingUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.cases[id]
	if !ok {
		return violations.ErrCaseNotFound
	}
	changedAt := u.ChangedAt
	rec.Status = u.Status
	rec.AmountDue = u.AmountDue
	rec.HearingDate = u.HearingDate
	rec.LastChangeSummary = u.LastChangeSummary
	rec.LastChangeAt = &changedAt
	rec.UpdatedAt = changedAt
	m.cases[id] = rec
	return nil
}

func (m *Memory) UpdateEnrichment(_ context.Context, id violations.CaseID, u violations.EnrichmentUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.cases[id]
	if !ok {
		return violations.ErrCaseNotFound
	}
	rec.EnrichmentStatus = u.Status
	rec.EnrichmentError = u.Error
	if u.FieldsSet {
		rec.Narrative = u.Narrative
		rec.ExtractedPlate = u.ExtractedPlate
		rec.ExtractedIdentifier = u.ExtractedIdentifier
		rec.EnrichedAt = u.EnrichedAt
	}
	rec.UpdatedAt = time.Now().UTC()
	m.cases[id] = rec
	return nil
}

// ListCases returns all records in insertion order.
func (m *Memory) ListCases(_ context.Context) ([]violations.CaseRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]violations.CaseRecord, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.cases[id])
	}
	return out, nil
}

// Put stores a record as-is, bypassing the partial-update split. Test
// fixtures use it to seed enrichment state.
func (m *Memory) Put(rec violations.CaseRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.cases[rec.ID]; !exists {
		m.order = append(m.order, rec.ID)
	}
	m.cases[rec.ID] = rec
	m.byRef[rec.ReferenceNumber] = rec.ID
}

// References returns the stored reference numbers, sorted.
func (m *Memory) References() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	refs := make([]string, 0, len(m.byRef))
	for ref := range m.byRef {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}
