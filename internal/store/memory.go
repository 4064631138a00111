package store

import (
	"context"
	"sync"

	"github.com/atlet99/requisition-sync/internal/requisition"
)

// MemoryStore keeps records in process memory. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*requisition.Requisition
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*requisition.Requisition)}
}

// Put replaces the record
func (m *MemoryStore) Put(_ context.Context, r *requisition.Requisition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.ID] = r.Clone()
	return nil
}

// Get returns a copy of the record
func (m *MemoryStore) Get(_ context.Context, id string) (*requisition.Requisition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

// UpdateFields applies the fields to a copy and swaps it in only if every field applied
func (m *MemoryStore) UpdateFields(_ context.Context, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}

	updated := current.Clone()
	for name, value := range fields {
		if err := applyField(updated, name, value); err != nil {
			return err
		}
	}
	m.records[id] = updated
	return nil
}

// SetHeadcountPlanID records the linked plan
func (m *MemoryStore) SetHeadcountPlanID(ctx context.Context, id, planID, updatedAt string) error {
	return m.UpdateFields(ctx, id, map[string]any{
		requisition.FieldHeadcountPlanID: planID,
		requisition.FieldUpdatedAt:       updatedAt,
	})
}

// UpdateStatus sets the status and stamps updatedAt
func (m *MemoryStore) UpdateStatus(ctx context.Context, id, status, updatedAt string) error {
	return m.UpdateFields(ctx, id, map[string]any{
		requisition.FieldStatus:    status,
		requisition.FieldUpdatedAt: updatedAt,
	})
}

// Delete removes the record
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

// Len returns the number of records
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Ping always succeeds
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op
func (m *MemoryStore) Close() error { return nil }
