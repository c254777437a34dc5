package remote

import (
	"context"
	"sort"
	"sync"
)

// Memory is a process-local backend. It serves the offline mode and tests.
type Memory struct {
	mu      sync.RWMutex
	tasks   map[string]TaskRecord
	persons map[string]PersonRecord
}

func NewMemory() *Memory {
	return &Memory{
		tasks:   make(map[string]TaskRecord),
		persons: make(map[string]PersonRecord),
	}
}

func (m *Memory) FetchTasks(ctx context.Context, accountID string) ([]TaskRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]TaskRecord, 0, len(m.tasks))
	for _, r := range m.tasks {
		if r.OwnerID == accountID {
			out = append(out, cloneRecord(r))
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpsertTask(ctx context.Context, rec TaskRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.tasks[rec.ID] = cloneRecord(rec)
	m.mu.Unlock()
	return nil
}

// DeleteTask removes the record. Deleting an unknown id succeeds.
func (m *Memory) DeleteTask(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.tasks, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) FetchPersons(ctx context.Context, accountID string) ([]PersonRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]PersonRecord, 0, len(m.persons))
	for _, r := range m.persons {
		if r.OwnerID == accountID {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpsertPerson(ctx context.Context, rec PersonRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.persons[rec.ID] = rec
	m.mu.Unlock()
	return nil
}

// Task returns the stored record for id.
func (m *Memory) Task(id string) (TaskRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.tasks[id]
	return cloneRecord(r), ok
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tasks)
}

func cloneRecord(r TaskRecord) TaskRecord {
	r.AssignedTo = clonePtr(r.AssignedTo)
	r.Notes = clonePtr(r.Notes)
	r.ParentTaskID = clonePtr(r.ParentTaskID)
	return r
}

func clonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

var _ Client = (*Memory)(nil)
