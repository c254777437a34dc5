package store

import (
	"sort"

	"chorecal/internal/model"
)

// Reason names what caused a Change.
type Reason string

const (
	ReasonAdd      Reason = "add"
	ReasonUpdate   Reason = "update"
	ReasonDelete   Reason = "delete"
	ReasonGenerate Reason = "generate"
	ReasonMerge    Reason = "merge"
	ReasonSeed     Reason = "seed"
)

// Change describes the ids touched by one store operation.
type Change struct {
	Reason  Reason   `json:"reason"`
	Created []string `json:"created,omitempty"`
	Updated []string `json:"updated,omitempty"`
	Deleted []string `json:"deleted,omitempty"`
	Persons []string `json:"persons,omitempty"`
}

func (c Change) Empty() bool {
	return len(c.Created) == 0 && len(c.Updated) == 0 && len(c.Deleted) == 0 && len(c.Persons) == 0
}

// Subscribe registers fn to be called after every mutation, occurrence
// top-up and merge. It returns a function that removes the subscription.
// fn runs on the mutating goroutine and must not block for long.
func (s *TaskStore) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *TaskStore) notify(c Change) {
	if c.Empty() {
		return
	}
	s.subsMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// recorder collects the effects of one operation in the order they happen so
// they can be mirrored outward and reported to observers.
type recorder struct {
	change  Change
	touched map[string]bool
	ops     []syncOp
}

type syncOp struct {
	id     string
	delete bool
}

func newRecorder(reason Reason) *recorder {
	return &recorder{change: Change{Reason: reason}, touched: make(map[string]bool)}
}

func (r *recorder) created(id string) {
	r.change.Created = append(r.change.Created, id)
	r.touched[id] = true
	r.ops = append(r.ops, syncOp{id: id})
}

func (r *recorder) updated(id string) {
	if r.touched[id] {
		return
	}
	r.change.Updated = append(r.change.Updated, id)
	r.touched[id] = true
	r.ops = append(r.ops, syncOp{id: id})
}

func (r *recorder) deleted(id string) {
	r.change.Deleted = append(r.change.Deleted, id)
	r.ops = append(r.ops, syncOp{id: id, delete: true})
}

// dispatchLocked hands every recorded write to the syncer, in order, using
// the task values as they stand at the end of the operation.
func (s *TaskStore) dispatchLocked(r *recorder) {
	for _, op := range r.ops {
		if op.delete {
			s.syncer.PersistDelete(op.id)
			continue
		}
		t, ok := s.tasks[op.id]
		if !ok {
			continue
		}
		s.syncer.PersistTask(t.Clone())
	}
}

// sameTask reports whether two copies carry identical field values.
func sameTask(a, b model.Task) bool {
	return a.ID == b.ID &&
		a.OwnerID == b.OwnerID &&
		a.Name == b.Name &&
		a.DueDate.Equal(b.DueDate) &&
		a.IsCompleted == b.IsCompleted &&
		nullableEqual(a.AssignedTo, b.AssignedTo) &&
		nullableEqual(a.Notes, b.Notes) &&
		a.RepeatOption == b.RepeatOption &&
		nullableEqual(a.ParentTaskID, b.ParentTaskID) &&
		a.CreatedAt.Equal(b.CreatedAt)
}

func nullableEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
