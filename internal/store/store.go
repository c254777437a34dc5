package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"chorecal/internal/model"
	"chorecal/internal/recurrence"
)

const (
	defaultInitialBatch = 10
	defaultTopUpBatch   = 1
)

// Syncer mirrors local mutations to the remote store. Implementations must
// not block: the store calls them while holding its lock.
type Syncer interface {
	PersistTask(t model.Task)
	PersistDelete(id string)
	PersistPerson(p model.Person)
}

type noopSyncer struct{}

func (noopSyncer) PersistTask(model.Task)     {}
func (noopSyncer) PersistDelete(string)       {}
func (noopSyncer) PersistPerson(model.Person) {}

// Options configures a TaskStore. Zero values fall back to defaults.
type Options struct {
	// Account is stamped as OwnerID on locally created tasks and persons.
	Account string

	// Location is the calendar used for day boundaries. If nil, time.Local is used.
	Location *time.Location

	// InitialBatch is the number of occurrences generated when a task starts repeating.
	InitialBatch int
	// TopUpBatch is the number of occurrences added when a repeating task is completed.
	TopUpBatch int
	// MaxOccurrences caps a single generation run (see recurrence.Generator).
	MaxOccurrences int

	Now   func() time.Time
	NewID func() string
}

// TaskStore is the in-memory authoritative task list for the session.
//
// A single mutex serializes every mutation and query, including the
// occurrence top-ups queries trigger. Observers are notified after the lock
// is released.
type TaskStore struct {
	mu      sync.Mutex
	tasks   map[string]model.Task
	persons map[string]model.Person
	syncer  Syncer

	account      string
	loc          *time.Location
	initialBatch int
	topUpBatch   int
	now          func() time.Time
	newID        func() string
	gen          recurrence.Generator

	subsMu  sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

// New constructs an empty TaskStore.
func New(opts Options) *TaskStore {
	s := &TaskStore{
		tasks:        make(map[string]model.Task),
		persons:      make(map[string]model.Person),
		syncer:       noopSyncer{},
		account:      opts.Account,
		loc:          opts.Location,
		initialBatch: opts.InitialBatch,
		topUpBatch:   opts.TopUpBatch,
		now:          opts.Now,
		newID:        opts.NewID,
		subs:         make(map[int]func(Change)),
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.initialBatch <= 0 {
		s.initialBatch = defaultInitialBatch
	}
	if s.topUpBatch <= 0 {
		s.topUpBatch = defaultTopUpBatch
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	s.gen = recurrence.Generator{
		Location:       s.loc,
		MaxOccurrences: opts.MaxOccurrences,
		NewID:          s.newID,
		Now:            s.now,
	}
	return s
}

// SetSyncer injects the collaborator that mirrors mutations outward.
// A nil syncer disables outward sync.
func (s *TaskStore) SetSyncer(sy Syncer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sy == nil {
		sy = noopSyncer{}
	}
	s.syncer = sy
}

// Location returns the calendar used for day boundaries.
func (s *TaskStore) Location() *time.Location {
	return s.loc
}

// Task returns a copy of the task with the given id.
func (s *TaskStore) Task(id string) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return model.Task{}, false
	}
	return t.Clone(), true
}

// Tasks returns copies of every task, ordered by due date.
func (s *TaskStore) Tasks() []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterLocked(func(model.Task) bool { return true })
}

// Len returns the number of tasks held.
func (s *TaskStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// TasksAssignedTo returns every task assigned to personID, ordered by due date.
func (s *TaskStore) TasksAssignedTo(personID string) []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterLocked(func(t model.Task) bool {
		return t.AssignedTo != nil && *t.AssignedTo == personID
	})
}

// AddPerson inserts a new person and returns its id.
func (s *TaskStore) AddPerson(f model.PersonFields) string {
	s.mu.Lock()
	p := model.Person{
		ID:      s.newID(),
		OwnerID: s.account,
		Name:    f.Name,
		Icon:    f.Icon,
		Color:   f.Color,
	}
	s.persons[p.ID] = p
	s.syncer.PersistPerson(p)
	s.mu.Unlock()

	s.notify(Change{Reason: ReasonAdd, Persons: []string{p.ID}})
	return p.ID
}

func (s *TaskStore) GetPerson(id string) (model.Person, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.persons[id]
	return p, ok
}

// Persons returns every known person ordered by name.
func (s *TaskStore) Persons() []model.Person {
	s.mu.Lock()
	out := make([]model.Person, 0, len(s.persons))
	for _, p := range s.persons {
		out = append(out, p)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *TaskStore) filterLocked(keep func(model.Task) bool) []model.Task {
	out := make([]model.Task, 0)
	for _, t := range s.tasks {
		if keep(t) {
			out = append(out, t.Clone())
		}
	}
	sortTasks(out)
	return out
}

func (s *TaskStore) childrenLocked(rootID string) []model.Task {
	out := make([]model.Task, 0)
	for _, t := range s.tasks {
		if t.ParentTaskID != nil && *t.ParentTaskID == rootID {
			out = append(out, t)
		}
	}
	return out
}

// sortTasks orders by due date, then name, then id so results are stable.
func sortTasks(tasks []model.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}
