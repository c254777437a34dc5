package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorecal/internal/model"
)

var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 30, 0, 0, time.UTC)
}

type syncCall struct {
	op string
	id string
}

type fakeSyncer struct {
	mu    sync.Mutex
	calls []syncCall
	tasks map[string]model.Task
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{tasks: make(map[string]model.Task)}
}

func (f *fakeSyncer) PersistTask(t model.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, syncCall{"upsert", t.ID})
	f.tasks[t.ID] = t
}

func (f *fakeSyncer) PersistDelete(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, syncCall{"delete", id})
	delete(f.tasks, id)
}

func (f *fakeSyncer) PersistPerson(p model.Person) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, syncCall{"person", p.ID})
}

func (f *fakeSyncer) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

func (f *fakeSyncer) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func newTestStore(t *testing.T) (*TaskStore, *fakeSyncer) {
	t.Helper()
	n := 0
	s := New(Options{
		Account:  "acct",
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
		NewID: func() string {
			n++
			return fmt.Sprintf("t%03d", n)
		},
	})
	sy := newFakeSyncer()
	s.SetSyncer(sy)
	return s, sy
}

func childrenOf(s *TaskStore, rootID string) []model.Task {
	var out []model.Task
	for _, t := range s.Tasks() {
		if t.ParentTaskID != nil && *t.ParentTaskID == rootID {
			out = append(out, t)
		}
	}
	return out
}

func dayKeys(tasks []model.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.DueDate.Format("2006-01-02"))
	}
	return out
}

func TestAddTask_NonRepeating(t *testing.T) {
	s, sy := newTestStore(t)

	id := s.AddTask(model.TaskFields{Name: "Vacuum", DueDate: day(2024, 1, 2)})

	got, ok := s.Task(id)
	require.True(t, ok)
	assert.Equal(t, "acct", got.OwnerID)
	assert.Equal(t, model.RepeatNever, got.RepeatOption)
	assert.Nil(t, got.ParentTaskID)
	assert.True(t, testNow.Equal(got.CreatedAt))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, []syncCall{{"upsert", id}}, sy.calls)
}

func TestAddTask_RepeatingGeneratesInitialBatch(t *testing.T) {
	s, sy := newTestStore(t)

	id := s.AddTask(model.TaskFields{
		Name:         "Bins",
		DueDate:      day(2024, 1, 1),
		AssignedTo:   model.StringPtr("p1"),
		RepeatOption: model.RepeatWeekly,
	})

	children := childrenOf(s, id)
	require.Len(t, children, defaultInitialBatch)
	assert.Equal(t, "2024-01-08", dayKeys(children)[0])
	for _, c := range children {
		assert.Equal(t, "p1", model.StringValue(c.AssignedTo))
		assert.False(t, c.IsCompleted)
	}
	assert.Equal(t, 1+defaultInitialBatch, sy.count("upsert"))
	assert.Equal(t, syncCall{"upsert", id}, sy.calls[0])
}

func TestAddTask_EmptyStringsBecomeNil(t *testing.T) {
	s, _ := newTestStore(t)
	empty := ""

	id := s.AddTask(model.TaskFields{Name: "x", DueDate: day(2024, 1, 2), AssignedTo: &empty, Notes: &empty})

	got, _ := s.Task(id)
	assert.Nil(t, got.AssignedTo)
	assert.Nil(t, got.Notes)
}

func TestUpdateTask_UnknownIDIsNoOp(t *testing.T) {
	s, sy := newTestStore(t)
	name := "x"

	assert.False(t, s.UpdateTask("missing", model.TaskPatch{Name: &name}))
	assert.Empty(t, sy.calls)
}

func TestUpdateTask_PartialPatch(t *testing.T) {
	s, sy := newTestStore(t)
	id := s.AddTask(model.TaskFields{
		Name:       "Laundry",
		DueDate:    day(2024, 1, 3),
		AssignedTo: model.StringPtr("p1"),
		Notes:      model.StringPtr("whites"),
	})
	sy.reset()

	name := "Laundry (darks)"
	require.True(t, s.UpdateTask(id, model.TaskPatch{Name: &name}))

	got, _ := s.Task(id)
	assert.Equal(t, "Laundry (darks)", got.Name)
	assert.Equal(t, "p1", model.StringValue(got.AssignedTo))
	assert.Equal(t, "whites", model.StringValue(got.Notes))
	assert.True(t, day(2024, 1, 3).Equal(got.DueDate))
	assert.Equal(t, []syncCall{{"upsert", id}}, sy.calls)
}

func TestUpdateTask_EmptyStringClearsReference(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.AddTask(model.TaskFields{Name: "x", DueDate: day(2024, 1, 3), AssignedTo: model.StringPtr("p1")})

	empty := ""
	s.UpdateTask(id, model.TaskPatch{AssignedTo: &empty})

	got, _ := s.Task(id)
	assert.Nil(t, got.AssignedTo)
}

func TestUpdateTask_NoChangeDispatchesNothing(t *testing.T) {
	s, sy := newTestStore(t)
	id := s.AddTask(model.TaskFields{Name: "x", DueDate: day(2024, 1, 3)})
	sy.reset()

	same := "x"
	assert.True(t, s.UpdateTask(id, model.TaskPatch{Name: &same}))
	assert.True(t, s.UpdateTask(id, model.TaskPatch{}))
	assert.Empty(t, sy.calls)
}

func TestUpdateTask_RenamePropagatesToFutureOccurrencesOnly(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.AddTask(model.TaskFields{Name: "Bins", DueDate: day(2023, 12, 11), RepeatOption: model.RepeatWeekly})

	name := "Recycling"
	notes := "blue bin"
	s.UpdateTask(id, model.TaskPatch{Name: &name, Notes: &notes})

	root, _ := s.Task(id)
	assert.Equal(t, "Recycling", root.Name)

	var past, future int
	for _, c := range childrenOf(s, id) {
		if c.DueDate.After(testNow) {
			future++
			assert.Equal(t, "Recycling", c.Name, c.DueDate)
			assert.Equal(t, "blue bin", model.StringValue(c.Notes))
		} else {
			past++
			assert.Equal(t, "Bins", c.Name, c.DueDate)
			assert.Nil(t, c.Notes)
		}
	}
	// 12-18, 12-25 and 01-01 09:30 are not after now.
	assert.Equal(t, 3, past)
	assert.Equal(t, defaultInitialBatch-3, future)
}

func TestUpdateTask_OccurrenceEditDoesNotPropagate(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.AddTask(model.TaskFields{Name: "Bins", DueDate: day(2024, 1, 1), RepeatOption: model.RepeatWeekly})
	children := childrenOf(s, id)
	require.NotEmpty(t, children)

	name := "Moved"
	s.UpdateTask(children[0].ID, model.TaskPatch{Name: &name})

	root, _ := s.Task(id)
	assert.Equal(t, "Bins", root.Name)
	for _, c := range childrenOf(s, id)[1:] {
		assert.Equal(t, "Bins", c.Name)
	}
}

func TestUpdateTask_DueDateChangeRegenerates(t *testing.T) {
	s, sy := newTestStore(t)
	id := s.AddTask(model.TaskFields{Name: "Bins", DueDate: day(2024, 1, 1), RepeatOption: model.RepeatWeekly})
	old := childrenOf(s, id)
	sy.reset()

	due := day(2024, 1, 3)
	s.UpdateTask(id, model.TaskPatch{DueDate: &due})

	children := childrenOf(s, id)
	require.Len(t, children, defaultInitialBatch)
	assert.Equal(t, "2024-01-10", dayKeys(children)[0])
	for _, c := range children {
		assert.Equal(t, time.Wednesday, c.DueDate.Weekday())
	}
	for _, o := range old {
		_, ok := s.Task(o.ID)
		assert.False(t, ok, "stale occurrence %s kept", o.ID)
	}
	assert.Equal(t, len(old), sy.count("delete"))
	assert.Equal(t, 1+defaultInitialBatch, sy.count("upsert"))
}

func TestUpdateTask_CompletingOccurrenceTopsUpRoot(t *testing.T) {
	s, sy := newTestStore(t)
	id := s.AddTask(model.TaskFields{Name: "Dishes", DueDate: day(2024, 1, 1), RepeatOption: model.RepeatDaily})
	before := childrenOf(s, id)
	sy.reset()

	done := true
	s.UpdateTask(before[0].ID, model.TaskPatch{IsCompleted: &done})

	after := childrenOf(s, id)
	assert.Len(t, after, len(before)+defaultTopUpBatch)
	assert.Equal(t, "2024-01-12", dayKeys(after)[len(after)-1])
	assert.Equal(t, 1+defaultTopUpBatch, sy.count("upsert"))

	// Completing again is not a transition and adds nothing.
	s.UpdateTask(before[0].ID, model.TaskPatch{IsCompleted: &done})
	assert.Len(t, childrenOf(s, id), len(after))
}

func TestUpdateTask_CompletingNonRepeatingAddsNothing(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.AddTask(model.TaskFields{Name: "Vacuum", DueDate: day(2024, 1, 2)})

	done := true
	s.UpdateTask(id, model.TaskPatch{IsCompleted: &done})

	assert.Equal(t, 1, s.Len())
}

func TestUpdateTask_RepeatToNeverRemovesFuture(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.AddTask(model.TaskFields{Name: "Bins", DueDate: day(2023, 12, 11), RepeatOption: model.RepeatWeekly})

	never := model.RepeatNever
	s.UpdateTask(id, model.TaskPatch{RepeatOption: &never})

	for _, c := range childrenOf(s, id) {
		assert.False(t, c.DueDate.After(testNow), "future occurrence %s kept", c.DueDate)
	}
	assert.Len(t, childrenOf(s, id), 3)

	// Past occurrences are no longer part of any window.
	s.EnsureOccurrencesThrough(day(2024, 6, 1))
	assert.Len(t, childrenOf(s, id), 3)
}

func TestUpdateTask_NeverToRepeatingGeneratesInitialBatch(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.AddTask(model.TaskFields{Name: "Bins", DueDate: day(2024, 1, 1)})

	weekly := model.RepeatWeekly
	s.UpdateTask(id, model.TaskPatch{RepeatOption: &weekly})

	assert.Len(t, childrenOf(s, id), defaultInitialBatch)
}

func TestUpdateTask_CadenceChangeRegenerates(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.AddTask(model.TaskFields{Name: "Bins", DueDate: day(2024, 1, 1), RepeatOption: model.RepeatWeekly})

	monthly := model.RepeatMonthly
	s.UpdateTask(id, model.TaskPatch{RepeatOption: &monthly})

	children := childrenOf(s, id)
	require.Len(t, children, defaultInitialBatch)
	assert.Equal(t, []string{"2024-02-01", "2024-03-01"}, dayKeys(children)[:2])
	for _, c := range children {
		assert.Equal(t, model.RepeatMonthly, c.RepeatOption)
	}
}

func TestUpdateTask_DueAndCadenceChangeRegenerateOnce(t *testing.T) {
	s, sy := newTestStore(t)
	id := s.AddTask(model.TaskFields{Name: "Bins", DueDate: day(2024, 1, 1), RepeatOption: model.RepeatWeekly})
	sy.reset()

	daily := model.RepeatDaily
	due := day(2024, 1, 5)
	s.UpdateTask(id, model.TaskPatch{RepeatOption: &daily, DueDate: &due})

	children := childrenOf(s, id)
	require.Len(t, children, defaultInitialBatch)
	assert.Equal(t, "2024-01-06", dayKeys(children)[0])
	assert.Equal(t, defaultInitialBatch, sy.count("delete"))
}

func TestDeleteTask_RootCascades(t *testing.T) {
	s, sy := newTestStore(t)
	other := s.AddTask(model.TaskFields{Name: "Vacuum", DueDate: day(2024, 1, 2)})
	id := s.AddTask(model.TaskFields{Name: "Bins", DueDate: day(2024, 1, 1), RepeatOption: model.RepeatWeekly})
	occurrences := len(childrenOf(s, id))
	total := s.Len()
	sy.reset()

	require.True(t, s.DeleteTask(id))

	assert.Equal(t, total-(1+occurrences), s.Len())
	assert.Empty(t, childrenOf(s, id))
	_, ok := s.Task(other)
	assert.True(t, ok)

	assert.Equal(t, 1+occurrences, sy.count("delete"))
	assert.Equal(t, syncCall{"delete", id}, sy.calls[len(sy.calls)-1])
}

func TestDeleteTask_OccurrenceOnly(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.AddTask(model.TaskFields{Name: "Bins", DueDate: day(2024, 1, 1), RepeatOption: model.RepeatWeekly})
	children := childrenOf(s, id)

	require.True(t, s.DeleteTask(children[0].ID))

	assert.Len(t, childrenOf(s, id), len(children)-1)
	_, ok := s.Task(id)
	assert.True(t, ok)
	assert.False(t, s.DeleteTask(children[0].ID))
}

func TestUpcomingTasks_DishesScenario(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.AddTask(model.TaskFields{Name: "Dishes", DueDate: day(2024, 1, 1), RepeatOption: model.RepeatDaily})

	got := s.UpcomingTasks(3)

	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03"}, dayKeys(got))
	assert.Equal(t, id, got[0].ID)

	done := true
	s.UpdateTask(id, model.TaskPatch{IsCompleted: &done})
	assert.Equal(t, []string{"2024-01-02", "2024-01-03"}, dayKeys(s.UpcomingTasks(3)))
}

func TestUpcomingTasks_FillsWindowBeyondInitialBatch(t *testing.T) {
	s, sy := newTestStore(t)
	id := s.AddTask(model.TaskFields{Name: "Dishes", DueDate: day(2024, 1, 1), RepeatOption: model.RepeatDaily})
	sy.reset()

	var changes []Change
	s.Subscribe(func(c Change) { changes = append(changes, c) })

	got := s.UpcomingTasks(30)

	assert.Len(t, got, 30)
	assert.Len(t, childrenOf(s, id), 29)
	assert.Equal(t, 29-defaultInitialBatch, sy.count("upsert"))
	require.Len(t, changes, 1)
	assert.Equal(t, ReasonGenerate, changes[0].Reason)

	// A second query with the same window generates nothing.
	s.UpcomingTasks(30)
	assert.Len(t, changes, 1)
}

func TestUpcomingTasks_NonPositiveDays(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddTask(model.TaskFields{Name: "Dishes", DueDate: day(2024, 1, 1)})

	assert.Empty(t, s.UpcomingTasks(0))
	assert.Empty(t, s.UpcomingTasks(-1))
}

func TestTasksForDayAndWeek(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddTask(model.TaskFields{Name: "Bins", DueDate: day(2024, 1, 1), RepeatOption: model.RepeatWeekly})
	s.AddTask(model.TaskFields{Name: "Vacuum", DueDate: time.Date(2024, 1, 3, 23, 59, 0, 0, time.UTC)})
	s.AddTask(model.TaskFields{Name: "Dentist", DueDate: time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC)})

	forDay := s.TasksForDay(time.Date(2024, 1, 3, 15, 0, 0, 0, time.UTC))
	require.Len(t, forDay, 2)
	assert.Equal(t, "Dentist", forDay[0].Name)
	assert.Equal(t, "Vacuum", forDay[1].Name)

	week := s.TasksForWeek(day(2024, 1, 1))
	names := make([]string, 0, len(week))
	for _, w := range week {
		names = append(names, w.Name)
	}
	assert.Equal(t, []string{"Bins", "Dentist", "Vacuum"}, names)

	// Far in the future the window maintainer fills in the weekly occurrence.
	far := s.TasksForDay(day(2024, 6, 3))
	require.Len(t, far, 1)
	assert.Equal(t, "Bins", far[0].Name)
}

func TestTasksForDay_UsesStoreLocation(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	s := New(Options{Location: loc, Now: func() time.Time { return testNow }})
	s.AddTask(model.TaskFields{Name: "Late", DueDate: time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)})

	assert.Empty(t, s.TasksForDay(time.Date(2024, 1, 1, 12, 0, 0, 0, loc)))
	assert.Len(t, s.TasksForDay(time.Date(2024, 1, 2, 12, 0, 0, 0, loc)), 1)
}

func TestPersons(t *testing.T) {
	s, sy := newTestStore(t)

	zoe := s.AddPerson(model.PersonFields{Name: "Zoe", Icon: "cat", Color: "#f00"})
	ann := s.AddPerson(model.PersonFields{Name: "Ann"})

	p, ok := s.GetPerson(zoe)
	require.True(t, ok)
	assert.Equal(t, "acct", p.OwnerID)
	assert.Equal(t, "cat", p.Icon)

	_, ok = s.GetPerson("missing")
	assert.False(t, ok)

	persons := s.Persons()
	require.Len(t, persons, 2)
	assert.Equal(t, ann, persons[0].ID)
	assert.Equal(t, 2, sy.count("person"))
}

func TestTasksAssignedTo(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddTask(model.TaskFields{Name: "a", DueDate: day(2024, 1, 3), AssignedTo: model.StringPtr("p1")})
	s.AddTask(model.TaskFields{Name: "b", DueDate: day(2024, 1, 2), AssignedTo: model.StringPtr("p1")})
	s.AddTask(model.TaskFields{Name: "c", DueDate: day(2024, 1, 2), AssignedTo: model.StringPtr("p2")})
	s.AddTask(model.TaskFields{Name: "d", DueDate: day(2024, 1, 2)})

	got := s.TasksAssignedTo("p1")
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Name)
	assert.Equal(t, "a", got[1].Name)
	assert.Empty(t, s.TasksAssignedTo("nobody"))
}

func TestReturnedTasksAreCopies(t *testing.T) {
	s, _ := newTestStore(t)
	id := s.AddTask(model.TaskFields{Name: "x", DueDate: day(2024, 1, 2), Notes: model.StringPtr("n")})

	got, _ := s.Task(id)
	*got.Notes = "mutated"

	again, _ := s.Task(id)
	assert.Equal(t, "n", *again.Notes)
}

func TestSubscribe(t *testing.T) {
	s, _ := newTestStore(t)
	var got []Change
	unsubscribe := s.Subscribe(func(c Change) { got = append(got, c) })

	id := s.AddTask(model.TaskFields{Name: "x", DueDate: day(2024, 1, 2)})
	name := "y"
	s.UpdateTask(id, model.TaskPatch{Name: &name})
	s.DeleteTask(id)

	require.Len(t, got, 3)
	assert.Equal(t, Change{Reason: ReasonAdd, Created: []string{id}}, got[0])
	assert.Equal(t, Change{Reason: ReasonUpdate, Updated: []string{id}}, got[1])
	assert.Equal(t, Change{Reason: ReasonDelete, Deleted: []string{id}}, got[2])

	unsubscribe()
	s.AddTask(model.TaskFields{Name: "z", DueDate: day(2024, 1, 2)})
	assert.Len(t, got, 3)
}

func TestSubscriberMayReadStore(t *testing.T) {
	s, _ := newTestStore(t)
	var seen int
	s.Subscribe(func(Change) { seen = s.Len() })

	s.AddTask(model.TaskFields{Name: "x", DueDate: day(2024, 1, 2)})

	assert.Equal(t, 1, seen)
}

func TestConcurrentAccess(t *testing.T) {
	s, _ := newTestStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := s.AddTask(model.TaskFields{Name: fmt.Sprintf("task %d", i), DueDate: day(2024, 1, 2), RepeatOption: model.RepeatDaily})
			s.UpcomingTasks(14)
			name := fmt.Sprintf("renamed %d", i)
			s.UpdateTask(id, model.TaskPatch{Name: &name})
		}(i)
	}
	wg.Wait()

	for _, root := range s.Tasks() {
		if !root.IsRecurrenceRoot() {
			continue
		}
		days := map[string]bool{}
		for _, c := range childrenOf(s, root.ID) {
			key := c.DueDate.Format("2006-01-02")
			assert.False(t, days[key], "duplicate %s for %s", key, root.ID)
			days[key] = true
		}
	}
}
