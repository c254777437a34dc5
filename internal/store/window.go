package store

import (
	"sort"
	"time"

	"chorecal/internal/model"
	"chorecal/internal/recurrence"
)

// EnsureOccurrencesThrough generates, for every recurrence root, the
// occurrences due before date that do not exist yet.
func (s *TaskStore) EnsureOccurrencesThrough(date time.Time) {
	s.mu.Lock()
	rec := s.ensureLocked(date)
	s.mu.Unlock()

	s.notify(rec.change)
}

func (s *TaskStore) ensureLocked(horizon time.Time) *recorder {
	rec := newRecorder(ReasonGenerate)

	roots := make([]model.Task, 0)
	for _, t := range s.tasks {
		if t.IsRecurrenceRoot() {
			roots = append(roots, t)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].ID < roots[j].ID })

	for _, root := range roots {
		s.generateLocked(root, recurrence.Limit{Horizon: horizon}, rec)
	}
	s.dispatchLocked(rec)
	return rec
}

// TasksForDay returns the tasks due on date's calendar day.
func (s *TaskStore) TasksForDay(date time.Time) []model.Task {
	start := recurrence.StartOfDay(date, s.loc)
	return s.rangeQuery(start, start.AddDate(0, 0, 1), func(model.Task) bool { return true })
}

// TasksForWeek returns the tasks due in the seven calendar days starting on
// start's day.
func (s *TaskStore) TasksForWeek(start time.Time) []model.Task {
	from := recurrence.StartOfDay(start, s.loc)
	return s.rangeQuery(from, from.AddDate(0, 0, 7), func(model.Task) bool { return true })
}

// UpcomingTasks returns open tasks due from the start of today through the
// next days calendar days, today included.
func (s *TaskStore) UpcomingTasks(days int) []model.Task {
	if days <= 0 {
		return []model.Task{}
	}
	today := recurrence.StartOfDay(s.now(), s.loc)
	return s.rangeQuery(today, today.AddDate(0, 0, days), func(t model.Task) bool { return !t.IsCompleted })
}

// rangeQuery fills the window through end, then returns the tasks due in
// [start, end) accepted by keep.
func (s *TaskStore) rangeQuery(start, end time.Time, keep func(model.Task) bool) []model.Task {
	s.mu.Lock()
	rec := s.ensureLocked(end)
	out := s.filterLocked(func(t model.Task) bool {
		return !t.DueDate.Before(start) && t.DueDate.Before(end) && keep(t)
	})
	s.mu.Unlock()

	s.notify(rec.change)
	return out
}
