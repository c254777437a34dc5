package store

import (
	"time"

	appLog "chorecal/internal/log"
	"chorecal/internal/model"
	"chorecal/internal/recurrence"
)

// AddTask inserts a new task and, when it repeats, generates its initial
// batch of occurrences. It returns the id of the new task.
func (s *TaskStore) AddTask(f model.TaskFields) string {
	s.mu.Lock()
	rec := newRecorder(ReasonAdd)

	repeat := f.RepeatOption
	if repeat == "" {
		repeat = model.RepeatNever
	}
	t := model.Task{
		ID:           s.newID(),
		OwnerID:      s.account,
		Name:         f.Name,
		DueDate:      f.DueDate,
		IsCompleted:  f.IsCompleted,
		AssignedTo:   model.StringPtr(model.StringValue(f.AssignedTo)),
		Notes:        model.StringPtr(model.StringValue(f.Notes)),
		RepeatOption: repeat,
		CreatedAt:    s.now(),
	}
	s.tasks[t.ID] = t
	rec.created(t.ID)

	if t.RepeatOption.Repeating() {
		s.generateLocked(t, recurrence.Limit{Count: s.initialBatch}, rec)
	}

	s.dispatchLocked(rec)
	s.mu.Unlock()

	s.notify(rec.change)
	return t.ID
}

// UpdateTask applies patch to the task with the given id and reports whether
// the task exists. Besides the field changes, it keeps the recurrence in
// shape:
//
//   - moving the due date of a repeating root regenerates its future occurrences
//   - completing a repeating task tops up its root
//   - changing the cadence of a root generates, deletes or regenerates occurrences
//   - renaming, reassigning or re-noting a root carries over to future occurrences
func (s *TaskStore) UpdateTask(id string, patch model.TaskPatch) bool {
	s.mu.Lock()
	old, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return false
	}

	t := old.Clone()
	if patch.Name != nil {
		t.Name = *patch.Name
	}
	if patch.DueDate != nil {
		t.DueDate = *patch.DueDate
	}
	if patch.IsCompleted != nil {
		t.IsCompleted = *patch.IsCompleted
	}
	if patch.AssignedTo != nil {
		t.AssignedTo = model.StringPtr(*patch.AssignedTo)
	}
	if patch.Notes != nil {
		t.Notes = model.StringPtr(*patch.Notes)
	}
	if patch.RepeatOption != nil {
		t.RepeatOption = *patch.RepeatOption
		if t.RepeatOption == "" {
			t.RepeatOption = model.RepeatNever
		}
	}

	if sameTask(old, t) {
		s.mu.Unlock()
		return true
	}

	rec := newRecorder(ReasonUpdate)
	s.tasks[id] = t
	rec.updated(id)

	var (
		now            = s.now()
		isRoot         = t.ParentTaskID == nil
		dueChanged     = !old.DueDate.Equal(t.DueDate)
		completedNow   = t.IsCompleted && !old.IsCompleted
		repeatChanged  = old.RepeatOption != t.RepeatOption
		detailsChanged = old.Name != t.Name ||
			!nullableEqual(old.AssignedTo, t.AssignedTo) ||
			!nullableEqual(old.Notes, t.Notes)
		regenerated bool
	)

	if dueChanged && isRoot && old.RepeatOption.Repeating() && t.RepeatOption.Repeating() {
		s.deleteFutureLocked(id, now, rec)
		s.generateLocked(t, recurrence.Limit{Count: s.initialBatch}, rec)
		regenerated = true
	}

	if completedNow && t.RepeatOption.Repeating() {
		if root, ok := s.tasks[t.RootID()]; ok && root.IsRecurrenceRoot() {
			s.generateLocked(root, recurrence.Limit{Count: s.topUpBatch}, rec)
		}
	}

	if repeatChanged && isRoot {
		switch {
		case !old.RepeatOption.Repeating() && t.RepeatOption.Repeating():
			s.generateLocked(t, recurrence.Limit{Count: s.initialBatch}, rec)
		case old.RepeatOption.Repeating() && !t.RepeatOption.Repeating():
			s.deleteFutureLocked(id, now, rec)
		case !regenerated:
			s.deleteFutureLocked(id, now, rec)
			s.generateLocked(t, recurrence.Limit{Count: s.initialBatch}, rec)
		}
	}

	if detailsChanged && isRoot {
		for _, child := range s.childrenLocked(id) {
			if !child.DueDate.After(now) {
				continue
			}
			child = child.Clone()
			child.Name = t.Name
			child.AssignedTo = model.StringPtr(model.StringValue(t.AssignedTo))
			child.Notes = model.StringPtr(model.StringValue(t.Notes))
			s.tasks[child.ID] = child
			rec.updated(child.ID)
		}
	}

	s.dispatchLocked(rec)
	s.mu.Unlock()

	s.notify(rec.change)
	return true
}

// DeleteTask removes the task with the given id and reports whether it
// existed. Deleting a repeating root removes all of its occurrences first.
func (s *TaskStore) DeleteTask(id string) bool {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return false
	}

	rec := newRecorder(ReasonDelete)
	if t.IsRecurrenceRoot() {
		children := s.childrenLocked(id)
		sortTasks(children)
		for _, child := range children {
			delete(s.tasks, child.ID)
			rec.deleted(child.ID)
		}
	}
	delete(s.tasks, id)
	rec.deleted(id)

	s.dispatchLocked(rec)
	s.mu.Unlock()

	s.notify(rec.change)
	return true
}

// generateLocked adds occurrences of root up to limit and records them.
func (s *TaskStore) generateLocked(root model.Task, limit recurrence.Limit, rec *recorder) int {
	res := s.gen.Generate(root, s.childrenLocked(root.ID), limit)
	for _, occ := range res.Occurrences {
		s.tasks[occ.ID] = occ
		rec.created(occ.ID)
	}
	if len(res.Occurrences) > 0 {
		appLog.Debug("generated occurrences", "root", root.ID, "count", len(res.Occurrences))
	}
	return len(res.Occurrences)
}

// deleteFutureLocked removes every occurrence of rootID due after now.
func (s *TaskStore) deleteFutureLocked(rootID string, now time.Time, rec *recorder) {
	children := s.childrenLocked(rootID)
	sortTasks(children)
	for _, child := range children {
		if !child.DueDate.After(now) {
			continue
		}
		delete(s.tasks, child.ID)
		rec.deleted(child.ID)
	}
}
