package store

import "chorecal/internal/model"

// MergeRemote folds a remote snapshot into the store. Every remote id
// replaces the local copy; local ids missing from the snapshot are kept.
// Ids for which skip returns true are left alone, so writes still on their
// way out are not overwritten by an older remote copy. Merged values are not
// dispatched to the Syncer.
func (s *TaskStore) MergeRemote(tasks []model.Task, persons []model.Person, skip func(id string) bool) Change {
	s.mu.Lock()
	rec := newRecorder(ReasonMerge)

	for _, remote := range tasks {
		if remote.ID == "" || (skip != nil && skip(remote.ID)) {
			continue
		}
		local, ok := s.tasks[remote.ID]
		switch {
		case !ok:
			s.tasks[remote.ID] = remote.Clone()
			rec.created(remote.ID)
		case !sameTask(local, remote):
			s.tasks[remote.ID] = remote.Clone()
			rec.updated(remote.ID)
		}
	}

	for _, p := range persons {
		if p.ID == "" || (skip != nil && skip(p.ID)) {
			continue
		}
		if local, ok := s.persons[p.ID]; ok && local == p {
			continue
		}
		s.persons[p.ID] = p
		rec.change.Persons = append(rec.change.Persons, p.ID)
	}
	s.mu.Unlock()

	s.notify(rec.change)
	return rec.change
}

// Seed inserts tasks and persons whose ids are not known locally. It is used
// to hydrate the store from a saved snapshot before the first pull.
func (s *TaskStore) Seed(tasks []model.Task, persons []model.Person) Change {
	s.mu.Lock()
	rec := newRecorder(ReasonSeed)

	for _, t := range tasks {
		if t.ID == "" {
			continue
		}
		if _, ok := s.tasks[t.ID]; ok {
			continue
		}
		s.tasks[t.ID] = t.Clone()
		rec.created(t.ID)
	}
	for _, p := range persons {
		if p.ID == "" {
			continue
		}
		if _, ok := s.persons[p.ID]; ok {
			continue
		}
		s.persons[p.ID] = p
		rec.change.Persons = append(rec.change.Persons, p.ID)
	}
	s.mu.Unlock()

	s.notify(rec.change)
	return rec.change
}
