package recurrence

import (
	"errors"
	"time"

	"github.com/google/uuid"

	appLog "chorecal/internal/log"
	"chorecal/internal/model"
)

const (
	defaultMaxOccurrences = 5000
)

// Limit bounds a single generation run. Generation stops at whichever bound
// is reached first; at least one must be set.
type Limit struct {
	// Count is the number of new occurrences to produce. Zero means no count bound.
	Count int
	// Horizon stops generation once a candidate is no longer before it.
	// The zero time means no horizon.
	Horizon time.Time
}

// Result wraps the newly generated occurrences.
type Result struct {
	Occurrences []model.Task
	// Truncated is set when MaxOccurrences stopped the run early.
	Truncated bool
}

// Generator produces the occurrences a recurrence root is missing.
type Generator struct {
	// Location is the calendar used for same-day collision checks.
	// If nil, time.Local is used.
	Location *time.Location

	// MaxOccurrences is a safety cap per run. If zero, defaultMaxOccurrences is used.
	MaxOccurrences int

	// NewID and Now are overridable for tests.
	NewID func() string
	Now   func() time.Time
}

// Generate returns new occurrences (not yet inserted anywhere) for root given
// the occurrences that already exist for it.
//
// Candidates start after the latest due date among root and existing and are
// produced with NextDueDate. A candidate whose calendar day is already taken
// by the root, an existing occurrence or an occurrence generated earlier in
// the same run is skipped rather than duplicated.
func (g Generator) Generate(root model.Task, existing []model.Task, limit Limit) Result {
	var res Result

	if !root.IsRecurrenceRoot() {
		return res
	}
	if limit.Count <= 0 && limit.Horizon.IsZero() {
		return res
	}

	loc := g.location()
	maxOcc := g.MaxOccurrences
	if maxOcc <= 0 {
		maxOcc = defaultMaxOccurrences
	}

	taken := make(map[string]struct{}, len(existing)+1)
	latest := root.DueDate
	taken[DayKey(root.DueDate, loc)] = struct{}{}
	for _, occ := range existing {
		taken[DayKey(occ.DueDate, loc)] = struct{}{}
		if occ.DueDate.After(latest) {
			latest = occ.DueDate
		}
	}

	cursor := latest
	for steps := 0; ; steps++ {
		if limit.Count > 0 && len(res.Occurrences) >= limit.Count {
			break
		}
		if steps >= maxOcc {
			res.Truncated = true
			appLog.Error("generate: truncated occurrences for root due to cap",
				errors.New("max occurrences reached"),
				"root_id", root.ID,
				"cap", maxOcc,
			)
			break
		}

		next, ok := NextDueDate(cursor, root.RepeatOption)
		if !ok {
			break
		}
		cursor = next

		if !limit.Horizon.IsZero() && !next.Before(limit.Horizon) {
			break
		}

		key := DayKey(next, loc)
		if _, dup := taken[key]; dup {
			continue
		}
		taken[key] = struct{}{}
		res.Occurrences = append(res.Occurrences, g.occurrenceOf(root, next))
	}

	return res
}

func (g Generator) occurrenceOf(root model.Task, due time.Time) model.Task {
	src := root.Clone()
	parent := root.ID
	return model.Task{
		ID:           g.newID(),
		OwnerID:      root.OwnerID,
		Name:         root.Name,
		DueDate:      due,
		IsCompleted:  false,
		AssignedTo:   src.AssignedTo,
		Notes:        src.Notes,
		RepeatOption: root.RepeatOption,
		ParentTaskID: &parent,
		CreatedAt:    g.now(),
	}
}

func (g Generator) location() *time.Location {
	if g.Location == nil {
		return time.Local
	}
	return g.Location
}

func (g Generator) newID() string {
	if g.NewID != nil {
		return g.NewID()
	}
	return uuid.NewString()
}

func (g Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}
