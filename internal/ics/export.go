package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"chorecal/internal/model"
	"chorecal/internal/recurrence"
)

const (
	uidSuffix = "@chorecal"
	prodID    = "-//chorecal//tasks//EN"

	propRelatedTo = ical.ComponentProperty("RELATED-TO")
	propCompleted = ical.ComponentProperty("X-CHORECAL-COMPLETED")
	propAssigned  = ical.ComponentProperty("X-CHORECAL-ASSIGNED")
)

// Export renders tasks as an iCalendar document. Recurrence roots carry their
// cadence as RRULE, so the stored occurrences of an exported root are left
// out. Occurrences whose root is absent become single VEVENTs pointing at it
// through RELATED-TO.
func Export(tasks []model.Task, now time.Time) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(prodID)

	roots := make(map[string]struct{})
	for _, t := range tasks {
		if t.IsRecurrenceRoot() {
			roots[t.ID] = struct{}{}
		}
	}

	for _, t := range tasks {
		if t.ParentTaskID != nil {
			if _, ok := roots[*t.ParentTaskID]; ok {
				continue
			}
		}
		ev := cal.AddEvent(uid(t.ID))
		ev.SetDtStampTime(now)
		ev.SetSummary(t.Name)
		ev.SetStartAt(t.DueDate)
		if !t.CreatedAt.IsZero() {
			ev.SetCreatedTime(t.CreatedAt)
		}
		if t.Notes != nil {
			ev.SetDescription(*t.Notes)
		}
		if t.AssignedTo != nil {
			ev.SetProperty(propAssigned, *t.AssignedTo)
		}
		if t.IsCompleted {
			ev.SetProperty(propCompleted, "TRUE")
		}

		switch {
		case t.IsRecurrenceRoot():
			ev.AddRrule(recurrence.RRule(t.RepeatOption))
		case t.ParentTaskID != nil:
			ev.SetProperty(propRelatedTo, uid(*t.ParentTaskID))
		}
	}

	return []byte(cal.Serialize()), nil
}

func uid(id string) string {
	return id + uidSuffix
}
