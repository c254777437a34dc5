package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "chorecal/internal/log"
	"chorecal/internal/model"
	"chorecal/internal/recurrence"
)

// Import parses an iCalendar document into task inputs.
//
//   - Events related to another event (RELATED-TO) are occurrences and are
//     skipped; their roots regenerate them.
//   - RRULEs that are not plain daily/weekly/monthly/yearly stepping import
//     as non-repeating tasks.
//   - Events without DTSTART are skipped.
//
// Due dates are converted to loc when it is non-nil.
func Import(body []byte, loc *time.Location) ([]model.TaskFields, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err)
		return nil, err
	}

	out := make([]model.TaskFields, 0)
	var skipped int
	for _, ve := range cal.Events() {
		f, ok, perr := parseVEvent(ve, loc)
		if perr != nil {
			// Log and skip this event, but keep parsing others.
			appLog.Error("ics vevent parse failed", perr, "uid", ve.Id())
			skipped++
			continue
		}
		if !ok {
			skipped++
			continue
		}
		out = append(out, f)
	}

	appLog.Info("ics import parsed", "task_count", len(out), "skipped", skipped)
	return out, nil
}

// parseVEvent returns ok=false for events that are deliberately not imported.
func parseVEvent(ve *ical.VEvent, loc *time.Location) (model.TaskFields, bool, error) {
	var f model.TaskFields

	if p := ve.GetProperty(propRelatedTo); p != nil && p.Value != "" {
		return f, false, nil
	}

	if ve.GetProperty(ical.ComponentPropertyDtStart) == nil {
		return f, false, errors.New("missing DTSTART")
	}
	start, err := ve.GetStartAt()
	if err != nil {
		return f, false, err
	}
	if loc != nil {
		start = start.In(loc)
	}
	f.DueDate = start

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		f.Name = p.Value
	}
	if strings.TrimSpace(f.Name) == "" {
		f.Name = "Untitled"
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		f.Notes = model.StringPtr(p.Value)
	}
	if p := ve.GetProperty(propAssigned); p != nil {
		f.AssignedTo = model.StringPtr(p.Value)
	}
	if p := ve.GetProperty(propCompleted); p != nil {
		f.IsCompleted = strings.EqualFold(strings.TrimSpace(p.Value), "TRUE")
	}

	f.RepeatOption = model.RepeatNever
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil && p.Value != "" {
		repeat, err := recurrence.FromRRule(p.Value)
		if err != nil {
			appLog.Warn("ics rrule not supported, importing as one-off", "uid", ve.Id(), "rrule", p.Value)
		} else {
			f.RepeatOption = repeat
		}
	}

	return f, true, nil
}
