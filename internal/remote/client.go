// Package remote holds the contract with the authoritative task store and
// its backends.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chorecal/internal/model"
)

// ErrNotFound is returned by backends when a requested record does not exist.
var ErrNotFound = errors.New("remote: not found")

// Client is the remote persistence collaborator.
type Client interface {
	FetchTasks(ctx context.Context, accountID string) ([]TaskRecord, error)
	UpsertTask(ctx context.Context, rec TaskRecord) error
	DeleteTask(ctx context.Context, id string) error
	FetchPersons(ctx context.Context, accountID string) ([]PersonRecord, error)
	UpsertPerson(ctx context.Context, rec PersonRecord) error
}

// TaskRecord is the wire shape of a task. Dates are ISO-8601 strings and
// optional references are nullable.
type TaskRecord struct {
	ID           string  `json:"id"`
	OwnerID      string  `json:"ownerId"`
	Name         string  `json:"name"`
	DueDate      string  `json:"dueDate"`
	IsCompleted  bool    `json:"isCompleted"`
	AssignedTo   *string `json:"assignedTo"`
	Notes        *string `json:"notes"`
	RepeatOption string  `json:"repeatOption"`
	ParentTaskID *string `json:"parentTaskId"`
	CreatedAt    string  `json:"createdAt"`
}

// PersonRecord is the wire shape of a person.
type PersonRecord struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
	Name    string `json:"name"`
	Icon    string `json:"icon"`
	Color   string `json:"color"`
}

func FromTask(t model.Task) TaskRecord {
	rec := TaskRecord{
		ID:           t.ID,
		OwnerID:      t.OwnerID,
		Name:         t.Name,
		DueDate:      formatTime(t.DueDate),
		IsCompleted:  t.IsCompleted,
		AssignedTo:   model.StringPtr(model.StringValue(t.AssignedTo)),
		Notes:        model.StringPtr(model.StringValue(t.Notes)),
		RepeatOption: string(t.RepeatOption),
		ParentTaskID: model.StringPtr(model.StringValue(t.ParentTaskID)),
	}
	if rec.RepeatOption == "" {
		rec.RepeatOption = string(model.RepeatNever)
	}
	if !t.CreatedAt.IsZero() {
		rec.CreatedAt = formatTime(t.CreatedAt)
	}
	return rec
}

// Task decodes the record with ParseTime semantics for its dates.
func (r TaskRecord) Task() (model.Task, error) {
	return r.TaskIn(nil)
}

// TaskIn decodes the record. With a non-nil loc, dates without an offset are
// wall-clock times in loc and all dates are returned in loc. Records without
// an id or with an unparsable date or repeat option are rejected.
func (r TaskRecord) TaskIn(loc *time.Location) (model.Task, error) {
	if r.ID == "" {
		return model.Task{}, errors.New("task record without id")
	}
	due, err := ParseTimeIn(r.DueDate, loc)
	if err != nil {
		return model.Task{}, fmt.Errorf("task %s: dueDate: %w", r.ID, err)
	}
	repeat, err := model.ParseRepeatOption(r.RepeatOption)
	if err != nil {
		return model.Task{}, fmt.Errorf("task %s: %w", r.ID, err)
	}
	var created time.Time
	if r.CreatedAt != "" {
		if created, err = ParseTimeIn(r.CreatedAt, loc); err != nil {
			return model.Task{}, fmt.Errorf("task %s: createdAt: %w", r.ID, err)
		}
	}
	return model.Task{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		Name:         r.Name,
		DueDate:      due,
		IsCompleted:  r.IsCompleted,
		AssignedTo:   model.StringPtr(model.StringValue(r.AssignedTo)),
		Notes:        model.StringPtr(model.StringValue(r.Notes)),
		RepeatOption: repeat,
		ParentTaskID: model.StringPtr(model.StringValue(r.ParentTaskID)),
		CreatedAt:    created,
	}, nil
}

func FromPerson(p model.Person) PersonRecord {
	return PersonRecord{ID: p.ID, OwnerID: p.OwnerID, Name: p.Name, Icon: p.Icon, Color: p.Color}
}

func (r PersonRecord) Person() (model.Person, error) {
	if r.ID == "" {
		return model.Person{}, errors.New("person record without id")
	}
	return model.Person{ID: r.ID, OwnerID: r.OwnerID, Name: r.Name, Icon: r.Icon, Color: r.Color}, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime accepts RFC 3339 timestamps, keeping their offset, and local
// date-times or bare dates which are read as UTC.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// ParseTimeIn is ParseTime with local date-times and bare dates read in loc.
// The result is converted to loc. A nil loc behaves like ParseTime.
func ParseTimeIn(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		return ParseTime(s)
	}
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t.In(loc), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}
