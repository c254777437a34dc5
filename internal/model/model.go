package model

import (
	"fmt"
	"strings"
	"time"
)

// RepeatOption is the recurrence cadence of a task.
type RepeatOption string

const (
	RepeatNever   RepeatOption = "never"
	RepeatDaily   RepeatOption = "daily"
	RepeatWeekly  RepeatOption = "weekly"
	RepeatMonthly RepeatOption = "monthly"
	RepeatYearly  RepeatOption = "yearly"
)

// ParseRepeatOption accepts case-insensitive cadence names. Empty means never.
func ParseRepeatOption(s string) (RepeatOption, error) {
	switch RepeatOption(strings.ToLower(strings.TrimSpace(s))) {
	case "", RepeatNever:
		return RepeatNever, nil
	case RepeatDaily:
		return RepeatDaily, nil
	case RepeatWeekly:
		return RepeatWeekly, nil
	case RepeatMonthly:
		return RepeatMonthly, nil
	case RepeatYearly:
		return RepeatYearly, nil
	default:
		return RepeatNever, fmt.Errorf("unknown repeat option %q", s)
	}
}

// Repeating reports whether r drives generation of occurrences.
func (r RepeatOption) Repeating() bool {
	return r != "" && r != RepeatNever
}

// Task is a single household task. A task without a parent and with a
// repeating cadence is a recurrence root; tasks carrying ParentTaskID are
// occurrences generated from that root.
type Task struct {
	ID      string
	OwnerID string

	Name        string
	DueDate     time.Time
	IsCompleted bool

	// AssignedTo is a weak reference to a Person id.
	AssignedTo *string
	Notes      *string

	RepeatOption RepeatOption
	ParentTaskID *string

	CreatedAt time.Time
}

func (t Task) IsRecurrenceRoot() bool {
	return t.ParentTaskID == nil && t.RepeatOption.Repeating()
}

func (t Task) IsOccurrence() bool {
	return t.ParentTaskID != nil
}

// RootID returns the id of the task that drives generation for t: the parent
// for occurrences, t itself otherwise.
func (t Task) RootID() string {
	if t.ParentTaskID != nil {
		return *t.ParentTaskID
	}
	return t.ID
}

// Clone returns a copy that shares no pointers with t.
func (t Task) Clone() Task {
	t.AssignedTo = cloneString(t.AssignedTo)
	t.Notes = cloneString(t.Notes)
	t.ParentTaskID = cloneString(t.ParentTaskID)
	return t
}

// Person is a household member tasks can be assigned to.
type Person struct {
	ID      string
	OwnerID string
	Name    string
	Icon    string
	Color   string
}

// TaskFields is the input for creating a task.
type TaskFields struct {
	Name         string
	DueDate      time.Time
	IsCompleted  bool
	AssignedTo   *string
	Notes        *string
	RepeatOption RepeatOption
}

// TaskPatch represents a partial update.
// nil pointer => "no change"
// empty string for AssignedTo/Notes => clear (set to nil)
type TaskPatch struct {
	Name         *string
	DueDate      *time.Time
	IsCompleted  *bool
	AssignedTo   *string
	Notes        *string
	RepeatOption *RepeatOption
}

func (p TaskPatch) Empty() bool {
	return p.Name == nil && p.DueDate == nil && p.IsCompleted == nil &&
		p.AssignedTo == nil && p.Notes == nil && p.RepeatOption == nil
}

// PersonFields is the input for creating a person.
type PersonFields struct {
	Name  string
	Icon  string
	Color string
}

// StringPtr returns nil for the empty string, a pointer to s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences p, treating nil as the empty string.
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// SameString compares two optional strings by value.
func SameString(a, b *string) bool {
	return StringValue(a) == StringValue(b)
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
