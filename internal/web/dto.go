package web

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"chorecal/internal/model"
	"chorecal/internal/recurrence"
)

const maxBodySize = 1 << 20

// taskDTO is the JSON view of a task.
type taskDTO struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	DueDate      time.Time `json:"dueDate"`
	IsCompleted  bool      `json:"isCompleted"`
	AssignedTo   *string   `json:"assignedTo,omitempty"`
	Notes        *string   `json:"notes,omitempty"`
	RepeatOption string    `json:"repeatOption"`
	ParentTaskID *string   `json:"parentTaskId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type tasksResponse struct {
	Tasks []taskDTO `json:"tasks"`
}

type personDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Icon  string `json:"icon,omitempty"`
	Color string `json:"color,omitempty"`
}

type personsResponse struct {
	Persons []personDTO `json:"persons"`
}

// createTaskRequest is the body of POST /api/tasks. DueDate accepts RFC 3339
// or a bare calendar date in the configured timezone.
type createTaskRequest struct {
	Name         string  `json:"name"`
	DueDate      string  `json:"dueDate"`
	IsCompleted  bool    `json:"isCompleted"`
	AssignedTo   *string `json:"assignedTo"`
	Notes        *string `json:"notes"`
	RepeatOption string  `json:"repeatOption"`
}

// patchTaskRequest is the body of PATCH /api/tasks/:id. Absent or null
// fields are left alone; "" clears assignedTo and notes.
type patchTaskRequest struct {
	Name         *string `json:"name"`
	DueDate      *string `json:"dueDate"`
	IsCompleted  *bool   `json:"isCompleted"`
	AssignedTo   *string `json:"assignedTo"`
	Notes        *string `json:"notes"`
	RepeatOption *string `json:"repeatOption"`
}

type createPersonRequest struct {
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

type importResponse struct {
	Created []string `json:"created"`
}

type syncStatusResponse struct {
	LastSyncError string     `json:"lastSyncError,omitempty"`
	LastPullAt    *time.Time `json:"lastPullAt,omitempty"`
	Pending       int        `json:"pending"`
}

func toTaskDTO(t model.Task) taskDTO {
	return taskDTO{
		ID:           t.ID,
		Name:         t.Name,
		DueDate:      t.DueDate,
		IsCompleted:  t.IsCompleted,
		AssignedTo:   t.AssignedTo,
		Notes:        t.Notes,
		RepeatOption: string(t.RepeatOption),
		ParentTaskID: t.ParentTaskID,
		CreatedAt:    t.CreatedAt,
	}
}

func toTasksResponse(tasks []model.Task) tasksResponse {
	out := make([]taskDTO, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskDTO(t))
	}
	return tasksResponse{Tasks: out}
}

func toPersonDTO(p model.Person) personDTO {
	return personDTO{ID: p.ID, Name: p.Name, Icon: p.Icon, Color: p.Color}
}

func (r createTaskRequest) fields(loc *time.Location) (model.TaskFields, error) {
	var f model.TaskFields

	f.Name = strings.TrimSpace(r.Name)
	if f.Name == "" {
		return f, fmt.Errorf("name is required")
	}
	if r.DueDate == "" {
		return f, fmt.Errorf("dueDate is required")
	}
	due, err := parseDate(r.DueDate, loc)
	if err != nil {
		return f, err
	}
	f.DueDate = due

	repeat, err := model.ParseRepeatOption(r.RepeatOption)
	if err != nil {
		return f, err
	}
	f.RepeatOption = repeat
	f.IsCompleted = r.IsCompleted
	f.AssignedTo = r.AssignedTo
	f.Notes = r.Notes
	return f, nil
}

func (r patchTaskRequest) patch(loc *time.Location) (model.TaskPatch, error) {
	var p model.TaskPatch

	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		if name == "" {
			return p, fmt.Errorf("name cannot be empty")
		}
		p.Name = &name
	}
	if r.DueDate != nil {
		due, err := parseDate(*r.DueDate, loc)
		if err != nil {
			return p, err
		}
		p.DueDate = &due
	}
	if r.RepeatOption != nil {
		repeat, err := model.ParseRepeatOption(*r.RepeatOption)
		if err != nil {
			return p, err
		}
		p.RepeatOption = &repeat
	}
	p.IsCompleted = r.IsCompleted
	p.AssignedTo = r.AssignedTo
	p.Notes = r.Notes
	return p, nil
}

// decodeJSON reads a size-limited JSON body, rejecting unknown fields.
func decodeJSON(c echo.Context, dst any) error {
	dec := json.NewDecoder(io.LimitReader(c.Request().Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// parseDate accepts RFC 3339 timestamps, local date-times and bare dates;
// the latter two are read in loc.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// weekStart snaps date back to the most recent first weekday.
func weekStart(date time.Time, first time.Weekday, loc *time.Location) time.Time {
	day := recurrence.StartOfDay(date, loc)
	offset := (int(day.Weekday()) - int(first) + 7) % 7
	return day.AddDate(0, 0, -offset)
}
