package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"chorecal/internal/model"
)

// handleListTasks serves the day, week and upcoming views.
//
// GET /api/tasks?day=2024-01-05
// GET /api/tasks?week=2024-01-05   (snaps back to the configured week start)
// GET /api/tasks?upcoming=7        (default: horizon_days)
func (s *Server) handleListTasks(c echo.Context) error {
	loc := s.store.Location()

	if day := c.QueryParam("day"); day != "" {
		date, err := parseDate(day, loc)
		if err != nil {
			return writeError(c, http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusOK, toTasksResponse(s.store.TasksForDay(date)))
	}

	if week := c.QueryParam("week"); week != "" {
		date, err := parseDate(week, loc)
		if err != nil {
			return writeError(c, http.StatusBadRequest, err.Error())
		}
		start := weekStart(date, s.cfg.FirstWeekday(), loc)
		return c.JSON(http.StatusOK, toTasksResponse(s.store.TasksForWeek(start)))
	}

	days := s.cfg.HorizonDays
	if v := strings.TrimSpace(c.QueryParam("upcoming")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return writeError(c, http.StatusBadRequest, "invalid upcoming")
		}
		days = n
	}
	return c.JSON(http.StatusOK, toTasksResponse(s.store.UpcomingTasks(days)))
}

func (s *Server) handleGetTask(c echo.Context) error {
	t, ok := s.store.Task(c.Param("id"))
	if !ok {
		return writeError(c, http.StatusNotFound, "task not found")
	}
	return c.JSON(http.StatusOK, toTaskDTO(t))
}

func (s *Server) handleCreateTask(c echo.Context) error {
	var req createTaskRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid body")
	}
	fields, err := req.fields(s.store.Location())
	if err != nil {
		return writeError(c, http.StatusBadRequest, err.Error())
	}

	id := s.store.AddTask(fields)
	t, _ := s.store.Task(id)
	return c.JSON(http.StatusCreated, toTaskDTO(t))
}

func (s *Server) handlePatchTask(c echo.Context) error {
	id := c.Param("id")

	var req patchTaskRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid body")
	}
	patch, err := req.patch(s.store.Location())
	if err != nil {
		return writeError(c, http.StatusBadRequest, err.Error())
	}

	if !s.store.UpdateTask(id, patch) {
		return writeError(c, http.StatusNotFound, "task not found")
	}
	t, ok := s.store.Task(id)
	if !ok {
		return writeError(c, http.StatusNotFound, "task not found")
	}
	return c.JSON(http.StatusOK, toTaskDTO(t))
}

func (s *Server) handleDeleteTask(c echo.Context) error {
	if !s.store.DeleteTask(c.Param("id")) {
		return writeError(c, http.StatusNotFound, "task not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListPersons(c echo.Context) error {
	persons := s.store.Persons()
	out := make([]personDTO, 0, len(persons))
	for _, p := range persons {
		out = append(out, toPersonDTO(p))
	}
	return c.JSON(http.StatusOK, personsResponse{Persons: out})
}

func (s *Server) handleCreatePerson(c echo.Context) error {
	var req createPersonRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid body")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return writeError(c, http.StatusBadRequest, "name is required")
	}

	id := s.store.AddPerson(model.PersonFields{Name: name, Icon: req.Icon, Color: req.Color})
	p, _ := s.store.GetPerson(id)
	return c.JSON(http.StatusCreated, toPersonDTO(p))
}

func (s *Server) handleGetPerson(c echo.Context) error {
	p, ok := s.store.GetPerson(c.Param("id"))
	if !ok {
		return writeError(c, http.StatusNotFound, "person not found")
	}
	return c.JSON(http.StatusOK, toPersonDTO(p))
}

func (s *Server) handlePersonTasks(c echo.Context) error {
	id := c.Param("id")
	if _, ok := s.store.GetPerson(id); !ok {
		return writeError(c, http.StatusNotFound, "person not found")
	}
	return c.JSON(http.StatusOK, toTasksResponse(s.store.TasksAssignedTo(id)))
}
