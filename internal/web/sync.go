package web

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"chorecal/internal/ics"
	appLog "chorecal/internal/log"
	"chorecal/internal/store"
)

const changesKeepAlive = 25 * time.Second

func (s *Server) syncStatus() syncStatusResponse {
	st := s.sync.Status()
	resp := syncStatusResponse{Pending: st.Pending}
	if st.LastError != nil {
		resp.LastSyncError = st.LastError.Error()
	}
	if !st.LastPullAt.IsZero() {
		at := st.LastPullAt
		resp.LastPullAt = &at
	}
	return resp
}

func (s *Server) handleSyncStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.syncStatus())
}

// handleSyncNow pulls from the remote store immediately.
func (s *Server) handleSyncNow(c echo.Context) error {
	if err := s.sync.PullAndMerge(c.Request().Context()); err != nil {
		return writeError(c, http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, s.syncStatus())
}

// handleChanges streams store changes as server-sent events until the client
// goes away. Changes are dropped for clients that fall behind.
func (s *Server) handleChanges(c echo.Context) error {
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return writeError(c, http.StatusInternalServerError, "stream unsupported")
	}

	changes := make(chan store.Change, 16)
	unsubscribe := s.store.Subscribe(func(ch store.Change) {
		select {
		case changes <- ch:
		default:
			appLog.Warn("change stream client too slow; dropping change", "reason", string(ch.Reason))
		}
	})
	defer unsubscribe()

	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	if _, err := io.WriteString(c.Response(), ": connected\n\n"); err != nil {
		return nil
	}
	flusher.Flush()

	ctx := c.Request().Context()
	ticker := time.NewTicker(changesKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := io.WriteString(c.Response(), ": ping\n\n"); err != nil {
				return nil
			}
		case ch := <-changes:
			data, err := json.Marshal(ch)
			if err != nil {
				appLog.Error("change encode failed", err)
				continue
			}
			if _, err := io.WriteString(c.Response(), "event: change\ndata: "+string(data)+"\n\n"); err != nil {
				return nil
			}
		}
		flusher.Flush()
	}
}

func (s *Server) handleExportCalendar(c echo.Context) error {
	body, err := ics.Export(s.store.Tasks(), s.now())
	if err != nil {
		appLog.Error("ics export failed", err)
		return writeError(c, http.StatusInternalServerError, "failed to export calendar")
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="chorecal.ics"`)
	return c.Blob(http.StatusOK, "text/calendar; charset=utf-8", body)
}

// handleImportCalendar adds one task per importable VEVENT in the body.
func (s *Server) handleImportCalendar(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodySize))
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid body")
	}
	fields, err := ics.Import(body, s.store.Location())
	if err != nil {
		return writeError(c, http.StatusBadRequest, err.Error())
	}

	created := make([]string, 0, len(fields))
	for _, f := range fields {
		created = append(created, s.store.AddTask(f))
	}
	appLog.Info("calendar imported", "tasks", len(created))
	return c.JSON(http.StatusCreated, importResponse{Created: created})
}
