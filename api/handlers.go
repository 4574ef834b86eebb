package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/Luka0103/studyconnect/auth"
	"github.com/Luka0103/studyconnect/domain"
	"github.com/Luka0103/studyconnect/drag"
)

type handlers struct {
	Deps
}

type boardResponse struct {
	Version uint64       `json:"version"`
	Columns domain.Board `json:"columns"`
}

type dragResponse struct {
	TaskID domain.ID  `json:"taskId"`
	State  drag.State `json:"state"`
}

type joinRequest struct {
	GroupID domain.ID `json:"group_id"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"userId,omitempty"`
}

func decode(c echo.Context, v any) error {
	return c.Echo().JSONSerializer.Deserialize(c, v)
}

func invalidBody(c echo.Context, msg string) error {
	metricsFrom(c).SetErrorStage("decode")
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func (h *handlers) getBoard(c echo.Context) error {
	b, v := h.Store.SnapshotVersion()
	return c.JSON(http.StatusOK, boardResponse{Version: v, Columns: b})
}

func (h *handlers) refreshBoard(c echo.Context) error {
	m := metricsFrom(c)
	start := time.Now()
	_, err := h.Reconciler.Refresh(c.Request().Context())
	m.ObserveRemote(time.Since(start))
	if err != nil {
		m.SetErrorStage("remote")
		return writeError(c, err)
	}
	b, v := h.Store.SnapshotVersion()
	m.SetTasks(b.Len())
	return c.JSON(http.StatusOK, boardResponse{Version: v, Columns: b})
}

func (h *handlers) beginDrag(c echo.Context) error {
	id := domain.ID(c.Param("id"))
	h.Drags.Begin(id)
	return c.JSON(http.StatusOK, dragResponse{TaskID: id, State: h.Drags.State(id)})
}

func (h *handlers) cancelDrag(c echo.Context) error {
	id := domain.ID(c.Param("id"))
	h.Drags.Cancel(id)
	return c.JSON(http.StatusOK, dragResponse{TaskID: id, State: h.Drags.State(id)})
}

func (h *handlers) dragState(c echo.Context) error {
	id := domain.ID(c.Param("id"))
	return c.JSON(http.StatusOK, dragResponse{TaskID: id, State: h.Drags.State(id)})
}

func (h *handlers) drop(c echo.Context) error {
	var ev drag.DropEvent
	if err := decode(c, &ev); err != nil {
		return invalidBody(c, "invalid body")
	}
	if ev.TaskID == "" {
		return invalidBody(c, "taskId is required")
	}
	m := metricsFrom(c)
	if p := h.Drags.Drop(ev); p == nil {
		m.SetOutcome("noop")
		return c.NoContent(http.StatusNoContent)
	}
	m.SetOutcome("reconciling")
	return c.JSON(http.StatusAccepted, dragResponse{TaskID: ev.TaskID, State: drag.StateReconciling})
}

func (h *handlers) createTask(c echo.Context) error {
	var draft domain.Draft
	if err := decode(c, &draft); err != nil {
		return invalidBody(c, "invalid body")
	}
	m := metricsFrom(c)
	start := time.Now()
	task, err := h.Reconciler.Create(c.Request().Context(), draft)
	m.ObserveRemote(time.Since(start))
	if err != nil {
		m.SetErrorStage(stageFor(err))
		return writeError(c, err)
	}
	m.SetTasks(1)
	return c.JSON(http.StatusCreated, task)
}

func (h *handlers) updateTask(c echo.Context) error {
	id := domain.ID(strings.TrimSpace(c.Param("id")))
	if id == "" {
		return invalidBody(c, "task id is required")
	}
	var patch domain.Patch
	if err := decode(c, &patch); err != nil {
		return invalidBody(c, "invalid body")
	}
	m := metricsFrom(c)
	start := time.Now()
	task, err := h.Reconciler.Update(c.Request().Context(), id, patch)
	m.ObserveRemote(time.Since(start))
	if err != nil {
		m.SetErrorStage(stageFor(err))
		return writeError(c, err)
	}
	m.SetTasks(1)
	return c.JSON(http.StatusOK, task)
}

func (h *handlers) listGroups(c echo.Context) error {
	if err := h.refreshGroups(c); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, h.Reconciler.Groups())
}

func (h *handlers) listAdminGroups(c echo.Context) error {
	if err := h.refreshGroups(c); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, h.Reconciler.AdminGroups())
}

// refreshGroups reloads the group cache. Backend failures fall back to the
// cached lists; only a missing credential is returned.
func (h *handlers) refreshGroups(c echo.Context) error {
	m := metricsFrom(c)
	start := time.Now()
	err := h.Reconciler.RefreshGroups(c.Request().Context())
	m.ObserveRemote(time.Since(start))
	if err == nil {
		return nil
	}
	m.SetErrorStage("remote")
	if errors.Is(err, auth.ErrNoCredential) {
		return err
	}
	h.Logger.WithError(err).Warn("groups: refresh failed, serving cached list")
	return nil
}

func (h *handlers) joinGroup(c echo.Context) error {
	var req joinRequest
	if err := decode(c, &req); err != nil {
		return invalidBody(c, "invalid body")
	}
	if req.GroupID == "" {
		return invalidBody(c, "group_id is required")
	}
	m := metricsFrom(c)
	start := time.Now()
	err := h.Reconciler.JoinGroup(c.Request().Context(), req.GroupID)
	m.ObserveRemote(time.Since(start))
	if err != nil {
		m.SetErrorStage("remote")
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) getSession(c echo.Context) error {
	return c.JSON(http.StatusOK, h.session())
}

func (h *handlers) login(c echo.Context) error {
	var req loginRequest
	if err := decode(c, &req); err != nil {
		return invalidBody(c, "invalid body")
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return invalidBody(c, "username and password are required")
	}
	m := metricsFrom(c)
	ctx := c.Request().Context()

	start := time.Now()
	tok, err := h.Auth.Login(ctx, req.Username, req.Password)
	m.ObserveRemote(time.Since(start))
	if err != nil {
		m.SetErrorStage("remote")
		return writeError(c, err)
	}
	if err := h.Session.Seed(ctx, tok); err != nil {
		m.SetErrorStage("persist")
		h.Logger.WithError(err).Error("session: storing credentials failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "could not store credentials"})
	}

	start = time.Now()
	if b, err := h.Reconciler.Refresh(ctx); err != nil {
		h.Logger.WithError(err).Warn("session: initial board fetch failed")
	} else {
		m.SetTasks(b.Len())
	}
	if err := h.Reconciler.RefreshGroups(ctx); err != nil {
		h.Logger.WithError(err).Warn("session: initial group fetch failed")
	}
	m.ObserveRemote(time.Since(start))
	return c.JSON(http.StatusOK, h.session())
}

func (h *handlers) logout(c echo.Context) error {
	if err := h.Session.Discard(c.Request().Context()); err != nil {
		metricsFrom(c).SetErrorStage("persist")
		h.Logger.WithError(err).Warn("session: clearing stored credentials failed")
	}
	h.Store.ReplaceAll(nil)
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) session() sessionResponse {
	resp := sessionResponse{Authenticated: h.Session.Authenticated()}
	if resp.Authenticated {
		uid, err := h.Session.UserID()
		if err != nil {
			h.Logger.WithFields(log.Fields{"error": err}).Debug("session: user id unavailable")
		}
		resp.UserID = uid
	}
	return resp
}

func stageFor(err error) string {
	var verrs domain.ValidationErrors
	if errors.As(err, &verrs) {
		return "validation"
	}
	return "remote"
}
