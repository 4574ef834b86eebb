// Package api exposes the board engine to a local UI over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/Luka0103/studyconnect/board"
	"github.com/Luka0103/studyconnect/domain"
	"github.com/Luka0103/studyconnect/drag"
)

// Reconciler issues remote task and group operations.
type Reconciler interface {
	Create(ctx context.Context, draft domain.Draft) (domain.Task, error)
	Update(ctx context.Context, id domain.ID, patch domain.Patch) (domain.Task, error)
	Refresh(ctx context.Context) (domain.Board, error)
	Groups() []domain.Group
	AdminGroups() []domain.Group
	RefreshGroups(ctx context.Context) error
	JoinGroup(ctx context.Context, groupID domain.ID) error
}

// Drags tracks gestures and applies drops.
type Drags interface {
	Begin(taskID domain.ID)
	Cancel(taskID domain.ID)
	Drop(ev drag.DropEvent) *drag.Pending
	State(taskID domain.ID) drag.State
}

// Session is the credential provider.
type Session interface {
	Seed(ctx context.Context, tok *oauth2.Token) error
	Discard(ctx context.Context) error
	Authenticated() bool
	UserID() (string, error)
}

// Authenticator exchanges user credentials for a token pair.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*oauth2.Token, error)
}

// Deps bundles everything the handlers need.
type Deps struct {
	Store      *board.Store
	Reconciler Reconciler
	Drags      Drags
	Session    Session
	Auth       Authenticator
	Logger     *log.Logger
}

// New builds an echo instance with middleware and every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = sonicSerializer{}
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderContentEncoding},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))
	e.Use(ContentDecodingMiddleware(d.Logger))
	Register(e, d)
	return e
}

// Register wires up all routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	h := &handlers{Deps: d}
	m := RequestMetricsMiddleware(d.Logger)

	e.GET("/healthz", healthz)
	e.GET("/api/board", h.getBoard)
	e.GET("/api/board/stream", h.streamBoard)
	e.POST("/api/board/refresh", h.refreshBoard, m)
	e.POST("/api/board/drags/:id", h.beginDrag)
	e.DELETE("/api/board/drags/:id", h.cancelDrag)
	e.GET("/api/board/drags/:id", h.dragState)
	e.POST("/api/board/drops", h.drop, m)
	e.POST("/api/board/tasks", h.createTask, m)
	e.PUT("/api/board/tasks/:id", h.updateTask, m)

	e.GET("/api/groups", h.listGroups, m)
	e.GET("/api/groups/admin", h.listAdminGroups, m)
	e.POST("/api/groups/join", h.joinGroup, m)

	e.GET("/api/session", h.getSession)
	e.POST("/api/session/login", h.login, m)
	e.POST("/api/session/logout", h.logout, m)
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
