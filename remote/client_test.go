package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/oauth2"

	"github.com/Luka0103/studyconnect/domain"
)

func newTestClient(t *testing.T, e *echo.Echo, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	if opts.Logger == nil {
		opts.Logger = log.New()
	}
	return New(srv.URL, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "access-1"}), opts)
}

func TestListTasksSendsBearer(t *testing.T) {
	e := echo.New()
	var gotAuth, gotRequestID, gotUser string
	e.GET("/api/tasks/user/:uid", func(c echo.Context) error {
		gotAuth = c.Request().Header.Get(echo.HeaderAuthorization)
		gotRequestID = c.Request().Header.Get(headerRequestID)
		gotUser = c.Param("uid")
		return c.JSONBlob(http.StatusOK, []byte(`[{"id":1,"title":"Essay","status":"in_progress"}]`))
	})
	client := newTestClient(t, e, Options{})

	tasks, err := client.ListTasks(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if gotAuth != "Bearer access-1" {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
	if gotRequestID == "" {
		t.Fatalf("expected request id header")
	}
	if gotUser != "user-1" {
		t.Fatalf("unexpected user %q", gotUser)
	}
	if len(tasks) != 1 || tasks[0].ID != "1" || tasks[0].Status != "in_progress" {
		t.Fatalf("unexpected tasks %#v", tasks)
	}
}

func TestCreateTaskDecodesEnvelope(t *testing.T) {
	e := echo.New()
	var got domain.Draft
	var idemKey string
	e.POST("/api/tasks", func(c echo.Context) error {
		idemKey = c.Request().Header.Get(headerIdempotencyKey)
		body, _ := io.ReadAll(c.Request().Body)
		if err := sonic.Unmarshal(body, &got); err != nil {
			return c.String(http.StatusBadRequest, "bad body")
		}
		return c.JSONBlob(http.StatusCreated, []byte(`{"message":"Task created","task":{"id":42,"title":"Essay","deadline":"2024-05-01","kind":"homework","priority":"high","status":"todo","progress":0}}`))
	})
	client := newTestClient(t, e, Options{})

	task, err := client.CreateTask(context.Background(), domain.Draft{Title: "Essay", Deadline: "2024-05-01", Kind: domain.KindHomework, Priority: domain.PriorityHigh})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.ID != "42" || task.Status != "todo" {
		t.Fatalf("unexpected task %#v", task)
	}
	if got.Title != "Essay" || got.Kind != domain.KindHomework {
		t.Fatalf("unexpected draft on the wire %#v", got)
	}
	if idemKey == "" {
		t.Fatalf("expected idempotency key")
	}
}

func TestUpdateTaskAcceptsBareTask(t *testing.T) {
	e := echo.New()
	e.PUT("/api/tasks/:id", func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"id":"`+c.Param("id")+`","title":"New","status":"done"}`))
	})
	client := newTestClient(t, e, Options{})

	title := "New"
	task, err := client.UpdateTask(context.Background(), "9", domain.Patch{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if task.ID != "9" || task.Title != "New" {
		t.Fatalf("unexpected task %#v", task)
	}
}

func TestErrorMessageFromPayload(t *testing.T) {
	e := echo.New()
	e.PUT("/api/tasks/:id", func(c echo.Context) error {
		return c.JSONBlob(http.StatusBadRequest, []byte(`{"error":"Invalid status transition from todo to done"}`))
	})
	client := newTestClient(t, e, Options{})

	err := client.SetStatus(context.Background(), "1", "done")
	var remoteErr *Error
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected *Error, got %T %v", err, err)
	}
	if remoteErr.StatusCode != http.StatusBadRequest || remoteErr.Message != "Invalid status transition from todo to done" {
		t.Fatalf("unexpected error %#v", remoteErr)
	}
}

func TestErrorMessageFallsBackToStatus(t *testing.T) {
	e := echo.New()
	e.GET("/api/groups/user/:uid", func(c echo.Context) error {
		return c.String(http.StatusBadGateway, "<html>bad gateway</html>")
	})
	client := newTestClient(t, e, Options{})

	_, err := client.ListGroups(context.Background(), "u")
	var remoteErr *Error
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected *Error, got %T %v", err, err)
	}
	if remoteErr.Message != "request failed with status 502" {
		t.Fatalf("unexpected message %q", remoteErr.Message)
	}
}

func TestRefreshDoesNotSendBearer(t *testing.T) {
	e := echo.New()
	var gotAuth string
	var body map[string]string
	e.POST("/api/refresh", func(c echo.Context) error {
		gotAuth = c.Request().Header.Get(echo.HeaderAuthorization)
		raw, _ := io.ReadAll(c.Request().Body)
		_ = sonic.Unmarshal(raw, &body)
		return c.JSONBlob(http.StatusOK, []byte(`{"access_token":"access-2","refresh_token":"refresh-2"}`))
	})
	client := newTestClient(t, e, Options{})

	tok, err := client.Refresh(context.Background(), "refresh-1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if gotAuth != "" {
		t.Fatalf("refresh must not carry a bearer, got %q", gotAuth)
	}
	if body["refresh_token"] != "refresh-1" {
		t.Fatalf("unexpected body %v", body)
	}
	if tok.AccessToken != "access-2" || tok.RefreshToken != "refresh-2" {
		t.Fatalf("unexpected token %#v", tok)
	}
}

func TestRefreshDetailsAppendedToMessage(t *testing.T) {
	e := echo.New()
	e.POST("/api/refresh", func(c echo.Context) error {
		return c.JSONBlob(http.StatusUnauthorized, []byte(`{"error":"Failed to refresh token","details":"expired"}`))
	})
	client := newTestClient(t, e, Options{})

	_, err := client.Refresh(context.Background(), "r")
	var remoteErr *Error
	if !errors.As(err, &remoteErr) || !remoteErr.Unauthorized() {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if remoteErr.Message != "Failed to refresh token: expired" {
		t.Fatalf("unexpected message %q", remoteErr.Message)
	}
}

func TestJoinGroupSendsNumericID(t *testing.T) {
	e := echo.New()
	var body map[string]any
	e.POST("/api/groups/join", func(c echo.Context) error {
		raw, _ := io.ReadAll(c.Request().Body)
		_ = sonic.Unmarshal(raw, &body)
		return c.JSONBlob(http.StatusOK, []byte(`{"message":"joined","group":{"id":3,"name":"Algo","groupNumber":1,"memberCount":2}}`))
	})
	client := newTestClient(t, e, Options{})

	g, err := client.JoinGroup(context.Background(), "3")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if v, ok := body["group_id"].(float64); !ok || v != 3 {
		t.Fatalf("expected numeric group id, got %#v", body["group_id"])
	}
	if g.ID != "3" || g.Name != "Algo" {
		t.Fatalf("unexpected group %#v", g)
	}
}

func TestMissingCredentialFailsCall(t *testing.T) {
	e := echo.New()
	called := false
	e.GET("/api/tasks/user/:uid", func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	client := New(srv.URL, failingSource{}, Options{Logger: log.New()})

	if _, err := client.ListTasks(context.Background(), "u"); err == nil {
		t.Fatalf("expected error without credential")
	}
	if called {
		t.Fatalf("request must not reach the backend without a credential")
	}
}

type failingSource struct{}

func (failingSource) Token() (*oauth2.Token, error) { return nil, errors.New("no credential") }

func TestSpansRecordedPerCall(t *testing.T) {
	e := echo.New()
	e.GET("/api/tasks/user/:uid", func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`[]`))
	})
	e.PUT("/api/tasks/:id", func(c echo.Context) error {
		return c.JSONBlob(http.StatusInternalServerError, []byte(`{}`))
	})
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	client := newTestClient(t, e, Options{TracerProvider: tp})

	if _, err := client.ListTasks(context.Background(), "u"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if err := client.SetStatus(context.Background(), "1", "done"); err == nil {
		t.Fatalf("expected error")
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "remote.ListTasks" || spans[1].Name() != "remote.SetStatus" {
		t.Fatalf("unexpected span names %q %q", spans[0].Name(), spans[1].Name())
	}
	if spans[1].Status().Description != "request failed with status 500" {
		t.Fatalf("unexpected span status %#v", spans[1].Status())
	}
}
