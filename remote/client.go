// Package remote talks to the StudyConnect backend: tasks, groups and
// credential refresh.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/Luka0103/studyconnect/domain"
)

const (
	tracerName      = "github.com/Luka0103/studyconnect/remote"
	maxResponseSize = 4 << 20 // 4 MiB

	headerRequestID      = "X-Request-ID"
	headerIdempotencyKey = "Idempotency-Key"
)

// Options configures a Client.
type Options struct {
	// Timeout bounds every request. Zero means 15s.
	Timeout time.Duration
	// Transport is the base round tripper, http.DefaultTransport when nil.
	Transport      http.RoundTripper
	TracerProvider trace.TracerProvider
	Logger         *log.Logger
}

// Client is an HTTP client for the backend. Authenticated calls carry the
// bearer credential of the injected token source.
type Client struct {
	baseURL string
	authed  *http.Client
	anon    *http.Client
	tracer  trace.Tracer
	logger  *log.Logger
}

// New creates a client for baseURL. tokens supplies the access credential for
// every authenticated call.
func New(baseURL string, tokens oauth2.TokenSource, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		authed: &http.Client{
			Timeout:   opts.Timeout,
			Transport: &oauth2.Transport{Source: tokens, Base: base},
		},
		anon:   &http.Client{Timeout: opts.Timeout, Transport: base},
		tracer: tp.Tracer(tracerName),
		logger: logger,
	}
}

type taskEnvelope struct {
	Message string       `json:"message,omitempty"`
	Task    *domain.Task `json:"task"`
}

type groupEnvelope struct {
	Message string        `json:"message,omitempty"`
	Group   *domain.Group `json:"group"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// ListTasks returns every task visible to userID.
func (c *Client) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	var tasks []domain.Task
	if err := c.do(ctx, c.authed, "ListTasks", http.MethodGet, "/api/tasks/user/"+url.PathEscape(userID), nil, nil, &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}

// CreateTask submits a draft and returns the canonical task with its
// server-assigned id.
func (c *Client) CreateTask(ctx context.Context, draft domain.Draft) (domain.Task, error) {
	hdr := http.Header{}
	hdr.Set(headerIdempotencyKey, uuid.NewString())
	return c.taskCall(ctx, "CreateTask", http.MethodPost, "/api/tasks", draft, hdr)
}

// UpdateTask sends the changed fields of a task and returns the canonical copy.
func (c *Client) UpdateTask(ctx context.Context, id domain.ID, patch domain.Patch) (domain.Task, error) {
	return c.taskCall(ctx, "UpdateTask", http.MethodPut, "/api/tasks/"+url.PathEscape(string(id)), patch, nil)
}

// SetStatus persists a new status for a task.
func (c *Client) SetStatus(ctx context.Context, id domain.ID, status domain.Status) error {
	body := map[string]string{"status": status}
	return c.do(ctx, c.authed, "SetStatus", http.MethodPut, "/api/tasks/"+url.PathEscape(string(id)), body, nil, nil)
}

// ListGroups returns the groups userID is a member of.
func (c *Client) ListGroups(ctx context.Context, userID string) ([]domain.Group, error) {
	return c.groups(ctx, "ListGroups", "/api/groups/user/"+url.PathEscape(userID))
}

// ListAdminGroups returns the groups userID administers.
func (c *Client) ListAdminGroups(ctx context.Context, userID string) ([]domain.Group, error) {
	return c.groups(ctx, "ListAdminGroups", "/api/groups/admin/"+url.PathEscape(userID))
}

// JoinGroup makes the session user a member of groupID.
func (c *Client) JoinGroup(ctx context.Context, groupID domain.ID) (domain.Group, error) {
	body := map[string]any{"group_id": string(groupID)}
	if n, ok := groupID.Int(); ok {
		body["group_id"] = n
	}
	var env groupEnvelope
	if err := c.do(ctx, c.authed, "JoinGroup", http.MethodPost, "/api/groups/join", body, nil, &env); err != nil {
		return domain.Group{}, err
	}
	if env.Group == nil {
		return domain.Group{ID: groupID}, nil
	}
	return *env.Group, nil
}

// Refresh exchanges a refresh credential for a new pair. The returned token
// has an empty RefreshToken when the backend did not rotate it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	var resp tokenResponse
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, c.anon, "Refresh", http.MethodPost, "/api/refresh", body, nil, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("refresh: response carries no access token")
	}
	return &oauth2.Token{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken, TokenType: "Bearer"}, nil
}

// Login obtains the initial credential pair.
func (c *Client) Login(ctx context.Context, username, password string) (*oauth2.Token, error) {
	var resp tokenResponse
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, c.anon, "Login", http.MethodPost, "/api/login", body, nil, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("login: response carries no access token")
	}
	return &oauth2.Token{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken, TokenType: "Bearer"}, nil
}

func (c *Client) groups(ctx context.Context, op, path string) ([]domain.Group, error) {
	var groups []domain.Group
	if err := c.do(ctx, c.authed, op, http.MethodGet, path, nil, nil, &groups); err != nil {
		return nil, err
	}
	if groups == nil {
		groups = []domain.Group{}
	}
	return groups, nil
}

func (c *Client) taskCall(ctx context.Context, op, method, path string, body any, hdr http.Header) (domain.Task, error) {
	var raw []byte
	if err := c.do(ctx, c.authed, op, method, path, body, hdr, &raw); err != nil {
		return domain.Task{}, err
	}
	var env taskEnvelope
	if err := sonic.Unmarshal(raw, &env); err == nil && env.Task != nil {
		return *env.Task, nil
	}
	// Some deployments answer with the bare task.
	var task domain.Task
	if err := sonic.Unmarshal(raw, &task); err != nil {
		return domain.Task{}, fmt.Errorf("%s: decode response: %w", op, err)
	}
	if task.ID == "" {
		return domain.Task{}, fmt.Errorf("%s: response carries no task", op)
	}
	return task, nil
}

// do performs one request. out may be nil, a *[]byte receiving the raw body,
// or any value sonic can decode into.
func (c *Client) do(ctx context.Context, hc *http.Client, op, method, path string, body any, hdr http.Header, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "remote."+op, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		))
	start := time.Now()
	status := 0
	defer func() {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		fields := log.Fields{
			"op":          op,
			"method":      method,
			"path":        path,
			"status":      status,
			"duration_ms": durationToMillis(time.Since(start)),
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		c.logger.WithFields(fields).Debug("remote.request")
	}()

	var reader io.Reader
	if body != nil {
		payload, mErr := sonic.Marshal(body)
		if mErr != nil {
			return fmt.Errorf("%s: encode request: %w", op, mErr)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(headerRequestID, uuid.NewString())

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(resp.StatusCode, data)
	}
	switch o := out.(type) {
	case nil:
		return nil
	case *[]byte:
		*o = data
		return nil
	default:
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := sonic.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
		return nil
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
