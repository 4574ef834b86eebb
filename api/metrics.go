package api

import (
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	metricsKey = "board.metrics"
	tracerName = "github.com/Luka0103/studyconnect/api"
)

type requestMetrics struct {
	logger         *log.Logger
	span           trace.Span
	route          string
	method         string
	start          time.Time
	remoteDuration time.Duration
	tasks          int
	outcome        string
	errorStage     string
}

func newRequestMetrics(logger *log.Logger, span trace.Span, method, route string) *requestMetrics {
	return &requestMetrics{
		logger: logger,
		span:   span,
		route:  route,
		method: method,
		start:  time.Now(),
		tasks:  -1,
	}
}

// ObserveRemote records time spent waiting for the backend.
func (m *requestMetrics) ObserveRemote(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.remoteDuration += duration
}

func (m *requestMetrics) SetTasks(count int) {
	if m == nil {
		return
	}
	if count < 0 {
		count = 0
	}
	m.tasks = count
}

func (m *requestMetrics) SetOutcome(outcome string) {
	if m == nil {
		return
	}
	m.outcome = outcome
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if m == nil || stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *requestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	fields := log.Fields{
		"route":    m.route,
		"method":   m.method,
		"status":   status,
		"total_ms": durationToMillis(time.Since(m.start)),
	}
	if m.remoteDuration > 0 {
		fields["remote_ms"] = durationToMillis(m.remoteDuration)
	}
	if m.tasks >= 0 {
		fields["tasks"] = m.tasks
	}
	if m.outcome != "" {
		fields["outcome"] = m.outcome
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	if m.span != nil {
		m.span.SetAttributes(
			attribute.String("http.route", m.route),
			attribute.Int("http.status_code", status),
		)
		if m.errorStage != "" {
			m.span.SetStatus(codes.Error, m.errorStage)
		}
	}

	m.logger.WithFields(fields).Info("board.request.metrics")
}

// RequestMetricsMiddleware opens a span per request and logs one metrics line
// when the handler returns. Handlers add detail through metricsFrom.
func RequestMetricsMiddleware(logger *log.Logger) echo.MiddlewareFunc {
	tracer := otel.Tracer(tracerName)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			ctx, span := tracer.Start(req.Context(), "board.request "+c.Path())
			defer span.End()
			c.SetRequest(req.WithContext(ctx))

			m := newRequestMetrics(logger, span, req.Method, c.Path())
			c.Set(metricsKey, m)
			defer func() {
				status := c.Response().Status
				if he, ok := err.(*echo.HTTPError); ok && !c.Response().Committed {
					status = he.Code
				}
				m.Log(status, err)
			}()
			return next(c)
		}
	}
}

// metricsFrom returns the request's metrics, or nil outside the middleware.
// Every method on a nil *requestMetrics is a no-op.
func metricsFrom(c echo.Context) *requestMetrics {
	m, _ := c.Get(metricsKey).(*requestMetrics)
	return m
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
