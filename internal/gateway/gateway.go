package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/telehealth-bff/internal/apierr"
	"github.com/wolfman30/telehealth-bff/internal/auth"
	"github.com/wolfman30/telehealth-bff/pkg/logging"
)

var gatewayTracer = otel.Tracer("telehealth.internal.gateway")

const maxResponseBytes = 8 << 20

// Recorder receives per-call upstream observations.
type Recorder interface {
	ObserveUpstream(backend, endpoint string, status int, seconds float64)
}

// Gateway calls backend services over a shared HTTP client.
type Gateway struct {
	bases      map[Backend]*url.URL
	httpClient *http.Client
	logger     *logging.Logger
	metrics    Recorder
	now        func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		if c != nil {
			g.httpClient = c
		}
	}
}

// WithRecorder attaches an upstream metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(g *Gateway) { g.metrics = r }
}

// New builds a Gateway for the given backend base URLs. Every call gets timeout as
// its upper bound; a zero timeout means 30 seconds.
func New(baseURLs map[Backend]string, timeout time.Duration, logger *logging.Logger, opts ...Option) (*Gateway, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	g := &Gateway{
		bases:      make(map[Backend]*url.URL, len(baseURLs)),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		now:        time.Now,
	}
	for backend, raw := range baseURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("gateway: invalid base url for %s backend: %q", backend, raw)
		}
		g.bases[backend] = u
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Call performs one HTTP request against backend and returns the raw response.
// Network failures, timeouts and unreadable bodies come back as a transport error
// carrying the generic client message.
func (g *Gateway) Call(ctx context.Context, backend Backend, req Request, headers http.Header) (*Response, *apierr.Error) {
	name := req.Name
	if name == "" {
		name = req.Path
	}
	ctx, span := gatewayTracer.Start(ctx, "gateway.call", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("telehealth.backend", string(backend)),
		attribute.String("telehealth.endpoint", name),
	)

	if hasDotSegment(req.Path) {
		span.SetStatus(codes.Error, "invalid path")
		g.logger.Warn("gateway path rejected", "backend", backend, "endpoint", name)
		return nil, apierr.BadRequest("Invalid path parameter")
	}

	target, err := g.buildURL(backend, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build url")
		g.logger.Error("gateway request not built", "backend", backend, "endpoint", name, "error", err)
		return nil, apierr.Transport(err)
	}

	body, contentType, err := req.encodeBody()
	if err != nil {
		span.RecordError(err)
		g.logger.Error("gateway body not encoded", "backend", backend, "endpoint", name, "error", err)
		return nil, apierr.Transport(err)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		span.RecordError(err)
		return nil, apierr.Transport(fmt.Errorf("gateway: %s request: %w", name, err))
	}
	for k, vs := range headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, vs := range req.ExtraHeaders {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	started := g.now()
	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		g.observe(backend, name, 0, started)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		g.logger.Error("backend unreachable",
			"backend", backend,
			"endpoint", name,
			"method", method,
			"error", err,
		)
		return nil, apierr.Transport(fmt.Errorf("gateway: %s %s: %w", method, name, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	g.observe(backend, name, resp.StatusCode, started)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if err != nil {
		span.RecordError(err)
		g.logger.Error("backend body unreadable", "backend", backend, "endpoint", name, "status", resp.StatusCode, "error", err)
		return nil, apierr.Transport(fmt.Errorf("gateway: read %s body: %w", name, err))
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		g.logger.Warn("backend error", "backend", backend, "endpoint", name, "status", resp.StatusCode)
	} else {
		g.logger.Debug("backend call", "backend", backend, "endpoint", name, "status", resp.StatusCode)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}

// Do builds headers for res, calls ep and normalizes the response.
func (g *Gateway) Do(ctx context.Context, ep Endpoint, res auth.Result, req Request, inbound http.Header) (*Payload, *apierr.Error) {
	if req.Method == "" {
		req.Method = ep.Method
	}
	if req.Name == "" {
		req.Name = ep.Name
	}
	if req.Path == "" {
		req.Path = ep.Path
	}
	resp, apiErr := g.Call(ctx, ep.Backend, req, BuildHeaders(ep.Backend, res, inbound))
	if apiErr != nil {
		return nil, apiErr
	}
	payload, apiErr := Normalize(ep, resp)
	if apiErr != nil && apiErr.Code == apierr.CodeTransportFailure {
		g.logger.Error("backend response not decoded", "backend", ep.Backend, "endpoint", ep.Name, "error", apiErr)
	}
	return payload, apiErr
}

func (g *Gateway) buildURL(backend Backend, req Request) (string, error) {
	base, ok := g.bases[backend]
	if !ok {
		return "", fmt.Errorf("gateway: %s backend not configured", backend)
	}
	u := base.JoinPath(req.Path)
	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (g *Gateway) observe(backend Backend, endpoint string, status int, started time.Time) {
	if g.metrics == nil {
		return
	}
	g.metrics.ObserveUpstream(string(backend), endpoint, status, g.now().Sub(started).Seconds())
}
