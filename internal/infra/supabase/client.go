// Package supabase is the persistence backend that talks to a Supabase
// project over its PostgREST API. It implements port.Store.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/boddenberg/ccb-backoffice-go/internal/domain"
	"github.com/boddenberg/ccb-backoffice-go/internal/infra/observability"
	"github.com/boddenberg/ccb-backoffice-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("supabase")

// PostgreSQL error codes PostgREST passes through in the response body.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeInvalidText         = "22P02"
)

// Client wraps HTTP calls to Supabase PostgREST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	cfg            resilience.Config
	bulkhead       *resilience.Bulkhead
	metrics        *observability.Metrics
	logger         *zap.Logger
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     httpClient,
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		cfg:            cfg,
		bulkhead:       resilience.NewBulkhead(cfg.MaxConcurrency),
		logger:         logger,
	}
}

// WithMetrics makes the client count upstream failures.
func (c *Client) WithMetrics(m *observability.Metrics) *Client {
	c.metrics = m
	return c
}

// apiError is a non-2xx PostgREST reply.
type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase returned status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase returned status %d: %s", e.Status, e.Message)
}

func (e *apiError) clientSide() bool {
	return e.Status >= 400 && e.Status < 500
}

// errCode returns the PostgreSQL error code carried by err, if any.
func errCode(err error) string {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

type request struct {
	method string
	path   string // relative to /rest/v1/
	body   any
	prefer string
}

type response struct {
	body   []byte
	header http.Header
}

// doRequest executes one authenticated request. Client-side failures come
// back wrapped with resilience.Permanent so they are not retried.
func (c *Client) doRequest(ctx context.Context, r request) (*response, error) {
	var payload io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return nil, resilience.Permanent(fmt.Errorf("supabase: encode body: %w", err))
		}
		payload = bytes.NewReader(b)
	}

	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, r.path)
	req, err := http.NewRequestWithContext(ctx, r.method, url, payload)
	if err != nil {
		return nil, resilience.Permanent(err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.serviceRoleKey))
	req.Header.Set("Content-Type", "application/json")
	if r.prefer != "" {
		req.Header.Set("Prefer", r.prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("method", r.method),
			zap.String("path", r.path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("supabase: read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: non-2xx response",
			zap.String("method", r.method),
			zap.String("path", r.path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		apiErr := &apiError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(body, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = string(body)
		}
		if apiErr.clientSide() {
			return nil, resilience.Permanent(apiErr)
		}
		return nil, apiErr
	}

	c.logger.Debug("supabase: request OK",
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
	)
	return &response{body: body, header: resp.Header}, nil
}

// call runs doRequest behind the bulkhead, the retry loop and the circuit
// breaker.
func (c *Client) call(ctx context.Context, r request) (*response, error) {
	var out *response
	_, err := c.cb.Execute(func() (any, error) {
		err := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			return c.bulkhead.Run(ctx, func() error {
				resp, err := c.doRequest(ctx, r)
				if err != nil {
					return err
				}
				out = resp
				return nil
			})
		})
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.clientSide() {
			// keep 4xx from counting against the breaker
			return nil, resilience.Permanent(err)
		}
		return nil, err
	})
	if err != nil && !resilience.IsPermanent(err) && c.metrics != nil {
		c.metrics.IncrExternalError("supabase")
	}
	return out, err
}

// wrapErr converts transport failures into domain errors.
func wrapErr(op string, err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &domain.ErrCircuitOpen{Service: "supabase"}
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.ErrTimeout{Operation: "supabase/" + op}
	}
	return &domain.ErrExternalService{Service: "supabase/" + op, Err: err}
}

// decodeRows decodes a PostgREST array response.
func decodeRows[T any](resp *response) ([]T, error) {
	var rows []T
	if resp == nil || len(resp.body) == 0 {
		return rows, nil
	}
	if err := json.Unmarshal(resp.body, &rows); err != nil {
		return nil, fmt.Errorf("supabase: decode rows: %w", err)
	}
	return rows, nil
}

// contentRangeTotal extracts the total from a "0-9/42" Content-Range header.
func contentRangeTotal(h http.Header) (int, error) {
	cr := h.Get("Content-Range")
	i := strings.LastIndex(cr, "/")
	if i < 0 {
		return 0, fmt.Errorf("supabase: missing count in Content-Range %q", cr)
	}
	n, err := strconv.Atoi(cr[i+1:])
	if err != nil {
		return 0, fmt.Errorf("supabase: parse Content-Range %q: %w", cr, err)
	}
	return n, nil
}

// Ping checks that PostgREST answers.
func (c *Client) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Supabase.Ping")
	defer span.End()

	if _, err := c.doRequest(ctx, request{method: http.MethodGet, path: "customers?select=id&limit=1"}); err != nil {
		return wrapErr("ping", err)
	}
	return nil
}
