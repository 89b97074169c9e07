// Package handler exposes the sales copilot over HTTP, either behind API
// Gateway (Handle) or as a plain http.Handler (Router).
package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sales-copilot/internal/domain"
	"sales-copilot/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	maxBodyBytes      = 1 << 20
)

// Service is the application surface the routes call into.
// *usecase.Service satisfies it.
type Service interface {
	GetCall(ctx context.Context, sessionID string) (usecase.CallView, error)
	StartCall(ctx context.Context, sessionID string) (usecase.CallView, error)
	RetryStep(ctx context.Context, sessionID string) (usecase.CallView, error)
	RecordResponse(ctx context.Context, sessionID string, in usecase.RecordResponseInput) (usecase.CallView, error)
	RefreshRecommendations(ctx context.Context, sessionID string) (usecase.CallView, error)
	SelectStrategy(ctx context.Context, sessionID string, rec domain.AIRecommendation) (usecase.CallView, error)
	CompleteStep(ctx context.Context, sessionID, stepID string) (usecase.CallView, error)

	Offer(ctx context.Context, sessionID string) (usecase.OfferView, error)
	ChangeSelection(ctx context.Context, sessionID string, change usecase.SelectionChange) (usecase.OfferView, error)
	SeedFromBundle(ctx context.Context, sessionID, bundleID string) (usecase.OfferView, error)
	SaveSelectionAsBundle(ctx context.Context, sessionID, name string, description *string) (domain.OfferBundle, error)
	BundleItems(ctx context.Context, bundleID string) ([]domain.ResolvedBundleItem, error)
	BundleLineage(ctx context.Context, bundleID string) ([]domain.OfferBundle, error)
	UpdateSession(ctx context.Context, sessionID string, in usecase.SessionUpdate) error
	FindObjectionHandlers(text string) usecase.ObjectionMatch
}

// Flusher drains queued session writes. *repository.Writer satisfies it.
type Flusher interface {
	Flush(ctx context.Context) error
}

type Handler struct {
	svc         Service
	flusher     Flusher
	log         *slog.Logger
	corsOrigins []string
	router      chi.Router
}

type Option func(*Handler)

// WithFlusher makes Handle wait for queued session writes before returning.
func WithFlusher(f Flusher) Option {
	return func(h *Handler) { h.flusher = f }
}

func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithCORSOrigins enables CORS for the given origins.
func WithCORSOrigins(origins ...string) Option {
	return func(h *Handler) { h.corsOrigins = origins }
}

func NewHandler(svc Service, opts ...Option) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: service must not be nil")
	}
	h := &Handler{svc: svc, log: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	h.router = h.routes()
	return h, nil
}

// Router returns the HTTP routes.
func (h *Handler) Router() http.Handler {
	return h.router
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// Handle adapts an API Gateway proxy event onto the router.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	req, err := toHTTPRequest(ctx, event)
	if err != nil {
		h.log.Warn("rejecting malformed event", "err", err)
		rec := newRecorder()
		writeError(rec, http.StatusBadRequest, usecase.ErrorInvalidInput, "invalid_event")
		return rec.response(), nil
	}

	rec := newRecorder()
	h.router.ServeHTTP(rec, req)

	if h.flusher != nil {
		if err := h.flusher.Flush(ctx); err != nil {
			h.log.Error("session writes not flushed", "err", err)
		}
	}
	return rec.response(), nil
}

func toHTTPRequest(ctx context.Context, event events.APIGatewayProxyRequest) (*http.Request, error) {
	body := []byte(event.Body)
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(event.Body)
		if err != nil {
			return nil, fmt.Errorf("decode base64 body: %w", err)
		}
		body = decoded
	}

	q := url.Values{}
	for k, vs := range event.MultiValueQueryStringParameters {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	for k, v := range event.QueryStringParameters {
		if _, ok := q[k]; !ok {
			q.Set(k, v)
		}
	}
	path := event.Path
	if path == "" {
		path = "/"
	}
	target := (&url.URL{Path: path, RawQuery: q.Encode()}).String()

	method := event.HTTPMethod
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, vs := range event.MultiValueHeaders {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, v := range event.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return req, nil
}

// recorder buffers a response for the Lambda proxy integration.
type recorder struct {
	status int
	header http.Header
	body   bytes.Buffer
}

func newRecorder() *recorder {
	return &recorder{header: http.Header{}}
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(b)
}

func (r *recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *recorder) response() events.APIGatewayProxyResponse {
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	headers := make(map[string]string, len(r.header))
	for k, vs := range r.header {
		if len(vs) > 0 {
			headers[k] = strings.Join(vs, ",")
		}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers,
		Body:       r.body.String(),
	}
}

// correlate assigns the request's correlation id and logs one line per request.
func (h *Handler) correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(correlationHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(correlationHeader, id)

		sw := &statusWriter{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(sw, r)

		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		h.log.Info("request",
			"correlation_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorInvalidState, usecase.ErrorConflict:
		return http.StatusConflict
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ue *usecase.Error
	if !errors.As(err, &ue) {
		h.log.Error("unexpected error", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, usecase.ErrorInternal, "")
		return
	}
	status := statusFor(ue.Code)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "path", r.URL.Path, "code", ue.Code, "reason", ue.Reason, "err", ue.Err)
	}
	writeError(w, status, ue.Code, ue.Reason)
}

func writeError(w http.ResponseWriter, status int, code usecase.ErrorCode, reason string) {
	writeJSON(w, status, errorResponse{Error: string(code), Reason: reason})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeStrict rejects unknown fields and trailing data.
func decodeStrict(r io.Reader, v any) error {
	dec := json.NewDecoder(io.LimitReader(r, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected trailing data")
	}
	return nil
}
