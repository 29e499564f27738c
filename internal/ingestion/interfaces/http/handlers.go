package http

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/originsignal/ingestion/internal/ingestion/application/dto"
	"github.com/originsignal/ingestion/internal/ingestion/application/ports"
	"github.com/originsignal/ingestion/internal/ingestion/application/usecase"
	apperrors "github.com/originsignal/ingestion/pkg/errors"
	"github.com/originsignal/ingestion/pkg/logger"
	"github.com/originsignal/ingestion/pkg/tracer"
	"github.com/originsignal/ingestion/pkg/validator"
)

var httpTracer = otel.Tracer("ingestion.http")

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Handler holds the ingestion HTTP surface's dependencies: C1 and the
// synchronous half of C2/C3, plus the rate limiter fronting both.
type Handler struct {
	authUseCase   *usecase.AuthenticateTokenUseCase
	ingestUseCase *usecase.IngestEventUseCase
	rateLimiter   ports.RateLimiter
	clock         ports.Clock
	validator     *validator.Validator
}

// HandlerDependencies bundles everything NewHandler needs to assemble.
type HandlerDependencies struct {
	AuthUseCase   *usecase.AuthenticateTokenUseCase
	IngestUseCase *usecase.IngestEventUseCase
	RateLimiter   ports.RateLimiter
	Clock         ports.Clock
}

// NewHandler constructs the handler set.
func NewHandler(deps HandlerDependencies) *Handler {
	clock := deps.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Handler{
		authUseCase:   deps.AuthUseCase,
		ingestUseCase: deps.IngestUseCase,
		rateLimiter:   deps.RateLimiter,
		clock:         clock,
		validator:     validator.New(),
	}
}

// TrackEvent handles POST /api/tracking/events (§6).
func (h *Handler) TrackEvent(w http.ResponseWriter, r *http.Request) {
	ctx, span := httpTracer.Start(r.Context(), "POST /api/tracking/events")
	span.SetAttributes(tracer.HTTPMethod(r.Method), tracer.HTTPURL(r.URL.Path))
	var err error
	defer func() { endSpan(span, err) }()

	token := tokenFromContext(ctx)
	if token == nil {
		err = apperrors.ErrUnauthorized("authentication required")
		h.respondError(w, err)
		return
	}

	req, rawExtra, err := h.decodeTrackEventRequest(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	req.RawExtra = rawExtra

	if err = h.validator.Validate(req); err != nil {
		h.respondError(w, err)
		return
	}

	clientIP := clientIPFromRequest(r)
	var resp *dto.TrackEventResponse
	resp, err = h.ingestUseCase.Execute(ctx, token, req, clientIP, r.UserAgent())
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, resp)
}

// Health handles GET /api/tracking/health (§6). It has no dependency on
// anything downstream: a 200 here only promises the process is serving
// HTTP, not that the database or queue are reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, dto.HealthResponse{
		Status:    "ok",
		Timestamp: h.clock.Now().Format(time.RFC3339),
	})
}

// decodeTrackEventRequest decodes the body twice: once into the typed DTO
// for the named fields, once into a raw map so collectUTMs (in the
// application layer) can still see arbitrary utm_* custom keys the DTO has
// no field for.
func (h *Handler) decodeTrackEventRequest(r *http.Request) (dto.TrackEventRequest, map[string]json.RawMessage, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return dto.TrackEventRequest{}, nil, apperrors.Wrap(err, apperrors.ErrCodeBadRequest, "failed to read request body")
	}

	var req dto.TrackEventRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return dto.TrackEventRequest{}, nil, apperrors.New(apperrors.ErrCodeValidation, "invalid JSON body").WithField("body", err.Error())
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return dto.TrackEventRequest{}, nil, apperrors.New(apperrors.ErrCodeValidation, "invalid JSON body").WithField("body", err.Error())
	}

	return req, raw, nil
}

// respondJSON writes a success body verbatim, with no enclosing envelope —
// §6 fixes the exact shape per endpoint, so nothing here may add to it.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error().Err(err).Msg("failed to encode response body")
	}
}

// respondError classifies err into one of §6/§7's three error shapes and
// writes it.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status, body := classifyError(err)
	h.respondJSON(w, status, body)
}
