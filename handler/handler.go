package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"draft-polisher/internal/domain"
	"draft-polisher/internal/logging"
	"draft-polisher/internal/metrics"
	"draft-polisher/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	sessionHeader     = "X-Session-ID"
)

type Improver interface {
	Improve(ctx context.Context, in usecase.ImproveInput) (usecase.ImproveOutput, error)
}

type SessionLister interface {
	List(ctx context.Context, identifier string) ([]domain.SessionIdentity, error)
}

type Handler struct {
	improve  Improver
	sessions SessionLister
	log      logging.Logger
	metrics  *metrics.Recorder
	now      func() time.Time
}

type improveContent struct {
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Recipient string `json:"recipient"`
}

type improveRequest struct {
	DeviceID       string         `json:"deviceId"`
	PersistentUUID string         `json:"persistentUuid"`
	SessionID      string         `json:"sessionId"`
	Content        improveContent `json:"content"`
}

type improveResponse struct {
	PersistentUUID  string               `json:"persistentUuid"`
	ImprovedContent domain.RewriteResult `json:"improvedContent"`
}

type sessionsResponse struct {
	Sessions []domain.SessionIdentity `json:"sessions"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	IP        string `json:"ip"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewHandler wires the use cases. rec may be nil.
func NewHandler(improve Improver, sessions SessionLister, log logging.Logger, rec *metrics.Recorder) (*Handler, error) {
	if improve == nil {
		return nil, errors.New("handler: improve service must not be nil")
	}
	if sessions == nil {
		return nil, errors.New("handler: sessions service must not be nil")
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{improve: improve, sessions: sessions, log: log, metrics: rec, now: time.Now}, nil
}

// Handle serves one API Gateway proxy event.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := header(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	route, resp := h.route(ctx, event, correlationID)
	resp.Headers[correlationHeader] = correlationID
	h.metrics.Request(route, resp.StatusCode)
	return resp, nil
}

func (h *Handler) route(ctx context.Context, event events.APIGatewayProxyRequest, correlationID string) (string, events.APIGatewayProxyResponse) {
	path := strings.TrimRight(event.Path, "/")
	switch {
	case event.HTTPMethod == http.MethodOptions:
		return "preflight", newResponse(http.StatusNoContent, "")
	case path == "/improve" && event.HTTPMethod == http.MethodPost:
		return "improve", h.handleImprove(ctx, event, correlationID)
	case strings.HasPrefix(path, "/sessions/") && event.HTTPMethod == http.MethodGet:
		identifier := event.PathParameters["identifier"]
		if identifier == "" {
			identifier = strings.TrimPrefix(path, "/sessions/")
		}
		return "sessions", h.handleSessions(ctx, identifier, correlationID)
	case path == "/health" && event.HTTPMethod == http.MethodGet:
		return "health", h.jsonResponse(http.StatusOK, healthResponse{
			Status:    "healthy",
			Timestamp: h.now().UTC().Format(time.RFC3339),
			IP:        logging.MaskIP(clientIP(event)),
		})
	}
	return "unknown", h.jsonResponse(http.StatusNotFound, errorResponse{Error: "NOT_FOUND", Message: "Route not found"})
}

func (h *Handler) handleImprove(ctx context.Context, event events.APIGatewayProxyRequest, correlationID string) events.APIGatewayProxyResponse {
	var req improveRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		h.log.Warn("invalid request body", "correlation_id", correlationID, "err", err)
		return h.jsonResponse(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Message: "Invalid JSON body"})
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = header(event.Headers, sessionHeader)
	}

	out, err := h.improve.Improve(ctx, usecase.ImproveInput{
		Identifiers: domain.Identifiers{
			DeviceID:     strings.TrimSpace(req.DeviceID),
			PersistentID: strings.TrimSpace(req.PersistentUUID),
			SessionToken: strings.TrimSpace(sessionID),
		},
		Draft: domain.DraftMessage{
			Subject:            req.Content.Subject,
			NewText:            req.Content.Body,
			RecipientFirstName: req.Content.Recipient,
		},
		IPAddress: clientIP(event),
	})
	if out.PersistentID != "" {
		h.metrics.Identity(out.IdentityCreated)
	}

	var resp events.APIGatewayProxyResponse
	if err != nil {
		resp = h.errorResponse(err, correlationID)
	} else {
		resp = h.jsonResponse(http.StatusOK, improveResponse{PersistentUUID: out.PersistentID, ImprovedContent: out.Result})
	}
	if out.SessionToken != "" {
		resp.Headers[sessionHeader] = out.SessionToken
	}
	return resp
}

func (h *Handler) handleSessions(ctx context.Context, identifier, correlationID string) events.APIGatewayProxyResponse {
	rows, err := h.sessions.List(ctx, identifier)
	if err != nil {
		return h.errorResponse(err, correlationID)
	}
	if rows == nil {
		rows = []domain.SessionIdentity{}
	}
	return h.jsonResponse(http.StatusOK, sessionsResponse{Sessions: rows})
}

func (h *Handler) errorResponse(err error, correlationID string) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		h.log.Error("unexpected error", "correlation_id", correlationID, "err", err)
		return h.jsonResponse(http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal), Message: "Internal server error"})
	}

	status, message := http.StatusInternalServerError, "Internal server error"
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		status, message = http.StatusBadRequest, "Invalid request"
		if ucErr.Reason == "missing_body" {
			message = "Missing content body"
		}
	case usecase.ErrorIdentityDenied:
		status, message = http.StatusUnauthorized, "Invalid session"
	case usecase.ErrorQuotaExceeded:
		status, message = http.StatusTooManyRequests, "Daily request limit reached"
		h.metrics.QuotaDenied()
	case usecase.ErrorUpstream:
		message = "Failed to improve content"
		h.metrics.UpstreamError(ucErr.Reason)
	}

	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "correlation_id", correlationID, "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
	} else {
		h.log.Info("request rejected", "correlation_id", correlationID, "code", ucErr.Code, "reason", ucErr.Reason)
	}
	return h.jsonResponse(status, errorResponse{Error: string(ucErr.Code), Message: message})
}

func (h *Handler) jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		h.log.Error("failed to encode response", "err", err)
		return newResponse(http.StatusInternalServerError, `{"error":"INTERNAL_ERROR","message":"Internal server error"}`)
	}
	return newResponse(status, string(body))
}

func newResponse(status int, body string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":                  "application/json",
			"Access-Control-Allow-Origin":   "*",
			"Access-Control-Allow-Methods":  "GET, POST, OPTIONS",
			"Access-Control-Allow-Headers":  "Content-Type, X-Session-ID, X-Correlation-Id",
			"Access-Control-Expose-Headers": sessionHeader,
		},
		Body: body,
	}
}

// clientIP prefers the first X-Forwarded-For entry, then X-Real-IP, then the
// connection's source address.
func clientIP(event events.APIGatewayProxyRequest) string {
	if fwd := header(event.Headers, "X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if xr := strings.TrimSpace(header(event.Headers, "X-Real-IP")); xr != "" {
		return xr
	}
	if src := event.RequestContext.Identity.SourceIP; src != "" {
		return src
	}
	return "0.0.0.0"
}

func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
