package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"draft-polisher/internal/domain"
	"draft-polisher/internal/metrics"
	"draft-polisher/internal/usecase"
)

type stubImprover struct {
	out usecase.ImproveOutput
	err error
	in  usecase.ImproveInput
}

func (s *stubImprover) Improve(_ context.Context, in usecase.ImproveInput) (usecase.ImproveOutput, error) {
	s.in = in
	return s.out, s.err
}

type stubSessions struct {
	rows       []domain.SessionIdentity
	err        error
	identifier string
}

func (s *stubSessions) List(_ context.Context, identifier string) ([]domain.SessionIdentity, error) {
	s.identifier = identifier
	return s.rows, s.err
}

func makeEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/improve",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func newTestHandler(t *testing.T, uc *stubImprover, ss *stubSessions) *Handler {
	t.Helper()
	if ss == nil {
		ss = &stubSessions{}
	}
	h, err := NewHandler(uc, ss, nil, metrics.New())
	require.NoError(t, err)
	return h
}

const validBody = `{"deviceId":"dev-1","persistentUuid":"pid-1","sessionId":"tok-1","content":{"subject":"lunch","body":"can we move lunch","recipient":"Alice"}}`

func TestNewHandler_ValidatesDependencies(t *testing.T) {
	_, err := NewHandler(nil, &stubSessions{}, nil, nil)
	require.Error(t, err)
	_, err = NewHandler(&stubImprover{}, nil, nil, nil)
	require.Error(t, err)
}

func TestHandle_Improve_HappyPath(t *testing.T) {
	uc := &stubImprover{out: usecase.ImproveOutput{
		PersistentID: "pid-1",
		SessionToken: "tok-2",
		Result:       domain.RewriteResult{Subject: "Lunch", Body: "Could we move lunch?", Signoff: "Best,\nBob"},
	}}
	h := newTestHandler(t, uc, nil)

	event := makeEvent(validBody)
	event.Headers["X-Forwarded-For"] = "203.0.113.9, 10.0.0.1"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, usecase.ImproveInput{
		Identifiers: domain.Identifiers{DeviceID: "dev-1", PersistentID: "pid-1", SessionToken: "tok-1"},
		Draft:       domain.DraftMessage{Subject: "lunch", NewText: "can we move lunch", RecipientFirstName: "Alice"},
		IPAddress:   "203.0.113.9",
	}, uc.in)

	out := parseBody[improveResponse](t, resp.Body)
	require.Equal(t, "pid-1", out.PersistentUUID)
	require.Equal(t, "Lunch", out.ImprovedContent.Subject)
	require.Equal(t, "Best,\nBob", out.ImprovedContent.Signoff)

	require.Equal(t, "tok-2", resp.Headers["X-Session-ID"])
	require.Equal(t, "X-Session-ID", resp.Headers["Access-Control-Expose-Headers"])
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}

func TestHandle_Improve_SessionHeaderFallback(t *testing.T) {
	uc := &stubImprover{out: usecase.ImproveOutput{PersistentID: "pid-1", SessionToken: "tok-1"}}
	h := newTestHandler(t, uc, nil)

	event := makeEvent(`{"persistentUuid":"pid-1","content":{"body":"hi"}}`)
	event.Headers["x-session-id"] = "tok-from-header"
	_, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "tok-from-header", uc.in.Identifiers.SessionToken)
}

func TestHandle_InvalidBody(t *testing.T) {
	uc := &stubImprover{}
	h := newTestHandler(t, uc, nil)

	for _, body := range []string{`not-json`, ``} {
		resp, err := h.Handle(context.Background(), makeEvent(body))
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		out := parseBody[errorResponse](t, resp.Body)
		require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
	}
	require.Equal(t, usecase.ImproveInput{}, uc.in)
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{name: "missing body", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "missing_body"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput), message: "Missing content body"},
		{name: "identity", err: &usecase.Error{Code: usecase.ErrorIdentityDenied, Reason: "no_identifiers"}, status: http.StatusUnauthorized, code: string(usecase.ErrorIdentityDenied), message: "Invalid session"},
		{name: "quota", err: &usecase.Error{Code: usecase.ErrorQuotaExceeded, Reason: "daily_limit_reached"}, status: http.StatusTooManyRequests, code: string(usecase.ErrorQuotaExceeded), message: "Daily request limit reached"},
		{name: "upstream", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "rewrite_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorUpstream), message: "Failed to improve content"},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "quota_store_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal), message: "Internal server error"},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal), message: "Internal server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, &stubImprover{err: tc.err}, nil)

			resp, err := h.Handle(context.Background(), makeEvent(validBody))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
			require.Equal(t, tc.message, out.Message)
		})
	}
}

func TestHandle_QuotaDenialStillReturnsSessionToken(t *testing.T) {
	uc := &stubImprover{
		out: usecase.ImproveOutput{PersistentID: "pid-1", SessionToken: "tok-1", QuotaUsed: 50},
		err: &usecase.Error{Code: usecase.ErrorQuotaExceeded, Reason: "daily_limit_reached"},
	}
	h := newTestHandler(t, uc, nil)

	resp, err := h.Handle(context.Background(), makeEvent(validBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "tok-1", resp.Headers["X-Session-ID"])
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h := newTestHandler(t, &stubImprover{out: usecase.ImproveOutput{PersistentID: "pid-1"}}, nil)

	event := makeEvent(validBody)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}

func TestHandle_Sessions(t *testing.T) {
	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	ss := &stubSessions{rows: []domain.SessionIdentity{{ID: "row-1", PersistentID: "pid-1", IPAddress: "10.1.xx.xx", CreatedAt: created, LastAccessedAt: created}}}
	h := newTestHandler(t, &stubImprover{}, ss)

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:     http.MethodGet,
		Path:           "/sessions/pid-1",
		PathParameters: map[string]string{"identifier": "pid-1"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "pid-1", ss.identifier)

	out := parseBody[sessionsResponse](t, resp.Body)
	require.Len(t, out.Sessions, 1)
	require.Equal(t, "10.1.xx.xx", out.Sessions[0].IPAddress)
	require.NotContains(t, resp.Body, `"sessionId"`)
}

func TestHandle_SessionsEmptyListIsArray(t *testing.T) {
	h := newTestHandler(t, &stubImprover{}, &stubSessions{})

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/sessions/dev-9"})
	require.NoError(t, err)
	require.JSONEq(t, `{"sessions":[]}`, resp.Body)
}

func TestHandle_Health(t *testing.T) {
	h := newTestHandler(t, &stubImprover{}, nil)
	h.now = func() time.Time { return time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC) }

	event := events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/health"}
	event.RequestContext.Identity.SourceIP = "192.168.4.20"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"healthy","timestamp":"2024-03-04T05:06:07Z","ip":"192.168.xx.xx"}`, resp.Body)
}

func TestHandle_UnknownRouteAndPreflight(t *testing.T) {
	h := newTestHandler(t, &stubImprover{}, nil)

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/improve"})
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = h.Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodOptions, Path: "/improve"})
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		source  string
		want    string
	}{
		{name: "forwarded first entry", headers: map[string]string{"x-forwarded-for": " 198.51.100.7 , 10.0.0.1"}, source: "10.0.0.2", want: "198.51.100.7"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.8"}, source: "10.0.0.2", want: "198.51.100.8"},
		{name: "source", source: "10.0.0.2", want: "10.0.0.2"},
		{name: "fallback", want: "0.0.0.0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := events.APIGatewayProxyRequest{Headers: tc.headers}
			event.RequestContext.Identity.SourceIP = tc.source
			require.Equal(t, tc.want, clientIP(event))
		})
	}
}

func TestRouter_ServesRoutesAndMetrics(t *testing.T) {
	uc := &stubImprover{out: usecase.ImproveOutput{
		PersistentID: "pid-1",
		SessionToken: "tok-1",
		Result:       domain.RewriteResult{Subject: "S", Body: "B"},
	}}
	ss := &stubSessions{}
	h := newTestHandler(t, uc, ss)

	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	res, err := http.Post(srv.URL+"/improve", "application/json", strings.NewReader(validBody))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "tok-1", res.Header.Get("X-Session-ID"))
	require.Equal(t, "127.0.0.1", uc.in.IPAddress)

	res2, err := http.Get(srv.URL + "/sessions/dev-1")
	require.NoError(t, err)
	defer res2.Body.Close()
	require.Equal(t, http.StatusOK, res2.StatusCode)
	require.Equal(t, "dev-1", ss.identifier)

	res3, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer res3.Body.Close()
	body, err := io.ReadAll(res3.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `draft_polisher_http_requests_total{route="improve",status="200"} 1`)
	require.Contains(t, string(body), `draft_polisher_identities_total{outcome="matched"} 1`)

	res4, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	defer res4.Body.Close()
	require.Equal(t, http.StatusNotFound, res4.StatusCode)
}
