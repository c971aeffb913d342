package handler

import (
	"io"
	"net"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxBodyBytes = 1 << 20

// Router serves the same routes as Handle over plain HTTP, plus /metrics.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/improve", h.serveHTTP)
	r.Get("/sessions/{identifier}", h.serveHTTP)
	r.Get("/health", h.serveHTTP)
	r.Options("/*", h.serveHTTP)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	r.NotFound(h.serveHTTP)
	return r
}

func (h *Handler) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	event := events.APIGatewayProxyRequest{
		HTTPMethod: r.Method,
		Path:       r.URL.Path,
		Headers:    headers,
		Body:       string(body),
	}
	if id := chi.URLParam(r, "identifier"); id != "" {
		event.PathParameters = map[string]string{"identifier": id}
	}
	event.RequestContext.Identity.SourceIP = remoteHost(r.RemoteAddr)

	resp, _ := h.Handle(r.Context(), event)
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.WriteString(w, resp.Body)
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
