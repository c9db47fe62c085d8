// Package handlers implements the playground routes. Handlers are
// stateless: every request builds its own upstream client from the
// proxy-injected credential, so nothing user-scoped survives between
// requests.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"playground-gateway/internal/relay"
	"playground-gateway/internal/stack"
	"playground-gateway/pkg/logging/logging"
)

// Provider builds upstream clients per request. stack.Factory is the
// production implementation; tests substitute their own.
type Provider interface {
	Token(h http.Header) string
	ClientFor(ctx context.Context, h http.Header) (stack.Client, error)
	ClientWithToolToken(ctx context.Context, h http.Header, toolToken string) (stack.Client, error)
}

const authExpiredMessage = "Authentication token expired. Please refresh the page."

// Handler holds the dependencies shared by all routes.
type Handler struct {
	Provider      Provider
	StreamTimeout time.Duration

	// Profile page configuration.
	KeycloakURL   string
	KeycloakRealm string
	AppURL        string
	StackEndpoint string
}

func New(p Provider, streamTimeout time.Duration) *Handler {
	if streamTimeout <= 0 {
		streamTimeout = 5 * time.Minute
	}
	return &Handler{Provider: p, StreamTimeout: streamTimeout}
}

// streamContext bounds a streaming request so a stalled upstream cannot
// hold the connection open forever. Browser disconnect cancels the
// request context and propagates through the derived one.
func (h *Handler) streamContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.StreamTimeout)
}

// client builds the per-request upstream client, answering 500 on
// construction failure. Listing-page handlers use it and degrade to
// empty data when the upstream rejects individual calls.
func (h *Handler) client(w http.ResponseWriter, r *http.Request) (stack.Client, bool) {
	c, err := h.Provider.ClientFor(r.Context(), r.Header)
	if err != nil {
		logging.L(r.Context()).Error("client construction failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to reach the inference stack")
		return nil, false
	}
	return c, true
}

// requireToken gates action endpoints: without a proxy credential the
// upstream would reject the call anyway, so answer 401 up front with
// the message the frontend shows as a session-expired banner.
func (h *Handler) requireToken(w http.ResponseWriter, r *http.Request) bool {
	if h.Provider.Token(r.Header) == "" {
		writeError(w, http.StatusUnauthorized, authExpiredMessage)
		return false
	}
	return true
}

// decodeJSON decodes a request body, surfacing malformed input as a
// caller error.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeUpstreamError maps an upstream failure on a non-streaming path:
// auth failures become the 401 session-expired answer, anything else a
// 502 with the upstream's message.
func writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	logging.L(r.Context()).Error("upstream call failed", zap.Error(err))
	if stack.IsAuthError(err) {
		writeError(w, http.StatusUnauthorized, authExpiredMessage)
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}

// streamWriter upgrades the response to SSE, answering 500 when the
// ResponseWriter cannot stream.
func streamWriter(w http.ResponseWriter, r *http.Request) (*relay.Writer, bool) {
	sw, err := relay.NewWriter(w)
	if err != nil {
		logging.L(r.Context()).Error("streaming unsupported", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "streaming is not supported by this connection")
		return nil, false
	}
	return sw, true
}

// modelIdentifiers filters a model listing to inference models,
// dropping embedding models that cannot serve chat.
func modelIdentifiers(models []stack.Model) []string {
	ids := make([]string, 0, len(models))
	for _, m := range models {
		if m.ModelType != "" && m.ModelType != "llm" {
			continue
		}
		ids = append(ids, m.Identifier)
	}
	return ids
}

func vectorDBIdentifiers(dbs []stack.VectorDB) []string {
	ids := make([]string, 0, len(dbs))
	for _, db := range dbs {
		ids = append(ids, db.Identifier)
	}
	return ids
}
