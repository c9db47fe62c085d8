package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"playground-gateway/pkg/logging/logging"
)

// Providers handles GET /distribution/providers: the stack's provider
// registrations grouped by API surface.
func (h *Handler) Providers(w http.ResponseWriter, r *http.Request) {
	c, ok := h.client(w, r)
	if !ok {
		return
	}

	providers, err := c.ListProviders(r.Context())
	if err != nil {
		logging.L(r.Context()).Warn("provider listing failed", zap.Error(err))
	}

	grouped := map[string][]map[string]any{}
	for _, p := range providers {
		grouped[p.API] = append(grouped[p.API], map[string]any{
			"provider_id":   p.ProviderID,
			"provider_type": p.ProviderType,
			"health":        p.Health,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"providers": grouped})
}

// Resources handles GET /distribution/resources?type=: the registered
// resources of one kind.
func (h *Handler) Resources(w http.ResponseWriter, r *http.Request) {
	c, ok := h.client(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	kind := r.URL.Query().Get("type")
	var (
		data any
		err  error
	)
	switch kind {
	case "models":
		data, err = c.ListModels(ctx)
	case "vector_dbs":
		data, err = c.ListVectorDBs(ctx)
	case "shields":
		data, err = c.ListShields(ctx)
	case "scoring_functions":
		data, err = c.ListScoringFunctions(ctx)
	case "datasets":
		data, err = c.ListDatasets(ctx)
	case "benchmarks":
		data, err = c.ListBenchmarks(ctx)
	default:
		writeError(w, http.StatusBadRequest, "unknown resource type "+kind)
		return
	}
	if err != nil {
		logging.L(ctx).Warn("resource listing failed",
			zap.String("resource_type", kind),
			zap.Error(err),
		)
		data = []any{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"type": kind,
		"data": data,
	})
}
