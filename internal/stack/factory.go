package stack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"playground-gateway/internal/auth"
	"playground-gateway/internal/cache"
)

const (
	// mcpProviderID marks tool groups served over the model context
	// protocol; only those need per-endpoint auth headers.
	mcpProviderID = "model-context-protocol"

	discoveryCacheKey = "mcp:endpoints"

	// Fallback when discovery fails: the one endpoint every deployment
	// of this playground ships with.
	fallbackToolGroup = "mcp::openshift"
	fallbackEndpoint  = "http://ocp-mcp-server:8000/sse"
)

// Factory builds a configured upstream client per request: the bearer
// credential from the proxy headers, the environment's provider keys,
// and auth headers for every discovered tool endpoint. Discovery goes
// through the TTL cache so the tool-group listing is not repeated on
// every request; a changed upstream registry is picked up when the
// cache entry expires.
type Factory struct {
	BaseURL      string
	ProviderData map[string]string
	Cache        cache.Store
	DiscoveryTTL time.Duration
	Logger       *zap.Logger
}

// Token extracts the request credential; exposed so handlers can gate
// action endpoints without building a client.
func (f *Factory) Token(h http.Header) string {
	return auth.FromHeaders(h)
}

// ClientFor builds a client for the request. Without a credential the
// client is still constructed (page renders degrade to empty listings
// when the upstream rejects the calls); tool-endpoint headers are only
// attached when a credential exists to put in them.
func (f *Factory) ClientFor(ctx context.Context, h http.Header) (Client, error) {
	token := auth.FromHeaders(h)
	return f.build(ctx, token, token)
}

// ClientWithToolToken builds a client that authenticates to the stack
// with the request credential but presents toolToken to the tool
// endpoints instead. Used when the caller supplies a platform token for
// the tool backends.
func (f *Factory) ClientWithToolToken(ctx context.Context, h http.Header, toolToken string) (Client, error) {
	return f.build(ctx, auth.FromHeaders(h), toolToken)
}

func (f *Factory) build(ctx context.Context, apiToken, toolToken string) (Client, error) {
	cfg := Config{
		BaseURL:      f.BaseURL,
		APIKey:       apiToken,
		ProviderData: f.ProviderData,
	}

	if apiToken != "" {
		// Discovery itself needs an authenticated client.
		probe, err := NewClient(cfg, f.Logger)
		if err != nil {
			return nil, err
		}
		endpoints := f.toolEndpoints(ctx, probe)
		if toolToken != "" && len(endpoints) > 0 {
			cfg.MCPHeaders = mcpHeaders(endpoints, toolToken)
		}
	} else if f.Logger != nil {
		f.Logger.Debug("no credential on request, skipping tool endpoint discovery")
	}

	return NewClient(cfg, f.Logger)
}

// toolEndpoints returns the toolgroup-to-endpoint map, from cache when
// fresh, otherwise by listing the upstream's tool groups. Discovery
// failure falls back to the fixed default endpoint rather than failing
// the request.
func (f *Factory) toolEndpoints(ctx context.Context, c Client) map[string]string {
	if f.Cache != nil {
		if raw, hit, err := f.Cache.Get(ctx, discoveryCacheKey); err == nil && hit {
			var endpoints map[string]string
			if err := json.Unmarshal(raw, &endpoints); err == nil {
				return endpoints
			}
		}
	}

	endpoints := map[string]string{}
	groups, err := c.ListToolGroups(ctx)
	if err != nil {
		if f.Logger != nil {
			f.Logger.Warn("tool endpoint discovery failed, using fallback",
				zap.Error(err),
			)
		}
		endpoints[fallbackToolGroup] = fallbackEndpoint
	} else {
		for _, g := range groups {
			if g.ProviderID != mcpProviderID || g.MCPEndpoint == nil || g.MCPEndpoint.URI == "" {
				continue
			}
			endpoints[g.Identifier] = g.MCPEndpoint.URI
		}
		if f.Logger != nil {
			f.Logger.Info("discovered tool endpoints",
				zap.Int("count", len(endpoints)),
			)
		}
	}

	if f.Cache != nil {
		if raw, err := json.Marshal(endpoints); err == nil {
			ttl := f.DiscoveryTTL
			if ttl <= 0 {
				ttl = 5 * time.Minute
			}
			_ = f.Cache.Set(ctx, discoveryCacheKey, raw, ttl)
		}
	}

	return endpoints
}

// mcpHeaders registers a bearer header under every URI form the
// upstream might use to look the endpoint up: the normalized URI, the
// original one, and the canonical schemeless host+path form the stack's
// URI canonicalization produces.
func mcpHeaders(endpoints map[string]string, token string) map[string]map[string]string {
	headers := make(map[string]map[string]string)
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	for _, endpoint := range endpoints {
		parsed, err := url.Parse(endpoint)
		if err != nil || parsed.Host == "" {
			headers[endpoint] = authHeader
			continue
		}

		path := parsed.Path
		if !strings.HasSuffix(path, "/sse") {
			if path == "" || path == "/" {
				path = "/sse"
			} else {
				path = strings.TrimRight(path, "/") + "/sse"
			}
		}

		normalized := parsed.Scheme + "://" + parsed.Host + path
		canonical := parsed.Host + path

		headers[normalized] = authHeader
		if normalized != endpoint {
			headers[endpoint] = authHeader
		}
		headers[canonical] = authHeader
	}

	return headers
}
