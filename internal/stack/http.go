package stack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

const (
	maxRequestSize = 8 * 1024 * 1024 // 8MB total JSON payload (RAG uploads are data URLs)

	providerDataHeader = "X-LlamaStack-Provider-Data"
)

// setHeaders attaches the bearer credential and the provider-data
// header. Provider data carries the secondary API keys and the
// per-endpoint MCP auth headers as a single JSON object.
func (c *client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if pd := c.providerData(); pd != "" {
		req.Header.Set(providerDataHeader, pd)
	}
}

func (c *client) providerData() string {
	if len(c.cfg.ProviderData) == 0 && len(c.cfg.MCPHeaders) == 0 {
		return ""
	}
	data := make(map[string]any, len(c.cfg.ProviderData)+1)
	for k, v := range c.cfg.ProviderData {
		data[k] = v
	}
	if len(c.cfg.MCPHeaders) > 0 {
		data["mcp_headers"] = c.cfg.MCPHeaders
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return string(raw)
}

// doJSON performs a request with retries, decodes a 2xx body into out
// (when non-nil) and converts non-2xx responses into *APIError.
func (c *client) doJSON(parentCtx context.Context, method, path string, body, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("stack: marshal request: %w", err)
		}
		if len(bodyBytes) > maxRequestSize {
			return fmt.Errorf("stack: request too large (%d bytes, max %d)", len(bodyBytes), maxRequestSize)
		}
	}

	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.UpstreamTimeout)
	defer cancel()

	url := c.cfg.BaseURL + path

	doOnce := func(ctx context.Context, body []byte) (*http.Response, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("stack: build HTTP request: %w", err)
		}
		c.setHeaders(httpReq)
		return c.httpClient.Do(httpReq)
	}

	resp, err := c.doWithRetry(ctx, bodyBytes, doOnce)
	if err != nil {
		c.logger.Error("stack request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.errorFromResponse(resp, method, path)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("stack: decode upstream response: %w", err)
	}
	return nil
}

// errorFromResponse reads and drains a non-2xx body into an *APIError,
// probing the structured error shapes the distribution emits before
// falling back to the raw body.
func (c *client) errorFromResponse(resp *http.Response, method, path string) error {
	body, _ := io.ReadAll(resp.Body)

	msg := ""
	var structured struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &structured); err == nil {
		if structured.Error.Message != "" {
			msg = structured.Error.Message
		} else if structured.Detail != "" {
			msg = structured.Detail
		}
	}
	if msg == "" {
		msg = truncate(string(body), 200)
	}

	c.logger.Error("stack upstream error",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("error_message", msg),
	)

	return &APIError{Status: resp.StatusCode, Message: msg}
}

// listGET fetches a {"data": [...]} listing envelope.
func listGET[T any](ctx context.Context, c *client, path string) ([]T, error) {
	var envelope struct {
		Data []T `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

// truncate limits string length for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
