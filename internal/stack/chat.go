package stack

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

func (c *client) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	if req == nil {
		return nil, fmt.Errorf("stack: request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("stack: invalid request: %w", err)
	}

	body := *req
	body.Stream = false

	var resp ChatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/inference/chat-completion", &body, &resp); err != nil {
		return nil, err
	}

	c.logger.Info("chat completion done",
		zap.String("model", req.ModelID),
		zap.Duration("duration", time.Since(start)),
	)

	return &resp, nil
}

// ChatCompletionStream opens a streaming chat completion and returns a
// channel of text deltas. The channel is closed at end of stream; a
// failed connect or read surfaces as a ChunkResult with Err set. The
// connect is retried, an established stream is not.
func (c *client) ChatCompletionStream(parentCtx context.Context, req *ChatRequest) (<-chan ChunkResult, error) {
	if req == nil {
		return nil, fmt.Errorf("stack: request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("stack: invalid request: %w", err)
	}

	c.logger.Debug("chat stream starting",
		zap.String("model", req.ModelID),
		zap.Int("message_count", len(req.Messages)),
	)

	body := *req
	body.Stream = true

	resp, err := c.openStream(parentCtx, "/v1/inference/chat-completion", &body)
	if err != nil {
		return nil, err
	}

	results := make(chan ChunkResult, 16)

	go func() {
		defer close(results)
		defer resp.Body.Close()

		err := readSSE(parentCtx, resp.Body, func(payload []byte) error {
			var chunk struct {
				Event *struct {
					EventType string     `json:"event_type"`
					Delta     *wireDelta `json:"delta,omitempty"`
				} `json:"event"`
			}
			if err := json.Unmarshal(payload, &chunk); err != nil {
				return fmt.Errorf("stack: unmarshal stream chunk: %w", err)
			}
			if chunk.Event == nil || chunk.Event.EventType != "progress" || chunk.Event.Delta == nil {
				return nil
			}

			delta := normalizeContent(chunk.Event.Delta.Text)
			if delta == "" {
				delta = normalizeContent(chunk.Event.Delta.Content)
			}
			if delta == "" {
				return nil
			}

			select {
			case <-parentCtx.Done():
				return parentCtx.Err()
			case results <- ChunkResult{Delta: delta}:
				return nil
			}
		})
		if err != nil && parentCtx.Err() == nil {
			results <- ChunkResult{Err: err}
		}
	}()

	return results, nil
}

// openStream POSTs body and returns the response with its body left
// open for SSE consumption.
func (c *client) openStream(ctx context.Context, path string, body any) (*http.Response, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("stack: marshal stream request: %w", err)
	}
	if len(bodyBytes) > maxRequestSize {
		return nil, fmt.Errorf("stack: request too large (%d bytes, max %d)", len(bodyBytes), maxRequestSize)
	}

	url := c.cfg.BaseURL + path

	doOnce := func(ctx context.Context, body []byte) (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("stack: build HTTP stream request: %w", err)
		}
		c.setHeaders(httpReq)
		httpReq.Header.Set("Accept", "text/event-stream")
		return c.httpClient.Do(httpReq)
	}

	// Connect with retries; no per-request timeout since streams run
	// long, the caller's ctx carries the stream deadline.
	resp, err := c.doWithRetry(ctx, bodyBytes, doOnce)
	if err != nil {
		c.logger.Error("stream connect failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, c.errorFromResponse(resp, http.MethodPost, path)
	}

	return resp, nil
}

// readSSE reads "data:" lines from an SSE body, calling handle for each
// payload until EOF, a [DONE] sentinel, context cancellation, or a
// handler error.
func readSSE(ctx context.Context, body io.Reader, handle func(payload []byte) error) error {
	reader := bufio.NewReader(body)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				// End of stream without an explicit sentinel
				return nil
			}
			return fmt.Errorf("stack: read stream line: %w", err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		const prefix = "data: "
		if !bytes.HasPrefix(line, []byte(prefix)) {
			// Ignore non-data SSE lines
			continue
		}

		payload := bytes.TrimSpace(line[len(prefix):])
		if bytes.Equal(payload, []byte("[DONE]")) {
			return nil
		}

		if err := handle(payload); err != nil {
			return err
		}
	}
}
