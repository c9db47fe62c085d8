package stack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// AgentTool is either a bare tool group name or a named tool with
// arguments (the builtin::rag/knowledge_search form). It marshals to a
// string or an object accordingly.
type AgentTool struct {
	Name string
	Args map[string]any
}

func (t AgentTool) MarshalJSON() ([]byte, error) {
	if len(t.Args) == 0 {
		return json.Marshal(t.Name)
	}
	return json.Marshal(map[string]any{
		"name": t.Name,
		"args": t.Args,
	})
}

type ResponseFormat struct {
	Type       string         `json:"type"`
	JSONSchema map[string]any `json:"json_schema,omitempty"`
}

// ReActResponseFormat is the structured-output contract for
// reason-then-act agents: every inference step must emit a JSON object
// with thought / action / answer fields.
func ReActResponseFormat() *ResponseFormat {
	return &ResponseFormat{
		Type: "json_schema",
		JSONSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"thought": map[string]any{"type": "string"},
				"action": map[string]any{
					"type": []string{"object", "null"},
					"properties": map[string]any{
						"tool_name":   map[string]any{"type": "string"},
						"tool_params": map[string]any{"type": "object"},
					},
				},
				"answer": map[string]any{"type": []string{"string", "null"}},
			},
			"required": []string{"thought", "action", "answer"},
		},
	}
}

type AgentConfig struct {
	Model          string          `json:"model"`
	Instructions   string          `json:"instructions,omitempty"`
	Tools          []AgentTool     `json:"tools,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	SamplingParams SamplingParams  `json:"sampling_params"`
}

type TurnRequest struct {
	AgentID   string    `json:"-"`
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
	Stream    bool      `json:"stream"`
}

func (c *client) CreateAgent(ctx context.Context, cfg AgentConfig) (string, error) {
	var resp struct {
		AgentID string `json:"agent_id"`
	}
	body := map[string]any{"agent_config": cfg}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/agents", body, &resp); err != nil {
		return "", err
	}
	if resp.AgentID == "" {
		return "", fmt.Errorf("stack: agent creation returned no agent_id")
	}
	return resp.AgentID, nil
}

func (c *client) CreateSession(ctx context.Context, agentID, sessionName string) (string, error) {
	var resp struct {
		SessionID string `json:"session_id"`
	}
	body := map[string]any{"session_name": sessionName}
	path := "/v1/agents/" + url.PathEscape(agentID) + "/session"
	if err := c.doJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("stack: session creation returned no session_id")
	}
	return resp.SessionID, nil
}

// CreateTurnStream starts a streamed agent turn and returns a channel of
// decoded turn events. The channel closes at end of stream; decode and
// read failures surface on the channel as TurnEventResult.Err so the
// relay converts them at the streaming boundary.
func (c *client) CreateTurnStream(parentCtx context.Context, req TurnRequest) (<-chan TurnEventResult, error) {
	if req.AgentID == "" || req.SessionID == "" {
		return nil, fmt.Errorf("stack: agent_id and session_id are required")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("stack: at least one message is required")
	}

	req.Stream = true
	path := "/v1/agents/" + url.PathEscape(req.AgentID) + "/session/" + url.PathEscape(req.SessionID) + "/turn"

	resp, err := c.openStream(parentCtx, path, req)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("turn stream opened",
		zap.String("agent_id", req.AgentID),
		zap.String("session_id", req.SessionID),
	)

	results := make(chan TurnEventResult, 16)

	go func() {
		defer close(results)
		defer resp.Body.Close()

		err := readSSE(parentCtx, resp.Body, func(payload []byte) error {
			ev, err := decodeTurnEvent(payload)
			if err != nil {
				return err
			}
			select {
			case <-parentCtx.Done():
				return parentCtx.Err()
			case results <- TurnEventResult{Event: ev}:
				return nil
			}
		})
		if err != nil && parentCtx.Err() == nil {
			results <- TurnEventResult{Err: err}
		}
	}()

	return results, nil
}
