package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"playground-gateway/internal/stack"
)

// mockStackClient overrides the methods a test exercises; calling
// anything else panics through the embedded nil interface, which is the
// point.
type mockStackClient struct {
	stack.Client

	models    []stack.Model
	modelsErr error
	vectorDBs []stack.VectorDB
	dbsErr    error

	toolGroups    []stack.ToolGroup
	toolGroupsErr error
	tools         map[string][]stack.Tool
	toolsErr      map[string]error

	providers   []stack.ProviderInfo
	scoringFns  []stack.ScoringFunction
	benchmarks  []stack.Benchmark
	datasetRows []map[string]any

	chatResp    *stack.ChatResponse
	chatErr     error
	stream      chan stack.ChunkResult
	streamErr   error
	lastChatReq *stack.ChatRequest

	queryResult *stack.QueryResult
	queryErr    error
	registered  []stack.RegisterVectorDBRequest
	inserted    []stack.InsertRequest

	scoreFn func(req stack.ScoreRequest) (*stack.ScoreResult, error)
	evalFn  func(req stack.EvaluateRequest) (*stack.EvaluateResult, error)

	agentCfg *stack.AgentConfig
	turnReq  *stack.TurnRequest
	events   chan stack.TurnEventResult
}

func (m *mockStackClient) ListModels(ctx context.Context) ([]stack.Model, error) {
	return m.models, m.modelsErr
}

func (m *mockStackClient) ListVectorDBs(ctx context.Context) ([]stack.VectorDB, error) {
	return m.vectorDBs, m.dbsErr
}

func (m *mockStackClient) ListToolGroups(ctx context.Context) ([]stack.ToolGroup, error) {
	return m.toolGroups, m.toolGroupsErr
}

func (m *mockStackClient) ListTools(ctx context.Context, toolGroupID string) ([]stack.Tool, error) {
	if err, found := m.toolsErr[toolGroupID]; found {
		return nil, err
	}
	return m.tools[toolGroupID], nil
}

func (m *mockStackClient) ListProviders(ctx context.Context) ([]stack.ProviderInfo, error) {
	return m.providers, nil
}

func (m *mockStackClient) ListScoringFunctions(ctx context.Context) ([]stack.ScoringFunction, error) {
	return m.scoringFns, nil
}

func (m *mockStackClient) ListBenchmarks(ctx context.Context) ([]stack.Benchmark, error) {
	return m.benchmarks, nil
}

func (m *mockStackClient) DatasetRows(ctx context.Context, datasetID string) ([]map[string]any, error) {
	return m.datasetRows, nil
}

func (m *mockStackClient) ChatCompletion(ctx context.Context, req *stack.ChatRequest) (*stack.ChatResponse, error) {
	m.lastChatReq = req
	return m.chatResp, m.chatErr
}

func (m *mockStackClient) ChatCompletionStream(ctx context.Context, req *stack.ChatRequest) (<-chan stack.ChunkResult, error) {
	m.lastChatReq = req
	if m.streamErr != nil {
		return nil, m.streamErr
	}
	if m.stream == nil {
		m.stream = make(chan stack.ChunkResult)
		close(m.stream)
	}
	return m.stream, nil
}

func (m *mockStackClient) RegisterVectorDB(ctx context.Context, req stack.RegisterVectorDBRequest) error {
	m.registered = append(m.registered, req)
	return nil
}

func (m *mockStackClient) InsertDocuments(ctx context.Context, req stack.InsertRequest) error {
	m.inserted = append(m.inserted, req)
	return nil
}

func (m *mockStackClient) QueryRAG(ctx context.Context, req stack.QueryRequest) (*stack.QueryResult, error) {
	return m.queryResult, m.queryErr
}

func (m *mockStackClient) Score(ctx context.Context, req stack.ScoreRequest) (*stack.ScoreResult, error) {
	return m.scoreFn(req)
}

func (m *mockStackClient) EvaluateRows(ctx context.Context, req stack.EvaluateRequest) (*stack.EvaluateResult, error) {
	return m.evalFn(req)
}

func (m *mockStackClient) CreateAgent(ctx context.Context, cfg stack.AgentConfig) (string, error) {
	m.agentCfg = &cfg
	return "agent-1", nil
}

func (m *mockStackClient) CreateSession(ctx context.Context, agentID, sessionName string) (string, error) {
	return "session-1", nil
}

func (m *mockStackClient) CreateTurnStream(ctx context.Context, req stack.TurnRequest) (<-chan stack.TurnEventResult, error) {
	m.turnReq = &req
	if m.events == nil {
		m.events = make(chan stack.TurnEventResult)
		close(m.events)
	}
	return m.events, nil
}

// mockProvider hands every request the same client.
type mockProvider struct {
	client        stack.Client
	token         string
	lastToolToken string
}

func (p *mockProvider) Token(h http.Header) string { return p.token }

func (p *mockProvider) ClientFor(ctx context.Context, h http.Header) (stack.Client, error) {
	return p.client, nil
}

func (p *mockProvider) ClientWithToolToken(ctx context.Context, h http.Header, toolToken string) (stack.Client, error) {
	p.lastToolToken = toolToken
	return p.client, nil
}

func newTestHandler(c stack.Client, token string) (*Handler, *mockProvider) {
	p := &mockProvider{client: c, token: token}
	return New(p, time.Minute), p
}

func decodeBody(t *testing.T, body string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(body), v); err != nil {
		t.Fatalf("decode response %q: %v", body, err)
	}
}

// sseFrames decodes every data: record in an SSE body.
func sseFrames(t *testing.T, body string) []map[string]any {
	t.Helper()
	var frames []map[string]any
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var f map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &f); err != nil {
			t.Fatalf("undecodable frame %q: %v", line, err)
		}
		frames = append(frames, f)
	}
	return frames
}
