package stack

import (
	"context"
	"errors"
	"fmt"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Strategy selects the sampling strategy for an inference call.
type Strategy struct {
	Type        string  `json:"type"` // "greedy" or "top_p"
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

// StrategyFor maps the playground's temperature/top_p sliders onto a
// strategy: zero temperature means greedy decoding.
func StrategyFor(temperature, topP float64) Strategy {
	if temperature > 0 {
		return Strategy{Type: "top_p", Temperature: temperature, TopP: topP}
	}
	return Strategy{Type: "greedy"}
}

type SamplingParams struct {
	Strategy          Strategy `json:"strategy"`
	MaxTokens         int      `json:"max_tokens,omitempty"`
	RepetitionPenalty float64  `json:"repetition_penalty,omitempty"`
}

type ChatRequest struct {
	ModelID        string         `json:"model_id"`
	Messages       []Message      `json:"messages"`
	SamplingParams SamplingParams `json:"sampling_params"`
	Stream         bool           `json:"stream,omitempty"`
}

func (r *ChatRequest) Validate() error {
	if r.ModelID == "" {
		return errors.New("model_id is required")
	}
	if len(r.Messages) == 0 {
		return errors.New("at least one message is required")
	}
	for i, m := range r.Messages {
		if m.Role != RoleSystem && m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("invalid role %q in messages[%d]", m.Role, i)
		}
		if m.Content == "" && m.Role != RoleSystem {
			return fmt.Errorf("content is required for messages[%d]", i)
		}
	}
	return nil
}

type ChatResponse struct {
	CompletionMessage Message `json:"completion_message"`
	StopReason        string  `json:"stop_reason,omitempty"`
}

// ChunkResult is one streamed chat-completion delta or a terminal error.
type ChunkResult struct {
	Delta string
	Err   error
}

// Resource listings.

type Model struct {
	Identifier string         `json:"identifier"`
	ModelType  string         `json:"model_type"`
	ProviderID string         `json:"provider_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type VectorDB struct {
	Identifier         string `json:"identifier"`
	EmbeddingModel     string `json:"embedding_model,omitempty"`
	EmbeddingDimension int    `json:"embedding_dimension,omitempty"`
	ProviderID         string `json:"provider_id,omitempty"`
}

type MCPEndpoint struct {
	URI string `json:"uri"`
}

type ToolGroup struct {
	Identifier  string         `json:"identifier"`
	ProviderID  string         `json:"provider_id"`
	MCPEndpoint *MCPEndpoint   `json:"mcp_endpoint,omitempty"`
	Args        map[string]any `json:"args,omitempty"`
}

type Tool struct {
	Identifier  string `json:"identifier"`
	ToolGroupID string `json:"toolgroup_id,omitempty"`
	Description string `json:"description,omitempty"`
}

type ProviderInfo struct {
	API          string         `json:"api"`
	ProviderID   string         `json:"provider_id"`
	ProviderType string         `json:"provider_type"`
	Config       map[string]any `json:"config,omitempty"`
	Health       map[string]any `json:"health,omitempty"`
}

type Shield struct {
	Identifier string         `json:"identifier"`
	ProviderID string         `json:"provider_id,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
}

type ScoringFunction struct {
	Identifier  string         `json:"identifier"`
	Description string         `json:"description,omitempty"`
	ProviderID  string         `json:"provider_id,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
	ReturnType  map[string]any `json:"return_type,omitempty"`
}

type Dataset struct {
	Identifier string         `json:"identifier"`
	Purpose    string         `json:"purpose,omitempty"`
	Source     map[string]any `json:"source,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type Benchmark struct {
	Identifier       string         `json:"identifier"`
	DatasetID        string         `json:"dataset_id"`
	ScoringFunctions []string       `json:"scoring_functions"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// RAG.

type RegisterVectorDBRequest struct {
	VectorDBID         string `json:"vector_db_id"`
	EmbeddingModel     string `json:"embedding_model"`
	EmbeddingDimension int    `json:"embedding_dimension"`
	ProviderID         string `json:"provider_id"`
}

type RAGDocument struct {
	DocumentID string         `json:"document_id"`
	Content    string         `json:"content"` // data URL or plain text
	MimeType   string         `json:"mime_type,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type InsertRequest struct {
	VectorDBID        string        `json:"vector_db_id"`
	Documents         []RAGDocument `json:"documents"`
	ChunkSizeInTokens int           `json:"chunk_size_in_tokens"`
}

type QueryRequest struct {
	Content     string   `json:"content"`
	VectorDBIDs []string `json:"vector_db_ids"`
}

// QueryResult carries the retrieved context, normalized to plain text
// at the wire boundary.
type QueryResult struct {
	Content string
}

// Scoring and evaluation.

type ScoreRequest struct {
	InputRows        []map[string]any `json:"input_rows"`
	ScoringFunctions map[string]any   `json:"scoring_functions"`
}

type ScoringResult struct {
	ScoreRows         []map[string]any `json:"score_rows"`
	AggregatedResults map[string]any   `json:"aggregated_results,omitempty"`
}

type ScoreResult struct {
	Results map[string]ScoringResult `json:"results"`
}

type BenchmarkConfig struct {
	Type          string         `json:"type"`
	EvalCandidate map[string]any `json:"eval_candidate"`
	ScoringParams map[string]any `json:"scoring_params"`
}

type EvaluateRequest struct {
	BenchmarkID      string           `json:"-"`
	InputRows        []map[string]any `json:"input_rows"`
	ScoringFunctions []string         `json:"scoring_functions"`
	BenchmarkConfig  BenchmarkConfig  `json:"benchmark_config"`
}

type EvaluateResult struct {
	Generations []map[string]any         `json:"generations"`
	Scores      map[string]ScoringResult `json:"scores"`
}

// Client is the surface the handlers depend on; the HTTP implementation
// lives in this package and tests substitute their own.
type Client interface {
	ListModels(ctx context.Context) ([]Model, error)
	ListVectorDBs(ctx context.Context) ([]VectorDB, error)
	ListToolGroups(ctx context.Context) ([]ToolGroup, error)
	ListTools(ctx context.Context, toolGroupID string) ([]Tool, error)
	ListProviders(ctx context.Context) ([]ProviderInfo, error)
	ListShields(ctx context.Context) ([]Shield, error)
	ListScoringFunctions(ctx context.Context) ([]ScoringFunction, error)
	ListDatasets(ctx context.Context) ([]Dataset, error)
	ListBenchmarks(ctx context.Context) ([]Benchmark, error)

	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	ChatCompletionStream(ctx context.Context, req *ChatRequest) (<-chan ChunkResult, error)

	RegisterVectorDB(ctx context.Context, req RegisterVectorDBRequest) error
	InsertDocuments(ctx context.Context, req InsertRequest) error
	QueryRAG(ctx context.Context, req QueryRequest) (*QueryResult, error)

	Score(ctx context.Context, req ScoreRequest) (*ScoreResult, error)
	EvaluateRows(ctx context.Context, req EvaluateRequest) (*EvaluateResult, error)
	DatasetRows(ctx context.Context, datasetID string) ([]map[string]any, error)

	CreateAgent(ctx context.Context, cfg AgentConfig) (string, error)
	CreateSession(ctx context.Context, agentID, sessionName string) (string, error)
	CreateTurnStream(ctx context.Context, req TurnRequest) (<-chan TurnEventResult, error)
}

// APIError is a non-2xx upstream response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stack: upstream %d: %s", e.Status, e.Message)
}

// IsAuthError reports whether err is an upstream authentication or
// authorization failure, surfaced by the routes as a 401 JSON body.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == 401 || apiErr.Status == 403
	}
	return false
}
