package stack

import (
	"context"
	"encoding/json"
	"net/http"
)

func (c *client) RegisterVectorDB(ctx context.Context, req RegisterVectorDBRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/vector-dbs", req, nil)
}

func (c *client) InsertDocuments(ctx context.Context, req InsertRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/tool-runtime/rag-tool/insert", req, nil)
}

// QueryRAG retrieves context chunks for a prompt. The response content
// is a list of interleaved text items; it is normalized here so callers
// only ever see a plain string.
func (c *client) QueryRAG(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	var resp struct {
		Content json.RawMessage `json:"content"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/tool-runtime/rag-tool/query", req, &resp); err != nil {
		return nil, err
	}
	return &QueryResult{Content: normalizeContent(resp.Content)}, nil
}
