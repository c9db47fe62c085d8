package stack

import (
	"context"
	"net/http"
	"net/url"
)

func (c *client) Score(ctx context.Context, req ScoreRequest) (*ScoreResult, error) {
	var resp ScoreResult
	if err := c.doJSON(ctx, http.MethodPost, "/v1/scoring/score", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *client) EvaluateRows(ctx context.Context, req EvaluateRequest) (*EvaluateResult, error) {
	var resp EvaluateResult
	path := "/v1/eval/benchmarks/" + url.PathEscape(req.BenchmarkID) + "/evaluations"
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatasetRows fetches the rows of a registered dataset.
func (c *client) DatasetRows(ctx context.Context, datasetID string) ([]map[string]any, error) {
	var resp struct {
		Data []map[string]any `json:"data"`
	}
	path := "/v1/datasetio/iterrows/" + url.PathEscape(datasetID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
