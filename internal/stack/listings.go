package stack

import (
	"context"
	"net/url"
)

func (c *client) ListModels(ctx context.Context) ([]Model, error) {
	return listGET[Model](ctx, c, "/v1/models")
}

func (c *client) ListVectorDBs(ctx context.Context) ([]VectorDB, error) {
	return listGET[VectorDB](ctx, c, "/v1/vector-dbs")
}

func (c *client) ListToolGroups(ctx context.Context) ([]ToolGroup, error) {
	return listGET[ToolGroup](ctx, c, "/v1/toolgroups")
}

func (c *client) ListTools(ctx context.Context, toolGroupID string) ([]Tool, error) {
	path := "/v1/tools"
	if toolGroupID != "" {
		path += "?toolgroup_id=" + url.QueryEscape(toolGroupID)
	}
	return listGET[Tool](ctx, c, path)
}

func (c *client) ListProviders(ctx context.Context) ([]ProviderInfo, error) {
	return listGET[ProviderInfo](ctx, c, "/v1/providers")
}

func (c *client) ListShields(ctx context.Context) ([]Shield, error) {
	return listGET[Shield](ctx, c, "/v1/shields")
}

func (c *client) ListScoringFunctions(ctx context.Context) ([]ScoringFunction, error) {
	return listGET[ScoringFunction](ctx, c, "/v1/scoring-functions")
}

func (c *client) ListDatasets(ctx context.Context) ([]Dataset, error) {
	return listGET[Dataset](ctx, c, "/v1/datasets")
}

func (c *client) ListBenchmarks(ctx context.Context) ([]Benchmark, error) {
	return listGET[Benchmark](ctx, c, "/v1/eval/benchmarks")
}
