package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"playground-gateway/internal/dataset"
	"playground-gateway/internal/relay"
	"playground-gateway/internal/stack"
	"playground-gateway/pkg/logging/logging"
)

const uploadPreviewRows = 10

// AppEvalPage returns the scoring functions available for dataset
// evaluation.
func (h *Handler) AppEvalPage(w http.ResponseWriter, r *http.Request) {
	c, ok := h.client(w, r)
	if !ok {
		return
	}

	fns, err := c.ListScoringFunctions(r.Context())
	if err != nil {
		logging.L(r.Context()).Warn("scoring function listing failed", zap.Error(err))
	}

	out := make([]map[string]any, 0, len(fns))
	for _, fn := range fns {
		out = append(out, map[string]any{
			"identifier":  fn.Identifier,
			"description": fn.Description,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"scoring_functions": out})
}

// AppEval handles POST /evaluations/app_eval. A multipart body is a
// dataset upload, parsed and echoed back with a preview; a JSON body is
// a run_evaluation action that scores the rows and streams progress.
func (h *Handler) AppEval(w http.ResponseWriter, r *http.Request) {
	if !h.requireToken(w, r) {
		return
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		h.appEvalUpload(w, r)
		return
	}
	h.appEvalRun(w, r)
}

func (h *Handler) appEvalUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	f, fh, err := r.FormFile("dataset")
	if err != nil {
		writeError(w, http.StatusBadRequest, "dataset file is required")
		return
	}
	defer f.Close()

	table, err := dataset.ParseUpload(fh.Filename, f)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	logging.L(r.Context()).Info("evaluation dataset uploaded",
		zap.String("filename", fh.Filename),
		zap.Int("row_count", table.RowCount()),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"dataset":   fh.Filename,
		"preview":   table.Preview(uploadPreviewRows),
		"columns":   table.Columns,
		"row_count": table.RowCount(),
	})
}

type appEvalRunRequest struct {
	Action           string           `json:"action"`
	Rows             []map[string]any `json:"rows"`
	ScoringFunctions []string         `json:"scoring_functions"`
	ScoringParams    map[string]any   `json:"scoring_params"`
}

// appEvalRun scores the uploaded rows one at a time, streaming a
// progress frame per row so the browser can render a live bar, then a
// terminal frame carrying the full per-function results.
func (h *Handler) appEvalRun(w http.ResponseWriter, r *http.Request) {
	var req appEvalRunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Action != "run_evaluation" {
		writeError(w, http.StatusBadRequest, "unknown action "+req.Action)
		return
	}
	if len(req.Rows) == 0 || len(req.ScoringFunctions) == 0 {
		writeError(w, http.StatusBadRequest, "rows and scoring_functions are required")
		return
	}

	c, ok := h.client(w, r)
	if !ok {
		return
	}

	scoringFns := make(map[string]any, len(req.ScoringFunctions))
	for _, name := range req.ScoringFunctions {
		if params, found := req.ScoringParams[name]; found {
			scoringFns[name] = params
		} else {
			scoringFns[name] = nil
		}
	}

	ctx, cancel := h.streamContext(r)
	defer cancel()

	sw, ok := streamWriter(w, r)
	if !ok {
		return
	}

	logger := logging.L(ctx)
	total := len(req.Rows)
	results := make(map[string][]map[string]any, len(req.ScoringFunctions))

	for i, row := range req.Rows {
		if ctx.Err() != nil {
			break
		}

		res, err := c.Score(ctx, stack.ScoreRequest{
			InputRows:        []map[string]any{row},
			ScoringFunctions: scoringFns,
		})
		if err != nil {
			logger.Warn("row scoring failed", zap.Int("row", i), zap.Error(err))
			rowIdx := i
			_ = sw.Send(relay.Frame{Error: err.Error(), Row: &rowIdx})
			continue
		}

		rowResult := map[string]any{}
		for name, sr := range res.Results {
			if len(sr.ScoreRows) > 0 {
				results[name] = append(results[name], sr.ScoreRows[0])
				rowResult[name] = sr.ScoreRows[0]
			}
		}

		raw, err := json.Marshal(rowResult)
		if err != nil {
			logger.Warn("row result marshal failed", zap.Int("row", i), zap.Error(err))
			continue
		}
		_ = sw.Send(relay.Frame{
			Progress: float64(i+1) / float64(total),
			Current:  i + 1,
			Total:    total,
			Result:   raw,
		})
	}

	_ = sw.Send(relay.Frame{
		Results: results,
		Columns: req.ScoringFunctions,
		Done:    true,
	})
}

// NativeEvalPage returns the registered benchmarks and the models that
// can serve as evaluation candidates.
func (h *Handler) NativeEvalPage(w http.ResponseWriter, r *http.Request) {
	c, ok := h.client(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	logger := logging.L(ctx)

	benchmarks, err := c.ListBenchmarks(ctx)
	if err != nil {
		logger.Warn("benchmark listing failed", zap.Error(err))
	}
	models, err := c.ListModels(ctx)
	if err != nil {
		logger.Warn("model listing failed", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"benchmarks": benchmarks,
		"models":     modelIdentifiers(models),
	})
}

type nativeEvalRequest struct {
	Action      string  `json:"action"`
	BenchmarkID string  `json:"benchmark_id"`
	Model       string  `json:"model"`
	NumRows     int     `json:"num_rows"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	MaxTokens   int     `json:"max_tokens"`
}

// evalCandidate is the model-candidate shape the evaluation API
// expects.
func (req *nativeEvalRequest) evalCandidate() map[string]any {
	return map[string]any{
		"type":  "model",
		"model": req.Model,
		"sampling_params": stack.SamplingParams{
			Strategy:  stack.StrategyFor(req.Temperature, req.TopP),
			MaxTokens: req.MaxTokens,
		},
	}
}

// NativeEval handles POST /evaluations/native_eval. The page drives a
// three-step protocol: select_benchmark inspects the benchmark's
// dataset, define_candidate echoes the candidate configuration, and
// run_evaluation streams per-row benchmark results.
func (h *Handler) NativeEval(w http.ResponseWriter, r *http.Request) {
	if !h.requireToken(w, r) {
		return
	}

	var req nativeEvalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch req.Action {
	case "select_benchmark":
		h.nativeEvalSelect(w, r, &req)
	case "define_candidate":
		if req.Model == "" {
			writeError(w, http.StatusBadRequest, "model is required")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":        true,
			"eval_candidate": req.evalCandidate(),
		})
	case "run_evaluation":
		h.nativeEvalRun(w, r, &req)
	default:
		writeError(w, http.StatusBadRequest, "unknown action "+req.Action)
	}
}

func (h *Handler) nativeEvalSelect(w http.ResponseWriter, r *http.Request, req *nativeEvalRequest) {
	if req.BenchmarkID == "" {
		writeError(w, http.StatusBadRequest, "benchmark_id is required")
		return
	}

	c, ok := h.client(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	benchmark, err := findBenchmark(ctx, c, req.BenchmarkID)
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	if benchmark == nil {
		writeError(w, http.StatusBadRequest, "unknown benchmark "+req.BenchmarkID)
		return
	}

	rows, err := c.DatasetRows(ctx, benchmark.DatasetID)
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"benchmark_id":      benchmark.Identifier,
		"dataset_id":        benchmark.DatasetID,
		"row_count":         len(rows),
		"scoring_functions": benchmark.ScoringFunctions,
	})
}

// nativeEvalRun evaluates the benchmark dataset row by row, streaming
// a progress frame with the generation and scores per row, then the
// terminal frame with everything accumulated.
func (h *Handler) nativeEvalRun(w http.ResponseWriter, r *http.Request, req *nativeEvalRequest) {
	if req.BenchmarkID == "" || req.Model == "" {
		writeError(w, http.StatusBadRequest, "benchmark_id and model are required")
		return
	}

	c, ok := h.client(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.streamContext(r)
	defer cancel()

	benchmark, err := findBenchmark(ctx, c, req.BenchmarkID)
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	if benchmark == nil {
		writeError(w, http.StatusBadRequest, "unknown benchmark "+req.BenchmarkID)
		return
	}

	rows, err := c.DatasetRows(ctx, benchmark.DatasetID)
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	if req.NumRows > 0 && req.NumRows < len(rows) {
		rows = rows[:req.NumRows]
	}
	if len(rows) == 0 {
		writeError(w, http.StatusBadRequest, "benchmark dataset is empty")
		return
	}

	sw, ok := streamWriter(w, r)
	if !ok {
		return
	}

	logger := logging.L(ctx)
	cfg := stack.BenchmarkConfig{
		Type:          "benchmark",
		EvalCandidate: req.evalCandidate(),
	}

	total := len(rows)
	var generations []map[string]any
	scores := make(map[string][]map[string]any, len(benchmark.ScoringFunctions))

	for i, row := range rows {
		if ctx.Err() != nil {
			break
		}

		res, err := c.EvaluateRows(ctx, stack.EvaluateRequest{
			BenchmarkID:      benchmark.Identifier,
			InputRows:        []map[string]any{row},
			ScoringFunctions: benchmark.ScoringFunctions,
			BenchmarkConfig:  cfg,
		})
		if err != nil {
			logger.Warn("row evaluation failed", zap.Int("row", i), zap.Error(err))
			rowIdx := i
			_ = sw.Send(relay.Frame{Error: err.Error(), Row: &rowIdx})
			continue
		}

		rowResult := map[string]any{"input": row}
		if len(res.Generations) > 0 {
			generations = append(generations, res.Generations[0])
			rowResult["generation"] = res.Generations[0]
		}
		rowScores := map[string]any{}
		for name, sr := range res.Scores {
			if len(sr.ScoreRows) > 0 {
				scores[name] = append(scores[name], sr.ScoreRows[0])
				rowScores[name] = sr.ScoreRows[0]
			}
		}
		rowResult["scores"] = rowScores

		raw, err := json.Marshal(rowResult)
		if err != nil {
			logger.Warn("row result marshal failed", zap.Int("row", i), zap.Error(err))
			continue
		}
		_ = sw.Send(relay.Frame{
			Progress: float64(i+1) / float64(total),
			Current:  i + 1,
			Total:    total,
			Result:   raw,
		})
	}

	_ = sw.Send(relay.Frame{
		Results: map[string]any{
			"generations": generations,
			"scores":      scores,
		},
		Columns: benchmark.ScoringFunctions,
		Done:    true,
	})
}

func findBenchmark(ctx context.Context, c stack.Client, id string) (*stack.Benchmark, error) {
	benchmarks, err := c.ListBenchmarks(ctx)
	if err != nil {
		return nil, err
	}
	for i := range benchmarks {
		if benchmarks[i].Identifier == id {
			return &benchmarks[i], nil
		}
	}
	return nil, nil
}
