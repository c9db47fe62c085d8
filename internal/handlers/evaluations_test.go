package handlers

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"playground-gateway/internal/stack"
)

func TestAppEvalUploadCSV(t *testing.T) {
	h, _ := newTestHandler(&mockStackClient{}, "tok")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("dataset", "eval.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fw.Write([]byte("input_query,expected_answer\nq1,a1\nq2,a2\n"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/evaluations/app_eval", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	h.AppEval(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Success  bool     `json:"success"`
		Columns  []string `json:"columns"`
		RowCount int      `json:"row_count"`
	}
	decodeBody(t, rr.Body.String(), &resp)
	if !resp.Success || resp.RowCount != 2 || len(resp.Columns) != 2 {
		t.Fatalf("unexpected upload response: %+v", resp)
	}
}

func TestAppEvalUploadRejectsUnknownFormat(t *testing.T) {
	h, _ := newTestHandler(&mockStackClient{}, "tok")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("dataset", "eval.parquet")
	fw.Write([]byte("not a table"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/evaluations/app_eval", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	h.AppEval(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "unsupported file format") {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestAppEvalRunStreamsProgress(t *testing.T) {
	client := &mockStackClient{
		scoreFn: func(req stack.ScoreRequest) (*stack.ScoreResult, error) {
			return &stack.ScoreResult{
				Results: map[string]stack.ScoringResult{
					"basic::subset_of": {ScoreRows: []map[string]any{{"score": 1.0}}},
				},
			}, nil
		},
	}
	h, _ := newTestHandler(client, "tok")

	body := bytes.NewBufferString(`{
		"action": "run_evaluation",
		"rows": [{"input_query":"q1"},{"input_query":"q2"}],
		"scoring_functions": ["basic::subset_of"]
	}`)
	req := httptest.NewRequest(http.MethodPost, "/evaluations/app_eval", body)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.AppEval(rr, req)

	frames := sseFrames(t, rr.Body.String())
	if len(frames) != 3 {
		t.Fatalf("expected 2 progress frames + terminal, got %d: %v", len(frames), frames)
	}

	if frames[0]["current"] != float64(1) || frames[0]["total"] != float64(2) {
		t.Fatalf("unexpected first progress frame: %v", frames[0])
	}
	if frames[1]["progress"] != float64(1) {
		t.Fatalf("expected full progress on last row, got %v", frames[1])
	}

	terminal := frames[2]
	if terminal["done"] != true {
		t.Fatalf("expected terminal frame, got %v", terminal)
	}
	if terminal["results"] == nil || terminal["columns"] == nil {
		t.Fatalf("terminal frame must carry results and columns: %v", terminal)
	}
}

func TestAppEvalRunRowErrorContinues(t *testing.T) {
	calls := 0
	client := &mockStackClient{
		scoreFn: func(req stack.ScoreRequest) (*stack.ScoreResult, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("scoring backend hiccup")
			}
			return &stack.ScoreResult{
				Results: map[string]stack.ScoringResult{
					"basic::subset_of": {ScoreRows: []map[string]any{{"score": 0.5}}},
				},
			}, nil
		},
	}
	h, _ := newTestHandler(client, "tok")

	body := bytes.NewBufferString(`{
		"action": "run_evaluation",
		"rows": [{"q":"1"},{"q":"2"}],
		"scoring_functions": ["basic::subset_of"]
	}`)
	req := httptest.NewRequest(http.MethodPost, "/evaluations/app_eval", body)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.AppEval(rr, req)

	frames := sseFrames(t, rr.Body.String())

	if frames[0]["error"] == nil || frames[0]["row"] != float64(0) {
		t.Fatalf("expected an error frame for row 0, got %v", frames[0])
	}
	if frames[len(frames)-1]["done"] != true {
		t.Fatalf("stream must still terminate: %v", frames)
	}
	if calls != 2 {
		t.Fatalf("expected both rows attempted, got %d", calls)
	}
}

func TestNativeEvalSelectBenchmark(t *testing.T) {
	client := &mockStackClient{
		benchmarks: []stack.Benchmark{
			{Identifier: "meta::mmlu", DatasetID: "mmlu", ScoringFunctions: []string{"basic::regex_match"}},
		},
		datasetRows: []map[string]any{{"q": "1"}, {"q": "2"}, {"q": "3"}},
	}
	h, _ := newTestHandler(client, "tok")

	body := bytes.NewBufferString(`{"action":"select_benchmark","benchmark_id":"meta::mmlu"}`)
	req := httptest.NewRequest(http.MethodPost, "/evaluations/native_eval", body)
	rr := httptest.NewRecorder()
	h.NativeEval(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		DatasetID string `json:"dataset_id"`
		RowCount  int    `json:"row_count"`
	}
	decodeBody(t, rr.Body.String(), &resp)
	if resp.DatasetID != "mmlu" || resp.RowCount != 3 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestNativeEvalRunCapsRows(t *testing.T) {
	evalCalls := 0
	client := &mockStackClient{
		benchmarks: []stack.Benchmark{
			{Identifier: "meta::mmlu", DatasetID: "mmlu", ScoringFunctions: []string{"basic::regex_match"}},
		},
		datasetRows: []map[string]any{{"q": "1"}, {"q": "2"}, {"q": "3"}},
		evalFn: func(req stack.EvaluateRequest) (*stack.EvaluateResult, error) {
			evalCalls++
			return &stack.EvaluateResult{
				Generations: []map[string]any{{"generated_answer": "x"}},
				Scores: map[string]stack.ScoringResult{
					"basic::regex_match": {ScoreRows: []map[string]any{{"score": 1.0}}},
				},
			}, nil
		},
	}
	h, _ := newTestHandler(client, "tok")

	body := bytes.NewBufferString(`{"action":"run_evaluation","benchmark_id":"meta::mmlu","model":"llama-3-8b","num_rows":2}`)
	req := httptest.NewRequest(http.MethodPost, "/evaluations/native_eval", body)
	rr := httptest.NewRecorder()
	h.NativeEval(rr, req)

	if evalCalls != 2 {
		t.Fatalf("expected 2 evaluated rows, got %d", evalCalls)
	}

	frames := sseFrames(t, rr.Body.String())
	if frames[len(frames)-1]["done"] != true {
		t.Fatalf("expected terminal frame: %v", frames)
	}
}

func TestNativeEvalUnknownAction(t *testing.T) {
	h, _ := newTestHandler(&mockStackClient{}, "tok")

	body := bytes.NewBufferString(`{"action":"destroy_everything"}`)
	req := httptest.NewRequest(http.MethodPost, "/evaluations/native_eval", body)
	rr := httptest.NewRecorder()
	h.NativeEval(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestEvaluationsRequireToken(t *testing.T) {
	h, _ := newTestHandler(&mockStackClient{}, "")

	for _, path := range []string{"/evaluations/app_eval", "/evaluations/native_eval"} {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(`{}`))
		rr := httptest.NewRecorder()
		if path == "/evaluations/app_eval" {
			h.AppEval(rr, req)
		} else {
			h.NativeEval(rr, req)
		}
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rr.Code)
		}
	}
}
