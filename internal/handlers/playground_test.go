package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"playground-gateway/internal/stack"
)

func TestChatPageFiltersEmbeddingModels(t *testing.T) {
	client := &mockStackClient{
		models: []stack.Model{
			{Identifier: "llama-3-8b", ModelType: "llm"},
			{Identifier: "all-MiniLM-L6-v2", ModelType: "embedding"},
		},
	}
	h, _ := newTestHandler(client, "tok")

	req := httptest.NewRequest(http.MethodGet, "/playground/chat", nil)
	rr := httptest.NewRecorder()
	h.ChatPage(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Models []string `json:"models"`
	}
	decodeBody(t, rr.Body.String(), &resp)
	if len(resp.Models) != 1 || resp.Models[0] != "llama-3-8b" {
		t.Fatalf("unexpected models: %v", resp.Models)
	}
}

func TestChatPageDegradesOnListingFailure(t *testing.T) {
	client := &mockStackClient{modelsErr: errors.New("upstream down")}
	h, _ := newTestHandler(client, "")

	rr := httptest.NewRecorder()
	h.ChatPage(rr, httptest.NewRequest(http.MethodGet, "/playground/chat", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("page data must degrade, not fail: got %d", rr.Code)
	}
	var resp struct {
		Models []string `json:"models"`
	}
	decodeBody(t, rr.Body.String(), &resp)
	if len(resp.Models) != 0 {
		t.Fatalf("expected empty model list, got %v", resp.Models)
	}
}

func TestChatRequiresToken(t *testing.T) {
	h, _ := newTestHandler(&mockStackClient{}, "")

	body := bytes.NewBufferString(`{"model":"m","prompt":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/playground/chat", body)
	rr := httptest.NewRecorder()
	h.Chat(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Authentication token expired") {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestChatNonStream(t *testing.T) {
	client := &mockStackClient{
		chatResp: &stack.ChatResponse{
			CompletionMessage: stack.Message{Role: stack.RoleAssistant, Content: "hello!"},
		},
	}
	h, _ := newTestHandler(client, "tok")

	body := bytes.NewBufferString(`{"model":"llama-3-8b","prompt":"hi","system_prompt":"be brief","stream":false}`)
	req := httptest.NewRequest(http.MethodPost, "/playground/chat", body)
	rr := httptest.NewRecorder()
	h.Chat(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Content string `json:"content"`
	}
	decodeBody(t, rr.Body.String(), &resp)
	if resp.Content != "hello!" {
		t.Fatalf("unexpected content: %q", resp.Content)
	}

	if client.lastChatReq == nil || len(client.lastChatReq.Messages) != 2 {
		t.Fatalf("expected system+user messages, got %+v", client.lastChatReq)
	}
	if client.lastChatReq.Messages[0].Role != stack.RoleSystem {
		t.Fatalf("expected leading system message, got %+v", client.lastChatReq.Messages)
	}
}

func TestChatStream(t *testing.T) {
	streamChan := make(chan stack.ChunkResult, 2)
	client := &mockStackClient{stream: streamChan}
	h, _ := newTestHandler(client, "tok")

	body := bytes.NewBufferString(`{"model":"llama-3-8b","prompt":"stream please"}`)
	req := httptest.NewRequest(http.MethodPost, "/playground/chat", body)
	rr := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.Chat(rr, req)
		close(done)
	}()

	streamChan <- stack.ChunkResult{Delta: "hel"}
	streamChan <- stack.ChunkResult{Delta: "lo"}
	close(streamChan)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("handler did not finish streaming")
	}

	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected SSE content type, got %q", ct)
	}

	frames := sseFrames(t, rr.Body.String())
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d: %v", len(frames), frames)
	}
	if frames[1]["content"] != "hello" {
		t.Fatalf("expected accumulated content, got %v", frames[1])
	}
	terminal := frames[len(frames)-1]
	if terminal["done"] != true || terminal["content"] != "hello" {
		t.Fatalf("unexpected terminal frame: %v", terminal)
	}
}

func TestChatInvalidRole(t *testing.T) {
	h, _ := newTestHandler(&mockStackClient{}, "tok")

	body := bytes.NewBufferString(`{"model":"m","messages":[{"role":"tool","content":"x"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/playground/chat", body)
	rr := httptest.NewRecorder()
	h.Chat(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestRAGQueryExtendsPromptWithContext(t *testing.T) {
	streamChan := make(chan stack.ChunkResult, 1)
	client := &mockStackClient{
		queryResult: &stack.QueryResult{Content: "retrieved chunk"},
		stream:      streamChan,
	}
	h, _ := newTestHandler(client, "tok")

	body := bytes.NewBufferString(`{"model":"llama-3-8b","prompt":"what is X","vector_db_ids":["db1"]}`)
	req := httptest.NewRequest(http.MethodPost, "/playground/rag/query", body)
	rr := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.RAGQuery(rr, req)
		close(done)
	}()

	streamChan <- stack.ChunkResult{Delta: "X is"}
	close(streamChan)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("handler did not finish streaming")
	}

	prompt := client.lastChatReq.Messages[len(client.lastChatReq.Messages)-1].Content
	if !strings.Contains(prompt, "CONTEXT:\nretrieved chunk") || !strings.Contains(prompt, "QUERY:\nwhat is X") {
		t.Fatalf("expected extended prompt, got %q", prompt)
	}

	frames := sseFrames(t, rr.Body.String())
	if frames[0]["context"] != "retrieved chunk" {
		t.Fatalf("expected retrieved context on frames, got %v", frames[0])
	}
}

func TestRAGUploadRegistersAndIngests(t *testing.T) {
	client := &mockStackClient{
		providers: []stack.ProviderInfo{
			{API: "inference", ProviderID: "ollama"},
			{API: "vector_io", ProviderID: "faiss"},
		},
	}
	h, _ := newTestHandler(client, "tok")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files", "notes.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte("some document text")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/playground/rag", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	h.RAGUpload(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if len(client.registered) != 1 {
		t.Fatalf("expected one vector db registration, got %d", len(client.registered))
	}
	reg := client.registered[0]
	if reg.ProviderID != "faiss" || reg.EmbeddingModel != "all-MiniLM-L6-v2" || reg.EmbeddingDimension != 384 {
		t.Fatalf("unexpected registration: %+v", reg)
	}

	if len(client.inserted) != 1 {
		t.Fatalf("expected one insert, got %d", len(client.inserted))
	}
	ins := client.inserted[0]
	if ins.ChunkSizeInTokens != 512 || len(ins.Documents) != 1 {
		t.Fatalf("unexpected insert: %+v", ins)
	}
	if !strings.HasPrefix(ins.Documents[0].Content, "data:text/plain;base64,") {
		t.Fatalf("expected data url content, got %q", ins.Documents[0].Content)
	}
}

func TestToolsPageSplitsBuiltinAndMCP(t *testing.T) {
	client := &mockStackClient{
		toolGroups: []stack.ToolGroup{
			{Identifier: "builtin::rag"},
			{Identifier: "builtin::websearch"},
			{Identifier: "mcp::openshift", ProviderID: "model-context-protocol"},
		},
	}
	h, _ := newTestHandler(client, "tok")

	rr := httptest.NewRecorder()
	h.ToolsPage(rr, httptest.NewRequest(http.MethodGet, "/playground/tools", nil))

	var resp struct {
		Builtin []string `json:"builtin_tools"`
		MCP     []string `json:"mcp_tools"`
	}
	decodeBody(t, rr.Body.String(), &resp)
	if len(resp.Builtin) != 2 || len(resp.MCP) != 1 || resp.MCP[0] != "mcp::openshift" {
		t.Fatalf("unexpected split: builtin=%v mcp=%v", resp.Builtin, resp.MCP)
	}
}

func TestToolsTurnRegularAgent(t *testing.T) {
	events := make(chan stack.TurnEventResult, 2)
	client := &mockStackClient{events: events}
	h, _ := newTestHandler(client, "tok")

	body := bytes.NewBufferString(`{"model":"llama-3-8b","prompt":"list pods","agent_type":"Regular","tools":["builtin::rag","mcp::openshift"],"vector_dbs":["db1"]}`)
	req := httptest.NewRequest(http.MethodPost, "/playground/tools", body)
	rr := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.ToolsTurn(rr, req)
		close(done)
	}()

	events <- stack.TurnEventResult{Event: stack.TurnEvent{Type: stack.EventTurnComplete, TurnContent: "two pods"}}
	close(events)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("handler did not finish streaming")
	}

	cfg := client.agentCfg
	if cfg == nil {
		t.Fatal("agent was not created")
	}
	if cfg.ResponseFormat != nil {
		t.Fatalf("regular agent must not get a response format: %+v", cfg.ResponseFormat)
	}
	if len(cfg.Tools) != 2 || cfg.Tools[0].Name != "builtin::rag/knowledge_search" {
		t.Fatalf("unexpected tools: %+v", cfg.Tools)
	}
	if cfg.Tools[0].Args["vector_db_ids"] == nil {
		t.Fatalf("rag tool must carry the selected vector dbs: %+v", cfg.Tools[0])
	}

	frames := sseFrames(t, rr.Body.String())
	terminal := frames[len(frames)-1]
	if terminal["done"] != true || terminal["content"] != "two pods" {
		t.Fatalf("unexpected terminal frame: %v", terminal)
	}
}

func TestToolsTurnReActUsesToolToken(t *testing.T) {
	client := &mockStackClient{}
	h, p := newTestHandler(client, "tok")

	body := bytes.NewBufferString(`{"model":"llama-3-8b","prompt":"hi","agent_type":"ReAct","openshift_token":"sha256~abc"}`)
	req := httptest.NewRequest(http.MethodPost, "/playground/tools", body)
	rr := httptest.NewRecorder()
	h.ToolsTurn(rr, req)

	if p.lastToolToken != "sha256~abc" {
		t.Fatalf("expected the override tool token, got %q", p.lastToolToken)
	}
	if client.agentCfg == nil || client.agentCfg.ResponseFormat == nil {
		t.Fatalf("react agent must enforce structured output: %+v", client.agentCfg)
	}
}

func TestToolsListPerGroupFailureYieldsEmptyList(t *testing.T) {
	client := &mockStackClient{
		tools: map[string][]stack.Tool{
			"builtin::websearch": {{Identifier: "web_search"}},
		},
		toolsErr: map[string]error{
			"mcp::broken": errors.New("endpoint unreachable"),
		},
	}
	h, _ := newTestHandler(client, "tok")

	req := httptest.NewRequest(http.MethodGet, "/playground/tools/get_tools?toolgroups=builtin::websearch,mcp::broken", nil)
	rr := httptest.NewRecorder()
	h.ToolsList(rr, req)

	var resp struct {
		Grouped map[string][]string `json:"grouped_tools"`
		Total   int                 `json:"total_tools"`
	}
	decodeBody(t, rr.Body.String(), &resp)

	if resp.Total != 1 {
		t.Fatalf("expected 1 tool total, got %d", resp.Total)
	}
	if got, found := resp.Grouped["mcp::broken"]; !found || len(got) != 0 {
		t.Fatalf("failed group must contribute an empty list: %v", resp.Grouped)
	}
}

func TestClearEndpoints(t *testing.T) {
	h, _ := newTestHandler(&mockStackClient{}, "tok")

	for _, fn := range []http.HandlerFunc{h.ChatClear, h.RAGClear, h.ToolsClear} {
		rr := httptest.NewRecorder()
		fn(rr, httptest.NewRequest(http.MethodPost, "/", nil))

		var resp map[string]bool
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !resp["success"] {
			t.Fatalf("expected success acknowledgement, got %s", rr.Body.String())
		}
	}
}
