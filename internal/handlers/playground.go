package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"playground-gateway/internal/dataset"
	"playground-gateway/internal/relay"
	"playground-gateway/internal/stack"
	"playground-gateway/pkg/logging/logging"
)

const (
	defaultEmbeddingModel     = "all-MiniLM-L6-v2"
	defaultEmbeddingDimension = 384
	defaultChunkSizeInTokens  = 512

	regularAgentInstructions = "You are a helpful assistant. When you use a tool always respond with a summary of the result."
	reactAgentInstructions   = "You are a helpful assistant. Use the available tools to answer the user's question."

	ragPromptTemplate = "Please answer the following query using the context below.\n\nCONTEXT:\n%s\n\nQUERY:\n%s"
)

// maxUploadMemory bounds multipart parsing; larger parts spill to disk.
const maxUploadMemory = 10 << 20

// ChatPage returns the chat page data: the inference models available
// to the caller. Listing failures degrade to an empty model list so the
// page still renders for unauthenticated health probes.
func (h *Handler) ChatPage(w http.ResponseWriter, r *http.Request) {
	c, ok := h.client(w, r)
	if !ok {
		return
	}

	models, err := c.ListModels(r.Context())
	if err != nil {
		logging.L(r.Context()).Warn("model listing failed", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"models": modelIdentifiers(models),
	})
}

type chatRequest struct {
	Model             string          `json:"model"`
	Prompt            string          `json:"prompt"`
	Messages          []stack.Message `json:"messages"`
	SystemPrompt      string          `json:"system_prompt"`
	Temperature       float64         `json:"temperature"`
	TopP              float64         `json:"top_p"`
	MaxTokens         int             `json:"max_tokens"`
	RepetitionPenalty float64         `json:"repetition_penalty"`
	Stream            *bool           `json:"stream"`
}

// messages folds the system prompt, prior conversation, and the new
// prompt into the upstream message list.
func (req *chatRequest) messages() []stack.Message {
	var msgs []stack.Message
	if req.SystemPrompt != "" {
		msgs = append(msgs, stack.Message{Role: stack.RoleSystem, Content: req.SystemPrompt})
	}
	msgs = append(msgs, req.Messages...)
	if req.Prompt != "" {
		msgs = append(msgs, stack.Message{Role: stack.RoleUser, Content: req.Prompt})
	}
	return msgs
}

func (req *chatRequest) sampling() stack.SamplingParams {
	return stack.SamplingParams{
		Strategy:          stack.StrategyFor(req.Temperature, req.TopP),
		MaxTokens:         req.MaxTokens,
		RepetitionPenalty: req.RepetitionPenalty,
	}
}

// Chat handles POST /playground/chat: a chat completion, streamed as
// SSE frames unless the caller asks for a single JSON answer.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	if !h.requireToken(w, r) {
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	upstream := &stack.ChatRequest{
		ModelID:        req.Model,
		Messages:       req.messages(),
		SamplingParams: req.sampling(),
	}
	if err := upstream.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, ok := h.client(w, r)
	if !ok {
		return
	}

	if req.Stream != nil && !*req.Stream {
		resp, err := c.ChatCompletion(r.Context(), upstream)
		if err != nil {
			writeUpstreamError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"content": resp.CompletionMessage.Content})
		return
	}

	ctx, cancel := h.streamContext(r)
	defer cancel()

	chunks, err := c.ChatCompletionStream(ctx, upstream)
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}

	sw, ok := streamWriter(w, r)
	if !ok {
		return
	}
	relay.Completion(ctx, sw, chunks, relay.CompletionOptions{})
}

// ChatClear acknowledges a history reset. Conversation state lives in
// the browser, so there is nothing to drop server side.
func (h *Handler) ChatClear(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// RAGPage returns the retrieval page data: models plus the vector DBs
// available for querying.
func (h *Handler) RAGPage(w http.ResponseWriter, r *http.Request) {
	c, ok := h.client(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	logger := logging.L(ctx)

	models, err := c.ListModels(ctx)
	if err != nil {
		logger.Warn("model listing failed", zap.Error(err))
	}
	dbs, err := c.ListVectorDBs(ctx)
	if err != nil {
		logger.Warn("vector db listing failed", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"models":     modelIdentifiers(models),
		"vector_dbs": vectorDBIdentifiers(dbs),
	})
}

// RAGUpload handles POST /playground/rag: registers a fresh vector DB
// and ingests the uploaded documents into it.
func (h *Handler) RAGUpload(w http.ResponseWriter, r *http.Request) {
	if !h.requireToken(w, r) {
		return
	}
	ctx := r.Context()
	logger := logging.L(ctx)

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	c, ok := h.client(w, r)
	if !ok {
		return
	}

	providerID, err := vectorIOProvider(r, c)
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}

	vectorDBID := r.FormValue("vector_db_name")
	if vectorDBID == "" {
		vectorDBID = "rag_vector_db_" + uuid.NewString()
	}

	if err := c.RegisterVectorDB(ctx, stack.RegisterVectorDBRequest{
		VectorDBID:         vectorDBID,
		EmbeddingModel:     defaultEmbeddingModel,
		EmbeddingDimension: defaultEmbeddingDimension,
		ProviderID:         providerID,
	}); err != nil {
		writeUpstreamError(w, r, err)
		return
	}

	docs := make([]stack.RAGDocument, 0, len(files))
	for i, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read upload "+fh.Filename)
			return
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read upload "+fh.Filename)
			return
		}
		docs = append(docs, stack.RAGDocument{
			DocumentID: fmt.Sprintf("doc-%d-%s", i, fh.Filename),
			Content:    dataset.DataURL(fh.Filename, content),
			Metadata:   map[string]any{"filename": fh.Filename},
		})
	}

	if err := c.InsertDocuments(ctx, stack.InsertRequest{
		VectorDBID:        vectorDBID,
		Documents:         docs,
		ChunkSizeInTokens: defaultChunkSizeInTokens,
	}); err != nil {
		writeUpstreamError(w, r, err)
		return
	}

	logger.Info("documents ingested",
		zap.String("vector_db_id", vectorDBID),
		zap.Int("document_count", len(docs)),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"vector_db_id":   vectorDBID,
		"document_count": len(docs),
	})
}

// vectorIOProvider picks the provider the new vector DB registers
// against: the first registered vector_io provider.
func vectorIOProvider(r *http.Request, c stack.Client) (string, error) {
	providers, err := c.ListProviders(r.Context())
	if err != nil {
		return "", err
	}
	for _, p := range providers {
		if p.API == "vector_io" {
			return p.ProviderID, nil
		}
	}
	return "", fmt.Errorf("no vector_io provider registered on the stack")
}

type ragQueryRequest struct {
	Model             string   `json:"model"`
	Prompt            string   `json:"prompt"`
	VectorDBIDs       []string `json:"vector_db_ids"`
	SystemPrompt      string   `json:"system_prompt"`
	Temperature       float64  `json:"temperature"`
	TopP              float64  `json:"top_p"`
	MaxTokens         int      `json:"max_tokens"`
	RepetitionPenalty float64  `json:"repetition_penalty"`
}

// RAGQuery handles POST /playground/rag/query: retrieves context from
// the selected vector DBs, folds it into the prompt, and streams the
// completion with the retrieved context riding on each frame.
func (h *Handler) RAGQuery(w http.ResponseWriter, r *http.Request) {
	if !h.requireToken(w, r) {
		return
	}

	var req ragQueryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Prompt == "" || req.Model == "" {
		writeError(w, http.StatusBadRequest, "model and prompt are required")
		return
	}
	if len(req.VectorDBIDs) == 0 {
		writeError(w, http.StatusBadRequest, "at least one vector db must be selected")
		return
	}

	c, ok := h.client(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.streamContext(r)
	defer cancel()

	result, err := c.QueryRAG(ctx, stack.QueryRequest{
		Content:     req.Prompt,
		VectorDBIDs: req.VectorDBIDs,
	})
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}

	prompt := req.Prompt
	if result.Content != "" {
		prompt = fmt.Sprintf(ragPromptTemplate, result.Content, req.Prompt)
	}

	messages := []stack.Message{}
	if req.SystemPrompt != "" {
		messages = append(messages, stack.Message{Role: stack.RoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, stack.Message{Role: stack.RoleUser, Content: prompt})

	chunks, err := c.ChatCompletionStream(ctx, &stack.ChatRequest{
		ModelID:  req.Model,
		Messages: messages,
		SamplingParams: stack.SamplingParams{
			Strategy:          stack.StrategyFor(req.Temperature, req.TopP),
			MaxTokens:         req.MaxTokens,
			RepetitionPenalty: req.RepetitionPenalty,
		},
	})
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}

	sw, ok := streamWriter(w, r)
	if !ok {
		return
	}
	relay.Completion(ctx, sw, chunks, relay.CompletionOptions{Context: result.Content})
}

// RAGClear acknowledges a chat reset on the retrieval page.
func (h *Handler) RAGClear(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ToolsPage returns the tools page data: models, tool groups split into
// builtin and MCP sets, and the vector DBs the rag tool can search.
func (h *Handler) ToolsPage(w http.ResponseWriter, r *http.Request) {
	c, ok := h.client(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	logger := logging.L(ctx)

	models, err := c.ListModels(ctx)
	if err != nil {
		logger.Warn("model listing failed", zap.Error(err))
	}
	groups, err := c.ListToolGroups(ctx)
	if err != nil {
		logger.Warn("toolgroup listing failed", zap.Error(err))
	}
	dbs, err := c.ListVectorDBs(ctx)
	if err != nil {
		logger.Warn("vector db listing failed", zap.Error(err))
	}

	builtin := []string{}
	mcp := []string{}
	for _, g := range groups {
		if strings.HasPrefix(g.Identifier, "mcp::") {
			mcp = append(mcp, g.Identifier)
		} else {
			builtin = append(builtin, g.Identifier)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"models":        modelIdentifiers(models),
		"builtin_tools": builtin,
		"mcp_tools":     mcp,
		"vector_dbs":    vectorDBIdentifiers(dbs),
	})
}

type toolsTurnRequest struct {
	Model          string   `json:"model"`
	Prompt         string   `json:"prompt"`
	AgentType      string   `json:"agent_type"`
	Tools          []string `json:"tools"`
	VectorDBIDs    []string `json:"vector_dbs"`
	OpenShiftToken string   `json:"openshift_token"`
	Temperature    float64  `json:"temperature"`
	TopP           float64  `json:"top_p"`
	MaxTokens      int      `json:"max_tokens"`
}

func (req *toolsTurnRequest) react() bool {
	return strings.EqualFold(req.AgentType, "ReAct")
}

// agentTools expands the selected tool group names into the agent tool
// list; builtin::rag becomes its knowledge_search tool bound to the
// selected vector DBs.
func (req *toolsTurnRequest) agentTools() []stack.AgentTool {
	tools := make([]stack.AgentTool, 0, len(req.Tools))
	for _, name := range req.Tools {
		if name == "builtin::rag" {
			args := map[string]any{}
			if len(req.VectorDBIDs) > 0 {
				args["vector_db_ids"] = req.VectorDBIDs
			}
			tools = append(tools, stack.AgentTool{Name: "builtin::rag/knowledge_search", Args: args})
			continue
		}
		tools = append(tools, stack.AgentTool{Name: name})
	}
	return tools
}

// ToolsTurn handles POST /playground/tools: creates a single-use agent
// and session, runs one turn, and relays the event stream. An
// openshift_token in the request, when present, replaces the proxy
// credential for the tool backends only.
func (h *Handler) ToolsTurn(w http.ResponseWriter, r *http.Request) {
	if !h.requireToken(w, r) {
		return
	}

	var req toolsTurnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Model == "" || req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "model and prompt are required")
		return
	}

	var c stack.Client
	var err error
	if req.OpenShiftToken != "" {
		c, err = h.Provider.ClientWithToolToken(r.Context(), r.Header, req.OpenShiftToken)
	} else {
		c, err = h.Provider.ClientFor(r.Context(), r.Header)
	}
	if err != nil {
		logging.L(r.Context()).Error("client construction failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to reach the inference stack")
		return
	}

	cfg := stack.AgentConfig{
		Model: req.Model,
		Tools: req.agentTools(),
		SamplingParams: stack.SamplingParams{
			Strategy:  stack.StrategyFor(req.Temperature, req.TopP),
			MaxTokens: req.MaxTokens,
		},
	}
	if req.react() {
		cfg.Instructions = reactAgentInstructions
		cfg.ResponseFormat = stack.ReActResponseFormat()
	} else {
		cfg.Instructions = regularAgentInstructions
	}

	ctx, cancel := h.streamContext(r)
	defer cancel()

	agentID, err := c.CreateAgent(ctx, cfg)
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	sessionID, err := c.CreateSession(ctx, agentID, "tool_demo_"+uuid.NewString())
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}

	events, err := c.CreateTurnStream(ctx, stack.TurnRequest{
		AgentID:   agentID,
		SessionID: sessionID,
		Messages:  []stack.Message{{Role: stack.RoleUser, Content: req.Prompt}},
	})
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}

	sw, ok := streamWriter(w, r)
	if !ok {
		return
	}
	relay.Turn(ctx, sw, events, relay.TurnOptions{
		ReAct:      req.react(),
		Diagnostic: fmt.Sprintf("agent_type=%s model=%s", req.AgentType, req.Model),
	})
}

// ToolsClear acknowledges a chat reset on the tools page.
func (h *Handler) ToolsClear(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ToolsList handles GET /playground/tools/get_tools: the individual
// tools of the selected groups (all groups when none are named). A
// group whose listing fails contributes an empty list rather than
// failing the whole response.
func (h *Handler) ToolsList(w http.ResponseWriter, r *http.Request) {
	c, ok := h.client(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	logger := logging.L(ctx)

	var groupIDs []string
	if raw := r.URL.Query().Get("toolgroups"); raw != "" {
		groupIDs = strings.Split(raw, ",")
	} else {
		groups, err := c.ListToolGroups(ctx)
		if err != nil {
			logger.Warn("toolgroup listing failed", zap.Error(err))
		}
		for _, g := range groups {
			groupIDs = append(groupIDs, g.Identifier)
		}
	}

	grouped := map[string][]string{}
	total := 0
	for _, id := range groupIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		tools, err := c.ListTools(ctx, id)
		if err != nil {
			logger.Warn("tool listing failed",
				zap.String("toolgroup_id", id),
				zap.Error(err),
			)
			grouped[id] = []string{}
			continue
		}
		names := make([]string, 0, len(tools))
		for _, t := range tools {
			names = append(names, t.Identifier)
		}
		grouped[id] = names
		total += len(names)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"grouped_tools": grouped,
		"total_tools":   total,
	})
}

// ToolsVectorDBs handles GET /playground/tools/get_vector_dbs.
func (h *Handler) ToolsVectorDBs(w http.ResponseWriter, r *http.Request) {
	c, ok := h.client(w, r)
	if !ok {
		return
	}

	dbs, err := c.ListVectorDBs(r.Context())
	if err != nil {
		logging.L(r.Context()).Warn("vector db listing failed", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"vector_dbs": vectorDBIdentifiers(dbs),
	})
}
