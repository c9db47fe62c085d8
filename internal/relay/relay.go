package relay

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"playground-gateway/internal/metrics"
	"playground-gateway/internal/stack"
	"playground-gateway/pkg/logging/logging"
)

// noResponsePlaceholder is the terminal content when a stream ends with
// an empty buffer, so the browser never renders a blank completion.
const noResponsePlaceholder = "No response generated"

// CompletionOptions adjusts the plain completion relay. Context, when
// set, rides along on every frame (the RAG query path shows the
// retrieved chunks next to the answer).
type CompletionOptions struct {
	Context string
}

// Completion relays a chat-completion delta stream: each delta is
// appended to the accumulated buffer and the whole buffer re-emitted,
// and the stream always terminates with exactly one done:true frame,
// error or not.
func Completion(ctx context.Context, w *Writer, chunks <-chan stack.ChunkResult, opts CompletionOptions) {
	metrics.StreamsActive.Inc()
	defer metrics.StreamsActive.Dec()

	logger := logging.L(ctx)

	var buf strings.Builder
	for res := range chunks {
		if res.Err != nil {
			logger.Error("completion stream failed", zap.Error(res.Err))
			_ = w.Send(Frame{Error: res.Err.Error()})
			sendTerminal(w, buf.String(), opts.Context)
			return
		}
		buf.WriteString(res.Delta)
		_ = w.Send(Frame{Content: buf.String(), Context: opts.Context})
	}

	sendTerminal(w, buf.String(), opts.Context)
}

func sendTerminal(w *Writer, content, contextText string) {
	if content == "" {
		content = noResponsePlaceholder
	}
	_ = w.Send(Frame{Content: content, Context: contextText, Done: true})
}

// TurnOptions adjusts the agent turn relay.
type TurnOptions struct {
	// ReAct enables reason-then-act handling: completed inference steps
	// are parsed as structured thought/action/answer output.
	ReAct bool

	// Diagnostic is operator-facing context attached to error frames
	// (agent type, model, prompt excerpt).
	Diagnostic string
}

// turnState is the per-stream relay state. The stream is STREAMING
// until the event channel ends or errors; both exits emit the single
// terminal frame.
type turnState struct {
	buf         strings.Builder
	stepBuf     strings.Builder
	answered    bool
	toolResults []stack.ToolResponse
}

// Turn relays an agent turn event stream to the browser, normalizing
// heterogeneous upstream events into typed frames.
//
// Invariants: exactly one done:true frame is emitted, last, on every
// path; a malformed structured step yields a non-fatal error frame and
// processing continues; unrecognized event tags are ignored.
func Turn(ctx context.Context, w *Writer, events <-chan stack.TurnEventResult, opts TurnOptions) {
	metrics.StreamsActive.Inc()
	defer metrics.StreamsActive.Dec()

	logger := logging.L(ctx)
	st := &turnState{}

	for res := range events {
		if res.Err != nil {
			logger.Error("turn stream failed", zap.Error(res.Err))
			_ = w.Send(Frame{Error: res.Err.Error(), Details: opts.Diagnostic})
			st.sendTerminal(w)
			return
		}
		st.handle(w, res.Event, opts, logger)
	}

	// End of stream without a final answer: fall back to a synthesized
	// summary of whatever the tools returned, so the user is never left
	// with tool chatter and no conclusion. A captured answer (ReAct or
	// turn_complete) takes precedence and suppresses the summary.
	if !st.answered && len(st.toolResults) > 0 {
		summary := SummarizeToolResults(st.toolResults)
		st.buf.WriteString("\n\n**Here's what I found:**\n" + summary)
		_ = w.Send(Frame{Content: summary})
	}

	st.sendTerminal(w)
}

func (st *turnState) sendTerminal(w *Writer) {
	content := st.buf.String()
	if content == "" {
		content = noResponsePlaceholder
	}
	_ = w.Send(Frame{Content: content, Done: true})
}

func (st *turnState) handle(w *Writer, ev stack.TurnEvent, opts TurnOptions, logger *zap.Logger) {
	switch ev.Type {
	case stack.EventStepProgress:
		if ev.Delta == "" {
			return
		}
		st.stepBuf.WriteString(ev.Delta)
		st.buf.WriteString(ev.Delta)
		_ = w.Send(Frame{Content: st.buf.String()})

	case stack.EventStepComplete:
		if ev.Step == nil {
			return
		}
		switch ev.Step.StepType {
		case stack.StepTypeInference:
			if opts.ReAct {
				st.completeReActStep(w, logger)
			} else if ev.Step.InferenceContent != "" {
				st.mergeContent(ev.Step.InferenceContent)
				_ = w.Send(Frame{Content: st.buf.String()})
			}
			st.stepBuf.Reset()

		case stack.StepTypeToolExecution:
			if !opts.ReAct {
				st.announceToolCalls(w, ev.Step.ToolCalls)
			}
			for _, tr := range ev.Step.ToolResponses {
				st.toolResults = append(st.toolResults, tr)
				if tr.Content != "" {
					_ = w.Send(Frame{ToolRes: &ToolResult{Name: tr.ToolName, Content: tr.Content}})
				}
			}
			st.stepBuf.Reset()

		default:
			st.stepBuf.Reset()
		}

	case stack.EventTurnComplete:
		if st.answered || ev.TurnContent == "" {
			return
		}
		st.mergeContent(ev.TurnContent)
		st.answered = true
		_ = w.Send(Frame{Content: st.buf.String()})

	case stack.EventTurnStart, stack.EventStepStart:
		// informational only

	default:
		// Unknown event tags are ignored for forward compatibility.
		logger.Debug("ignoring unrecognized turn event", zap.String("event_type", string(ev.Type)))
	}
}

// mergeContent folds a completed message into the accumulated buffer
// without duplicating text already streamed as progress deltas: when
// the completed content extends the buffer it replaces it, otherwise it
// is appended.
func (st *turnState) mergeContent(content string) {
	buf := st.buf.String()
	if content == buf {
		return
	}
	if strings.HasPrefix(content, buf) {
		st.buf.Reset()
		st.buf.WriteString(content)
		return
	}
	st.buf.WriteString(content)
}

// reactOutput is the structured shape of a reason-then-act inference
// step.
type reactOutput struct {
	Thought string          `json:"thought"`
	Action  *Action         `json:"action"`
	Answer  json.RawMessage `json:"answer"`
}

// completeReActStep parses the text buffered for the finished inference
// step as structured output and dispatches its fields. A parse failure
// is reported as a non-fatal error frame carrying the raw text; one
// malformed step must not abort the turn.
func (st *turnState) completeReActStep(w *Writer, logger *zap.Logger) {
	raw := st.stepBuf.String()
	if raw == "" {
		return
	}

	var out reactOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		logger.Warn("failed to parse structured step", zap.Error(err))
		_ = w.Send(Frame{Error: "Failed to parse structured step output", Content: raw})
		return
	}

	answer := reactAnswer(out.Answer)
	if answer != "" {
		st.buf.WriteString("\n\n✅ **Final Answer:**\n" + answer)
		st.answered = true
	}

	if out.Thought != "" {
		_ = w.Send(Frame{Thought: out.Thought})
	}
	if out.Action != nil && out.Action.ToolName != "" {
		_ = w.Send(Frame{Action: out.Action})
	}
	if answer != "" {
		_ = w.Send(Frame{Content: st.buf.String()})
	}
}

// reactAnswer extracts the answer field, treating JSON null and the
// literal "null" marker some models emit as no answer.
func reactAnswer(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	if s == "null" {
		return ""
	}
	return s
}

func (st *turnState) announceToolCalls(w *Writer, calls []stack.ToolCall) {
	if len(calls) == 0 {
		_ = w.Send(Frame{ToolInfo: "No tool calls present in step details"})
		return
	}
	_ = w.Send(Frame{ToolInfo: `Using "` + calls[0].ToolName + `" tool`})
}
