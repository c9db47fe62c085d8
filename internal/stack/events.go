package stack

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TurnEventType tags the variants of a streamed agent turn event.
type TurnEventType string

const (
	EventTurnStart    TurnEventType = "turn_start"
	EventStepStart    TurnEventType = "step_start"
	EventStepProgress TurnEventType = "step_progress"
	EventStepComplete TurnEventType = "step_complete"
	EventTurnComplete TurnEventType = "turn_complete"
)

const (
	StepTypeInference     = "inference"
	StepTypeToolExecution = "tool_execution"
)

// TurnEvent is the tagged variant the relay consumes. All attribute
// shape probing on upstream payloads happens in this file, once, at the
// point the wire JSON is deserialized; downstream code switches on Type
// and reads plain strings. Tags outside the known constants are carried
// through verbatim so new upstream event types flow past the relay
// without erroring.
type TurnEvent struct {
	Type TurnEventType

	// Delta is the incremental text of a step_progress event.
	Delta string

	// Step is set for step_complete events.
	Step *StepDetails

	// TurnContent is the assembled output message of a turn_complete
	// event, normalized to plain text.
	TurnContent string
}

type StepDetails struct {
	StepType string

	// InferenceContent is the completed inference output, when present.
	InferenceContent string

	ToolCalls     []ToolCall
	ToolResponses []ToolResponse
}

type ToolCall struct {
	ToolName  string
	Arguments map[string]any
}

// ToolResponse is one tool invocation result with its payload already
// flattened to a string.
type ToolResponse struct {
	ToolName string
	Content  string
}

// TurnEventResult is one event from the turn stream or a terminal error.
type TurnEventResult struct {
	Event TurnEvent
	Err   error
}

// Wire shapes. The distribution wraps every chunk as
// {"event": {"payload": {...}}}.

type wireTurnChunk struct {
	Event *struct {
		Payload *wireTurnPayload `json:"payload"`
	} `json:"event"`
}

type wireTurnPayload struct {
	EventType   string           `json:"event_type"`
	Delta       *wireDelta       `json:"delta,omitempty"`
	StepDetails *wireStepDetails `json:"step_details,omitempty"`
	Turn        *wireTurn        `json:"turn,omitempty"`
}

type wireDelta struct {
	Text    json.RawMessage `json:"text,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}

type wireStepDetails struct {
	StepType      string             `json:"step_type"`
	ToolCalls     []wireToolCall     `json:"tool_calls,omitempty"`
	ToolResponses []wireToolResponse `json:"tool_responses,omitempty"`
	Output        *struct {
		Content json.RawMessage `json:"content,omitempty"`
	} `json:"output,omitempty"`
}

type wireToolCall struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type wireToolResponse struct {
	ToolName string          `json:"tool_name"`
	Content  json.RawMessage `json:"content"`
}

type wireTurn struct {
	OutputMessage *struct {
		Content json.RawMessage `json:"content,omitempty"`
	} `json:"output_message,omitempty"`
}

// decodeTurnEvent converts one wire chunk into a TurnEvent.
func decodeTurnEvent(data []byte) (TurnEvent, error) {
	var chunk wireTurnChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return TurnEvent{}, fmt.Errorf("stack: unmarshal turn event: %w", err)
	}
	if chunk.Event == nil || chunk.Event.Payload == nil {
		return TurnEvent{}, fmt.Errorf("stack: turn event missing payload: %s", truncate(string(data), 200))
	}

	payload := chunk.Event.Payload
	ev := TurnEvent{Type: TurnEventType(payload.EventType)}

	switch ev.Type {
	case EventStepProgress:
		if payload.Delta != nil {
			// Delta carries either a "text" or a "content" attribute
			// depending on the delta kind.
			if text := normalizeContent(payload.Delta.Text); text != "" {
				ev.Delta = text
			} else {
				ev.Delta = normalizeContent(payload.Delta.Content)
			}
		}

	case EventStepComplete:
		if payload.StepDetails != nil {
			step := &StepDetails{StepType: payload.StepDetails.StepType}
			if out := payload.StepDetails.Output; out != nil {
				step.InferenceContent = normalizeContent(out.Content)
			}
			for _, tc := range payload.StepDetails.ToolCalls {
				step.ToolCalls = append(step.ToolCalls, ToolCall{
					ToolName:  tc.ToolName,
					Arguments: tc.Arguments,
				})
			}
			for _, tr := range payload.StepDetails.ToolResponses {
				step.ToolResponses = append(step.ToolResponses, ToolResponse{
					ToolName: tr.ToolName,
					Content:  normalizeContent(tr.Content),
				})
			}
			ev.Step = step
		}

	case EventTurnComplete:
		if payload.Turn != nil && payload.Turn.OutputMessage != nil {
			ev.TurnContent = normalizeContent(payload.Turn.OutputMessage.Content)
		}
	}

	return ev, nil
}

// normalizeContent flattens the upstream content shapes to one string:
// a bare string, an item with a "text" or nested "content" attribute, or
// a list of such items joined by newlines. Anything else is stringified
// as compact JSON.
func normalizeContent(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var item struct {
		Text    json.RawMessage `json:"text"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(raw, &item); err == nil {
		if len(item.Text) > 0 {
			if text := normalizeContent(item.Text); text != "" {
				return text
			}
		}
		if len(item.Content) > 0 {
			if content := normalizeContent(item.Content); content != "" {
				return content
			}
		}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		parts := make([]string, 0, len(items))
		for _, it := range items {
			parts = append(parts, normalizeContent(it))
		}
		return strings.Join(parts, "\n")
	}

	return string(raw)
}
