package relay

import "encoding/json"

// Action is a tool invocation announced by a reason-then-act step.
type Action struct {
	ToolName   string         `json:"tool_name"`
	ToolParams map[string]any `json:"tool_params"`
}

// ToolResult is a (tool name, normalized output) pair. It marshals as a
// two-element array, the shape the browser's stream reader expects.
type ToolResult struct {
	Name    string
	Content string
}

func (t ToolResult) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{t.Name, t.Content})
}

// Frame is the SSE frame union. Consumers ignore unknown keys and treat
// done:true as stream end regardless of the other fields; done is
// always serialized so every frame states its terminality explicitly.
type Frame struct {
	Content  string      `json:"content,omitempty"`
	Context  string      `json:"context,omitempty"`
	Error    string      `json:"error,omitempty"`
	Details  string      `json:"details,omitempty"`
	Thought  string      `json:"thought,omitempty"`
	Action   *Action     `json:"action,omitempty"`
	ToolRes  *ToolResult `json:"tool_result,omitempty"`
	ToolInfo string      `json:"tool_info,omitempty"`

	// Evaluation progress fields.
	Progress float64         `json:"progress,omitempty"`
	Current  int             `json:"current,omitempty"`
	Total    int             `json:"total,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Results  any             `json:"results,omitempty"`
	Columns  []string        `json:"columns,omitempty"`
	Row      *int            `json:"row,omitempty"`

	Done bool `json:"done"`
}

// kind labels a frame for metrics by its most significant field.
func (f Frame) kind() string {
	switch {
	case f.Error != "":
		return "error"
	case f.Thought != "":
		return "thought"
	case f.Action != nil:
		return "action"
	case f.ToolRes != nil:
		return "tool_result"
	case f.ToolInfo != "":
		return "tool_info"
	case f.Results != nil:
		return "results"
	case f.Progress > 0 || f.Result != nil:
		return "progress"
	case f.Done:
		return "done"
	default:
		return "content"
	}
}
