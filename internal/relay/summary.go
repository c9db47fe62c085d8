package relay

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"playground-gateway/internal/stack"
)

// SummarizeToolResults renders collected tool outputs as best-effort
// markdown, used when a turn ends without a final answer. Web-search
// payloads get title/snippet/source bullets; generic result lists,
// objects and arrays get truncated renderings; anything unparseable is
// acknowledged by tool name.
func SummarizeToolResults(results []stack.ToolResponse) string {
	var b strings.Builder

	for _, res := range results {
		var parsed any
		if err := json.Unmarshal([]byte(res.Content), &parsed); err != nil {
			fmt.Fprintf(&b, "\n**%s** was used but returned complex data.\n", res.ToolName)
			continue
		}

		switch v := parsed.(type) {
		case map[string]any:
			summarizeObject(&b, res.ToolName, v)
		case []any:
			summarizeList(&b, v)
		default:
			fmt.Fprintf(&b, "\n**%s** was used but returned complex data.\n", res.ToolName)
		}
	}

	return b.String()
}

func summarizeObject(b *strings.Builder, toolName string, obj map[string]any) {
	if topK, ok := obj["top_k"].([]any); ok && toolName == "web_search" {
		for _, entry := range firstN(topK, 3) {
			hit, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			title := stringField(hit, "title", "Untitled")
			url := stringField(hit, "url", "")
			content := strings.TrimSpace(stringField(hit, "content", ""))
			fmt.Fprintf(b, "\n- **%s**\n  %s\n  [Source](%s)\n", title, content, url)
		}
		return
	}

	if results, ok := obj["results"].([]any); ok {
		for i, entry := range firstN(results, 3) {
			if hit, ok := entry.(map[string]any); ok {
				name := stringField(hit, "name", stringField(hit, "title", fmt.Sprintf("Result %d", i+1)))
				description := stringField(hit, "description",
					stringField(hit, "content", stringField(hit, "summary", "")))
				fmt.Fprintf(b, "\n- **%s**\n  %s\n", name, description)
			} else {
				fmt.Fprintf(b, "\n- %v\n", entry)
			}
		}
		return
	}

	if len(obj) == 0 {
		return
	}

	// Generic object: up to five key/value lines, short strings only.
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteString("\n```\n")
	for _, k := range firstN(keys, 5) {
		if s, ok := obj[k].(string); ok && len(s) < 100 {
			fmt.Fprintf(b, "%s: %s\n", k, s)
		} else {
			fmt.Fprintf(b, "%s: [Complex data]\n", k)
		}
	}
	b.WriteString("```\n")
}

func summarizeList(b *strings.Builder, list []any) {
	for _, item := range firstN(list, 3) {
		switch v := item.(type) {
		case string:
			fmt.Fprintf(b, "- %s\n", v)
		case map[string]any:
			if text, ok := v["text"].(string); ok {
				fmt.Fprintf(b, "- %s\n", text)
			}
		}
	}
}

func firstN[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

func stringField(obj map[string]any, key, fallback string) string {
	if s, ok := obj[key].(string); ok && s != "" {
		return s
	}
	return fallback
}
