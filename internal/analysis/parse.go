package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stripFences removes a ```json ... ``` wrapper if present.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 3 {
		return text
	}
	end := len(lines) - 1
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			end = i
			break
		}
	}
	return strings.Join(lines[1:end], "\n")
}

// extractObject returns the outermost {...} span of text.
func extractObject(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return "", fmt.Errorf("no JSON object in model reply")
	}
	return text[start : end+1], nil
}

// parseReply decodes a model reply that should hold a JSON object, tolerating
// markdown fences and surrounding prose.
func parseReply[T any](raw string) (T, error) {
	var out T
	obj, err := extractObject(stripFences(raw))
	if err != nil {
		return out, fmt.Errorf("%w (reply length: %d)", err, len(raw))
	}
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		preview := obj
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return out, fmt.Errorf("invalid JSON: %w (text: %s)", err, preview)
	}
	return out, nil
}
