package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var thinkingBlockRe = regexp.MustCompile(`(?s)<thinking>.*?</thinking>`)

// ExtractJSON pulls a JSON object out of raw model output. Models wrap
// structured answers in thinking blocks, markdown code fences, or prose;
// this strips all of that and returns the outermost {...} span.
func ExtractJSON(raw string) (string, error) {
	cleaned := thinkingBlockRe.ReplaceAllString(raw, "")
	cleaned = strings.TrimSpace(cleaned)

	if fence := extractCodeFence(cleaned); fence != "" {
		cleaned = fence
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object found in model output")
	}
	return cleaned[start : end+1], nil
}

// DecodeStructured extracts and unmarshals a JSON object from raw model
// output into v.
func DecodeStructured(raw string, v interface{}) error {
	jsonStr, err := ExtractJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(jsonStr), v); err != nil {
		return fmt.Errorf("failed to parse structured output: %w", err)
	}
	return nil
}

// extractCodeFence returns the content of the first fenced code block, or
// "" when the input has none.
func extractCodeFence(s string) string {
	start := strings.Index(s, "```")
	if start == -1 {
		return ""
	}
	rest := s[start+3:]
	// Drop an optional language tag on the opening fence line.
	if nl := strings.Index(rest, "\n"); nl != -1 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine == "json" || firstLine == "" {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end == -1 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}
