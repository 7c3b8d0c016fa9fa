package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ExtractJSON finds the JSON object in a model response. It accepts a bare
// object, an object inside a fenced code block, or the outermost braces
// embedded in prose.
func ExtractJSON(text string) ([]byte, bool) {
	text = strings.TrimSpace(text)
	if json.Valid([]byte(text)) {
		return []byte(text), true
	}
	if m := fencedBlock.FindStringSubmatch(text); m != nil && json.Valid([]byte(m[1])) {
		return []byte(m[1]), true
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		candidate := text[start : end+1]
		if json.Valid([]byte(candidate)) {
			return []byte(candidate), true
		}
	}
	return nil, false
}
