package jsonrepair

import (
	"encoding/json"
	"regexp"
	"strings"
)

// LLM output is not contractually valid JSON. Recover applies a sequence of
// increasingly aggressive repairs and returns the first candidate that
// parses, or ok=false when nothing can be salvaged. Callers treat ok=false
// as "no data", never as a fatal error.

var (
	trailingCommaObj = regexp.MustCompile(`,\s*}`)
	trailingCommaArr = regexp.MustCompile(`,\s*]`)
	scheduleArray    = regexp.MustCompile(`(?s)"schedule"\s*:\s*(\[.*?\])\s*[,}]`)
	schedulesArray   = regexp.MustCompile(`(?s)"schedules"\s*:\s*(\[.*?\])\s*[,}]`)
)

// Extract strips a fenced code block wrapper from a model response,
// preferring an explicit ```json fence over a bare one.
func Extract(content string) string {
	if strings.Contains(content, "```json") {
		content = strings.SplitN(content, "```json", 2)[1]
		content = strings.SplitN(content, "```", 2)[0]
	} else if strings.Contains(content, "```") {
		parts := strings.SplitN(content, "```", 3)
		if len(parts) >= 2 {
			content = parts[1]
		}
	}
	return strings.TrimSpace(content)
}

// Fix strips the code fence and removes trailing commas before closing
// delimiters, the two most common generation defects.
func Fix(content string) string {
	s := Extract(content)
	s = trailingCommaObj.ReplaceAllString(s, "}")
	s = trailingCommaArr.ReplaceAllString(s, "]")
	return s
}

// Recover returns valid JSON bytes extracted from content.
func Recover(content string) ([]byte, bool) {
	raw := Extract(content)
	if json.Valid([]byte(raw)) {
		return []byte(raw), true
	}

	fixed := Fix(content)
	if json.Valid([]byte(fixed)) {
		return []byte(fixed), true
	}

	// Last resort: pull just the schedule array out of the wreckage.
	if b, ok := extractArray(fixed, scheduleArray, "schedule"); ok {
		return b, true
	}
	if b, ok := extractArray(fixed, schedulesArray, "schedules"); ok {
		return b, true
	}

	return nil, false
}

func extractArray(s string, re *regexp.Regexp, key string) ([]byte, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}
	var arr []any
	if err := json.Unmarshal([]byte(m[1]), &arr); err != nil {
		return nil, false
	}
	b, err := json.Marshal(map[string]any{key: arr})
	if err != nil {
		return nil, false
	}
	return b, true
}

// Parse recovers content into a generic map.
func Parse(content string) (map[string]any, bool) {
	b, ok := Recover(content)
	if !ok {
		return nil, false
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, false
	}
	return out, true
}

// Decode recovers content and unmarshals it into v.
func Decode(content string, v any) bool {
	b, ok := Recover(content)
	if !ok {
		return false
	}
	return json.Unmarshal(b, v) == nil
}
