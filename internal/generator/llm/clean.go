package llm

import (
	"encoding/json"
	"errors"
	"strings"

	"cymbytes.com/cymlure/pkg/contract"
)

// CleanJSON strips non-JSON wrapping (markdown fences, prose before or after)
// from raw model text and returns the first valid JSON object, or the first
// valid array when the text holds no object.
func CleanJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", newParseError(raw, errors.New("empty response"))
	}

	s = stripFences(s)

	candidate, found := extractJSON(s)
	if candidate == "" {
		if found {
			return "", newParseError(raw, errors.New("malformed JSON"))
		}
		return "", newParseError(raw, errors.New("no JSON found in response"))
	}
	return candidate, nil
}

// DecodeInto cleans raw model text and decodes it into v with null members
// collapsed to absent.
func DecodeInto(raw string, v interface{}) error {
	cleaned, err := CleanJSON(raw)
	if err != nil {
		return err
	}
	if err := contract.Decode([]byte(cleaned), v); err != nil {
		return newParseError(raw, err)
	}
	return nil
}

func stripFences(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	rest := s[start+3:]
	// Drop the info string (e.g. "json")
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		return strings.TrimSpace(rest[:end])
	}
	return strings.TrimSpace(rest)
}

// extractJSON returns the first balanced span that is valid JSON, trying
// objects before arrays. A span that fails to parse (a merge tag or a
// bracketed heading in prose) is skipped and the scan resumes after its
// opening bracket. found reports whether any balanced span was seen.
func extractJSON(s string) (candidate string, found bool) {
	for _, open := range []byte{'{', '['} {
		for i := 0; i < len(s); i++ {
			if s[i] != open {
				continue
			}
			span := balancedAt(s, i)
			if span == "" {
				continue
			}
			found = true
			if json.Valid([]byte(span)) {
				return span, true
			}
		}
	}
	return "", found
}

// balancedAt returns the balanced span opening at s[start], skipping
// brackets inside string literals, or "" when it never closes.
func balancedAt(s string, start int) string {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}

	return ""
}
