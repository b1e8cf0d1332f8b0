package llm

import (
	"fmt"
	"unicode/utf8"
)

// TransportError means the generation call failed outright (timeout,
// non-success status, empty response).
type TransportError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s transport error (HTTP %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s transport error: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ParseError means the model returned text that is not well-formed
// structured data.
type ParseError struct {
	// Snippet is a bounded prefix of the offending text
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable model output: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func newParseError(raw string, err error) *ParseError {
	const max = 200
	snippet := raw
	if len(snippet) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(snippet[cut]) {
			cut--
		}
		snippet = snippet[:cut]
	}
	return &ParseError{Snippet: snippet, Err: err}
}
