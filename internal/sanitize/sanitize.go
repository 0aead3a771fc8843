// Package sanitize recovers structured JSON values from free-form model text.
//
// Extraction strips markdown fences, cuts the text down to the outermost
// delimiters of the expected shape, normalizes characters that commonly break
// JSON and parses the result. If parsing fails a single repair pass truncates
// the candidate at the end of its first balanced payload. No further repair is
// attempted: anything beyond that would invent structure the model never
// produced.
package sanitize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/aether-labs/aether/internal/core"
)

// Shape is the kind of top-level JSON value expected in a response.
type Shape string

const (
	ShapeObject Shape = "object"
	ShapeArray  Shape = "array"
)

const snippetLen = 200

var fencePattern = regexp.MustCompile("```[A-Za-z0-9_+-]*")

func (s Shape) delimiters() (open, close byte, ok bool) {
	switch s {
	case ShapeObject:
		return '{', '}', true
	case ShapeArray:
		return '[', ']', true
	}
	return 0, 0, false
}

// Extract parses the first value of the given shape out of raw. It returns
// a map[string]interface{} for objects and a []interface{} for arrays, or a
// *core.SanitizationError.
func Extract(raw string, shape Shape) (interface{}, error) {
	open, closer, ok := shape.delimiters()
	if !ok {
		return nil, newError(shape, raw, fmt.Sprintf("unknown shape %q", shape), nil)
	}

	candidate, err := prepare(raw, shape, open, closer)
	if err != nil {
		return nil, err
	}

	value, parseErr := parse(candidate, shape)
	if parseErr == nil {
		return value, nil
	}

	end, balanced := balancedEnd(candidate, open, closer)
	if !balanced {
		return nil, newError(shape, raw, "no balanced payload", parseErr)
	}
	value, err = parse(candidate[:end+1], shape)
	if err != nil {
		return nil, newError(shape, raw, "repair failed", err)
	}
	return value, nil
}

// ExtractInto runs Extract and decodes the recovered value into v.
func ExtractInto(raw string, shape Shape, v interface{}) error {
	value, err := Extract(raw, shape)
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return newError(shape, raw, "re-encoding value", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return newError(shape, raw, "value does not match expected fields", err)
	}
	return nil
}

// prepare performs the cutting and normalization steps that precede parsing.
func prepare(raw string, shape Shape, open, closer byte) (string, error) {
	s := fencePattern.ReplaceAllString(raw, "")

	start := strings.IndexByte(s, open)
	if start == -1 {
		return "", newError(shape, raw, fmt.Sprintf("no %q found", open), nil)
	}
	s = s[start:]

	// Without a closing delimiter the payload is truncated; leave it whole
	// and let the balance scan decide.
	if end := strings.LastIndexByte(s, closer); end != -1 {
		s = s[:end+1]
	}

	return normalize(s), nil
}

func parse(candidate string, shape Shape) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		return nil, err
	}
	switch v.(type) {
	case map[string]interface{}:
		if shape == ShapeObject {
			return v, nil
		}
	case []interface{}:
		if shape == ShapeArray {
			return v, nil
		}
	}
	return nil, fmt.Errorf("parsed value is not an %s", shape)
}

// scanState is the lexical state of the tokenizer used by both the
// normalization pass and the balance scan.
type scanState int

const (
	stateNormal scanState = iota
	stateInString
	stateEscaped
)

// normalize strips control characters, turns smart quotes into plain ones
// and removes trailing commas before a closing delimiter. Newlines and tabs
// inside string literals are escaped instead of dropped.
func normalize(s string) string {
	out := make([]byte, 0, len(s))
	state := stateNormal
	smartOpened := false

	for _, r := range s {
		switch state {
		case stateNormal:
			switch {
			case r == '"' || r == '“' || r == '”':
				out = append(out, '"')
				state = stateInString
				smartOpened = r != '"'
			case r == '‘' || r == '’':
				out = append(out, '\'')
			case r == '}' || r == ']':
				out = dropTrailingComma(out)
				out = append(out, byte(r))
			case isControl(r):
			default:
				out = utf8.AppendRune(out, r)
			}

		case stateInString:
			switch {
			case r == '\\':
				out = append(out, '\\')
				state = stateEscaped
			case r == '"':
				out = append(out, '"')
				state = stateNormal
			case r == '“' || r == '”':
				if smartOpened {
					out = append(out, '"')
					state = stateNormal
				} else {
					out = append(out, '\\', '"')
				}
			case r == '‘' || r == '’':
				out = append(out, '\'')
			case r == '\n':
				out = append(out, '\\', 'n')
			case r == '\t':
				out = append(out, '\\', 't')
			case isControl(r):
			default:
				out = utf8.AppendRune(out, r)
			}

		case stateEscaped:
			switch {
			case r == '\n':
				out = append(out, 'n')
			case r == '\t':
				out = append(out, 't')
			case isControl(r):
				// A backslash followed by a stripped character would escape
				// whatever comes next, so drop the backslash as well.
				out = out[:len(out)-1]
			default:
				out = utf8.AppendRune(out, r)
			}
			state = stateInString
		}
	}
	return string(out)
}

func dropTrailingComma(out []byte) []byte {
	i := len(out) - 1
	for i >= 0 && out[i] == ' ' {
		i--
	}
	if i >= 0 && out[i] == ',' {
		return append(out[:i], out[i+1:]...)
	}
	return out
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}

// balancedEnd returns the index at which the bracket depth first returns to
// zero after having gone positive. Delimiters inside string literals and
// escaped characters are ignored.
func balancedEnd(s string, open, closer byte) (int, bool) {
	depth := 0
	state := stateNormal

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch state {
		case stateEscaped:
			state = stateInString
		case stateInString:
			switch c {
			case '\\':
				state = stateEscaped
			case '"':
				state = stateNormal
			}
		case stateNormal:
			switch c {
			case '"':
				state = stateInString
			case open:
				depth++
			case closer:
				if depth > 0 {
					depth--
					if depth == 0 {
						return i, true
					}
				}
			}
		}
	}
	return -1, false
}

func newError(shape Shape, raw, reason string, cause error) *core.SanitizationError {
	snippet := raw
	if len(snippet) > snippetLen {
		snippet = snippet[:snippetLen] + "..."
	}
	return &core.SanitizationError{
		Shape:   string(shape),
		Reason:  reason,
		Snippet: snippet,
		Cause:   cause,
	}
}
