// Package parse extracts JSON payloads from generated text, which is often
// wrapped in Markdown fences, and falls back to a caller-supplied default
// when the text cannot be decoded.
package parse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const fence = "```"

// ErrNotObject is returned in Result.Err when the cleaned text does not start
// with a JSON object.
var ErrNotObject = errors.New("response is not a JSON object")

// Result is either a decoded payload or the fallback payload. Fallback is
// true, and Err holds the cause, when Value is the fallback.
type Result[T any] struct {
	Value    T
	Fallback bool
	Err      error
}

// Clean trims whitespace and removes a surrounding Markdown code fence,
// including an optional "json" language tag.
func Clean(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, fence) {
		return s
	}
	s = s[len(fence):]
	if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
		s = s[4:]
	}
	if end := strings.Index(s, fence); end != -1 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// Decode cleans raw and decodes it as a JSON object into a fresh T. Any
// failure yields fallback. Decode never panics.
func Decode[T any](raw string, fallback T) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[T]{Value: fallback, Fallback: true, Err: fmt.Errorf("decode panic: %v", r)}
		}
	}()

	s := Clean(raw)
	if !strings.HasPrefix(s, "{") {
		return Result[T]{Value: fallback, Fallback: true, Err: ErrNotObject}
	}

	var v T
	dec := json.NewDecoder(strings.NewReader(s))
	if err := dec.Decode(&v); err != nil {
		return Result[T]{Value: fallback, Fallback: true, Err: fmt.Errorf("decoding payload: %w", err)}
	}
	if dec.More() {
		return Result[T]{Value: fallback, Fallback: true, Err: errors.New("trailing data after JSON object")}
	}
	return Result[T]{Value: v}
}

// present reports whether raw carries a value other than JSON null.
func present(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	return len(b) > 0 && !bytes.Equal(b, []byte("null"))
}

// Strings reads a list of strings. A single string is treated as a
// one-element list; non-string array items are skipped. A missing or
// differently typed field yields fallback.
func Strings(raw json.RawMessage, fallback []string) []string {
	if !present(raw) {
		return fallback
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err == nil {
		out := make([]string, 0, len(items))
		for _, it := range items {
			if s, ok := it.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return []string{}
		}
		return []string{s}
	}
	return fallback
}

// Text reads a string field. Numbers are rendered as text; a missing,
// empty or otherwise typed field yields fallback.
func Text(raw json.RawMessage, fallback string) string {
	if !present(raw) {
		return fallback
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return fallback
		}
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return fallback
}

// Score reads a 0-100 score. Integers, floats (rounded) and numeric strings
// are accepted; anything else is 0. The result is clamped to [0,100].
func Score(raw json.RawMessage) int {
	if !present(raw) {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
		f = v
	}
	return Clamp(f)
}

// Clamp rounds f and bounds it to [0,100]. NaN is 0.
func Clamp(f float64) int {
	if math.IsNaN(f) {
		return 0
	}
	f = math.Round(f)
	switch {
	case f < 0:
		return 0
	case f > 100:
		return 100
	}
	return int(f)
}
