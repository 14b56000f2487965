package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ErrTransport marks failures that happened before any HTTP response arrived.
var ErrTransport = errors.New("remote API unreachable")

type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// Error is a non-success HTTP response. Message is empty when the body
// carried no recognizable error field.
type Error struct {
	Status  int
	Message string
	Fields  map[string][]string
	Body    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote API %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("remote API %d: %s", e.Status, http.StatusText(e.Status))
}

// Structured reports whether the server explained the failure.
func (e *Error) Structured() bool {
	return e.Message != ""
}

func newError(status int, raw []byte) *Error {
	e := &Error{Status: status, Body: string(raw)}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return e
	}

	for _, key := range []string{"error", "detail", "message"} {
		if s := decodeMessage(body[key]); s != "" {
			e.Message = s
			return e
		}
	}
	if s := decodeMessage(body["non_field_errors"]); s != "" {
		e.Message = s
		return e
	}

	// Serializer validation errors: {"field": ["msg", ...]}
	fields := make(map[string][]string)
	for k, v := range body {
		var msgs []string
		if err := json.Unmarshal(v, &msgs); err == nil && len(msgs) > 0 {
			fields[k] = msgs
			continue
		}
		var msg string
		if err := json.Unmarshal(v, &msg); err == nil && msg != "" {
			fields[k] = []string{msg}
		}
	}
	if len(fields) > 0 {
		e.Fields = fields
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		e.Message = fields[keys[0]][0]
	}
	return e
}

// decodeMessage accepts a string or a list of strings and returns the first message.
func decodeMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return strings.TrimSpace(list[0])
	}
	return ""
}

// MessageOr returns the server-provided message carried by err, or fallback
// when err is not an *Error with a recognizable message.
func MessageOr(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// SummaryOr joins every field message of a validation error in field order,
// falling back to MessageOr for other errors.
func SummaryOr(err error, fallback string) string {
	var apiErr *Error
	if !errors.As(err, &apiErr) || len(apiErr.Fields) == 0 {
		return MessageOr(err, fallback)
	}
	keys := make([]string, 0, len(apiErr.Fields))
	for k := range apiErr.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var msgs []string
	for _, k := range keys {
		msgs = append(msgs, apiErr.Fields[k]...)
	}
	return strings.Join(msgs, " ")
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsNotFound reports whether the server answered 404.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}
