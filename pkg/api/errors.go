package api

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/microcosm-cc/bluemonday"

	"github.com/goliatone/go-formflow/pkg/wizard"
)

// maxDetailLength caps backend detail text shown for 400 responses; longer
// texts are usually stack traces or serializer dumps.
const maxDetailLength = 100

// Error is a non-2xx backend response.
type Error struct {
	Method string
	URL    string
	Status int
	// Detail is the backend's `detail` message, or the raw text body.
	Detail string
	// Fields maps field names (dotted for nested serializers) to messages.
	Fields map[string][]string
	// Form holds non-field messages (`non_field_errors`, `__all__`).
	Form []string
	Body []byte
}

func (e *Error) Error() string {
	msg := e.Detail
	if msg == "" && len(e.Form) > 0 {
		msg = e.Form[0]
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("api: %s %s: %d %s", e.Method, e.URL, e.Status, msg)
}

// FirstFieldError returns the first field message in field-name order.
func (e *Error) FirstFieldError() (string, string, bool) {
	if e == nil || len(e.Fields) == 0 {
		return "", "", false
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if msgs := e.Fields[name]; len(msgs) > 0 {
			return name, msgs[0], true
		}
	}
	return "", "", false
}

// IsStatus reports whether err is an *Error with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}

func newError(method, rawURL string, status int, body []byte) *Error {
	apiErr := &Error{Method: method, URL: rawURL, Status: status, Body: body}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return apiErr
	}

	var payload any
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		apiErr.Detail = trimmed
		return apiErr
	}

	switch v := payload.(type) {
	case string:
		apiErr.Detail = v
	case []any:
		apiErr.Form = flattenMessages(v)
	case map[string]any:
		fields := make(map[string][]string)
		for key, raw := range v {
			if key == "detail" {
				if s, ok := raw.(string); ok {
					apiErr.Detail = s
					continue
				}
			}
			if isFormLevelKey(key) {
				apiErr.Form = append(apiErr.Form, flattenMessages(raw)...)
				continue
			}
			collectFieldErrors(fields, key, raw)
		}
		if len(fields) > 0 {
			apiErr.Fields = fields
		}
	}
	return apiErr
}

// collectFieldErrors walks nested serializer errors such as
// {"address": {"postcode": ["invalid"]}} or {"slots": [{"start": ["..."]}]}.
func collectFieldErrors(out map[string][]string, prefix string, raw any) {
	switch v := raw.(type) {
	case string:
		out[prefix] = append(out[prefix], v)
	case []any:
		for i, item := range v {
			switch item.(type) {
			case map[string]any, []any:
				collectFieldErrors(out, fmt.Sprintf("%s.%d", prefix, i), item)
			default:
				if s := strings.TrimSpace(fmt.Sprint(item)); s != "" && item != nil {
					out[prefix] = append(out[prefix], s)
				}
			}
		}
	case map[string]any:
		for key, item := range v {
			if isFormLevelKey(key) {
				collectFieldErrors(out, prefix, item)
				continue
			}
			collectFieldErrors(out, prefix+"."+key, item)
		}
	}
}

func flattenMessages(raw any) []string {
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []any:
		var out []string
		for _, item := range v {
			out = append(out, flattenMessages(item)...)
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var out []string
		for _, k := range keys {
			out = append(out, flattenMessages(v[k])...)
		}
		return out
	default:
		return nil
	}
}

func isFormLevelKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "", "__all__", "non_field_errors", "non-field-errors":
		return true
	default:
		return false
	}
}

// Fallback messages shown to users.
const (
	MsgMissingInformation = "Some information are missing"
	MsgSessionExpired     = "Session expired. Please log in again."
	MsgForbidden          = "You don't have permission to perform this action."
	MsgNotFound           = "The requested resource was not found."
	MsgConflict           = "Conflict occurred. Please check your data."
	MsgValidation         = "Validation error occurred"
	MsgTooManyRequests    = "Too many requests. Please try again later."
	MsgServer             = "Server error. Please try again later."
	MsgNetwork            = "Network error. Please check your connection and try again."
	MsgTimeout            = "The request timed out. Please try again."
	MsgCancelled          = "The request was cancelled."
)

// UserMessage converts any error from this package, a wizard validation
// failure or a transport error into a short user-facing message. Backend text
// is stripped of markup.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var validation *wizard.ValidationError
	if errors.As(err, &validation) && len(validation.Issues) > 0 {
		return sanitizeMessage(validation.Issues[0].Message)
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		switch {
		case errors.Is(err, context.Canceled):
			return MsgCancelled
		case errors.Is(err, context.DeadlineExceeded):
			return MsgTimeout
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			if urlErr.Timeout() {
				return MsgTimeout
			}
			return MsgNetwork
		}
		return sanitizeMessage(err.Error())
	}

	switch status := apiErr.Status; {
	case status == http.StatusBadRequest:
		if apiErr.Detail != "" {
			if len(apiErr.Detail) > maxDetailLength {
				return MsgMissingInformation
			}
			return sanitizeMessage(apiErr.Detail)
		}
		if len(apiErr.Form) > 0 {
			return sanitizeMessage(apiErr.Form[0])
		}
		if msgs := FieldMessages(apiErr); len(msgs) > 0 {
			return sanitizeMessage(strings.Join(msgs, ", "))
		}
		return MsgMissingInformation
	case status == http.StatusUnauthorized:
		return MsgSessionExpired
	case status == http.StatusForbidden:
		return MsgForbidden
	case status == http.StatusNotFound:
		return MsgNotFound
	case status == http.StatusConflict:
		return MsgConflict
	case status == http.StatusUnprocessableEntity:
		if _, msg, ok := apiErr.FirstFieldError(); ok {
			return sanitizeMessage(msg)
		}
		if len(apiErr.Form) > 0 {
			return sanitizeMessage(apiErr.Form[0])
		}
		return MsgValidation
	case status == http.StatusTooManyRequests:
		return MsgTooManyRequests
	case status >= 500:
		return MsgServer
	default:
		if apiErr.Detail != "" {
			return sanitizeMessage(apiErr.Detail)
		}
		return fmt.Sprintf("An unexpected error occurred (%d)", status)
	}
}

// FieldMessages flattens field errors into "Field > Nested: message" lines
// in field-name order.
func FieldMessages(apiErr *Error) []string {
	if apiErr == nil || len(apiErr.Fields) == 0 {
		return nil
	}
	names := make([]string, 0, len(apiErr.Fields))
	for name := range apiErr.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []string
	for _, name := range names {
		label := readablePath(name)
		for _, msg := range apiErr.Fields[name] {
			out = append(out, label+": "+msg)
		}
	}
	return out
}

func readablePath(path string) string {
	parts := strings.Split(path, ".")
	kept := parts[:0]
	for _, part := range parts {
		if part == "" || isDigits(part) {
			continue
		}
		words := strings.Fields(strings.ReplaceAll(part, "_", " "))
		for i, w := range words {
			r, size := utf8.DecodeRuneInString(w)
			words[i] = string(unicode.ToUpper(r)) + w[size:]
		}
		kept = append(kept, strings.Join(words, " "))
	}
	return strings.Join(kept, " > ")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

var (
	messagePolicyOnce sync.Once
	messagePolicy     *bluemonday.Policy
)

func sanitizeMessage(raw string) string {
	messagePolicyOnce.Do(func() {
		messagePolicy = bluemonday.StrictPolicy()
	})
	cleaned := messagePolicy.Sanitize(strings.TrimSpace(raw))
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
