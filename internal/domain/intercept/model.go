package intercept

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Method constants accepted by a Rule.
const (
	MethodGet     = http.MethodGet
	MethodPost    = http.MethodPost
	MethodPut     = http.MethodPut
	MethodPatch   = http.MethodPatch
	MethodDelete  = http.MethodDelete
	MethodHead    = http.MethodHead
	MethodOptions = http.MethodOptions
)

// ValidMethods contains all accepted HTTP verbs.
var ValidMethods = []string{MethodGet, MethodPost, MethodPut, MethodPatch, MethodDelete, MethodHead, MethodOptions}

// Domain errors
var (
	ErrInvalidMethod    = errors.New("method must be one of: GET, POST, PUT, PATCH, DELETE, HEAD, OPTIONS")
	ErrInvalidPattern   = errors.New("path pattern must start with '/' and contain at most one dynamic segment")
	ErrInvalidStatus    = errors.New("status code must be between 100 and 599")
	ErrInvalidTimes     = errors.New("times cannot be negative")
	ErrDuplicateAlias   = errors.New("alias is already bound to another rule")
	ErrUnknownAlias     = errors.New("alias was never registered")
	ErrUnmatchedRequest = errors.New("unmatched request")
	ErrResponseEncode   = errors.New("response body cannot be encoded")
	ErrTimeout          = errors.New("timed out waiting for alias")
)

// Pattern is a parsed URL path pattern with at most one dynamic segment.
type Pattern struct {
	raw      string
	segments []string
	param    int // index of the dynamic segment, -1 when literal
	name     string
}

// ParsePattern parses a path such as "/api/session" or "/api/session/{id}".
// A dynamic segment is written "{name}" or ":name".
// PRE: raw is non-empty
// POST: Returns a Pattern or ErrInvalidPattern
func ParsePattern(raw string) (Pattern, error) {
	if !strings.HasPrefix(raw, "/") || strings.ContainsAny(raw, "?#") {
		return Pattern{}, ErrInvalidPattern
	}
	p := Pattern{param: -1}
	p.segments = splitPath(raw)
	for i, seg := range p.segments {
		name, dynamic := dynamicName(seg)
		if !dynamic {
			continue
		}
		if p.param >= 0 || name == "" {
			return Pattern{}, ErrInvalidPattern
		}
		p.param = i
		p.name = name
	}
	p.raw = "/" + strings.Join(p.segments, "/")
	return p, nil
}

// MustParsePattern is ParsePattern for package-level fixtures; it panics on error.
func MustParsePattern(raw string) Pattern {
	p, err := ParsePattern(raw)
	if err != nil {
		panic(fmt.Sprintf("intercept: %q: %v", raw, err))
	}
	return p
}

// String returns the normalized pattern.
func (p Pattern) String() string {
	return p.raw
}

// IsZero reports whether the pattern was never parsed.
func (p Pattern) IsZero() bool {
	return p.raw == ""
}

// ParamName returns the dynamic segment's name, or "" for literal patterns.
func (p Pattern) ParamName() string {
	return p.name
}

// Match reports whether path matches the pattern and returns the captured
// dynamic segment value.
// INVARIANT: Pattern fields are not mutated
func (p Pattern) Match(path string) (string, bool) {
	segs := splitPath(path)
	if len(segs) != len(p.segments) {
		return "", false
	}
	param := ""
	for i, seg := range segs {
		if i == p.param {
			if seg == "" {
				return "", false
			}
			param = seg
			continue
		}
		if seg != p.segments[i] {
			return "", false
		}
	}
	return param, true
}

// Response is the canned answer returned for a matching call.
type Response struct {
	StatusCode int
	Body       any // []byte and string are sent as-is; anything else is JSON encoded
	Headers    map[string]string
}

// Request is the transport-independent view of an outbound call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header map[string]string
	Body   []byte
	Param  string // value of the pattern's dynamic segment, set on match
}

// Responder computes a response from the intercepted request.
type Responder func(req Request) Response

// Rule maps (method, path pattern) to a response.
type Rule struct {
	Method    string
	Pattern   Pattern
	Response  Response
	Respond   Responder // optional; takes precedence over Response
	Alias     string
	Times     int // 0 means the rule answers every matching call
	CreatedAt time.Time
}

// NewRule builds a rule from raw method and path strings.
// PRE: method is an HTTP verb, path is a valid pattern
// POST: Returns a validated rule
func NewRule(method, path string, resp Response) (Rule, error) {
	p, err := ParsePattern(path)
	if err != nil {
		return Rule{}, err
	}
	r := Rule{Method: strings.ToUpper(strings.TrimSpace(method)), Pattern: p, Response: resp}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Validate checks if the Rule has valid data.
// PRE: Rule struct is populated
// POST: Returns nil if valid, error otherwise
func (r *Rule) Validate() error {
	if !IsValidMethod(r.Method) {
		return ErrInvalidMethod
	}
	if r.Pattern.IsZero() {
		return ErrInvalidPattern
	}
	if r.Response.StatusCode != 0 && (r.Response.StatusCode < 100 || r.Response.StatusCode > 599) {
		return ErrInvalidStatus
	}
	if r.Times < 0 {
		return ErrInvalidTimes
	}
	return nil
}

// Key identifies the rule slot; a newer rule with the same key replaces the older one.
func (r *Rule) Key() string {
	return r.Method + " " + r.Pattern.String()
}

// Resolve returns the response for req, applying the default status.
// INVARIANT: Rule fields are not mutated
func (r *Rule) Resolve(req Request) Response {
	resp := r.Response
	if r.Respond != nil {
		resp = r.Respond(req)
	}
	if resp.StatusCode == 0 {
		resp.StatusCode = http.StatusOK
	}
	return resp
}

// Hit records one intercepted and delivered call.
type Hit struct {
	ID          string
	Alias       string
	Method      string
	Path        string
	Param       string
	StatusCode  int
	RequestBody []byte
	At          time.Time
}

// UnmatchedRequestError is reported when no rule matches an outbound call.
type UnmatchedRequestError struct {
	Method string
	Path   string
}

func (e *UnmatchedRequestError) Error() string {
	return fmt.Sprintf("unmatched request: %s %s", e.Method, e.Path)
}

// Is lets errors.Is match ErrUnmatchedRequest.
func (e *UnmatchedRequestError) Is(target error) bool {
	return target == ErrUnmatchedRequest
}

// ResponseEncodeError is reported when a matched rule's body cannot be
// written to the wire.
type ResponseEncodeError struct {
	Method string
	Path   string
	Rule   string
	Err    error
}

func (e *ResponseEncodeError) Error() string {
	return fmt.Sprintf("encode response for %s %s (rule %s): %v", e.Method, e.Path, e.Rule, e.Err)
}

func (e *ResponseEncodeError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrResponseEncode.
func (e *ResponseEncodeError) Is(target error) bool {
	return target == ErrResponseEncode
}

// TimeoutError is returned when an awaited alias never fired in time.
type TimeoutError struct {
	Alias string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for @%s", e.After, e.Alias)
}

// Is lets errors.Is match ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// IsValidMethod reports whether m is an accepted verb.
func IsValidMethod(m string) bool {
	for _, v := range ValidMethods {
		if v == m {
			return true
		}
	}
	return false
}

// NormalizePath strips the query and fragment and trailing slashes.
func NormalizePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return "/" + strings.Join(splitPath(path), "/")
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func dynamicName(seg string) (string, bool) {
	if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
		return seg[1 : len(seg)-1], true
	}
	if strings.HasPrefix(seg, ":") {
		return seg[1:], true
	}
	return "", false
}
