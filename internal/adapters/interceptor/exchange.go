package interceptor

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	domain "yogastudio/internal/domain/intercept"
)

// Exchange is a matched call whose response has not yet reached the application.
type Exchange struct {
	Request  domain.Request
	Response domain.Response

	body        []byte
	contentType string
	alias       string
	engine      *Engine
	once        sync.Once
}

// Body returns the encoded response body.
func (x *Exchange) Body() []byte {
	return x.body
}

// ContentType returns the Content-Type to send with Body.
func (x *Exchange) ContentType() string {
	if ct, ok := x.Response.Headers["Content-Type"]; ok {
		return ct
	}
	return x.contentType
}

// Alias returns the alias of the rule that matched.
func (x *Exchange) Alias() string {
	return x.alias
}

// Delivered marks the response as handed to the application. Waiters on the
// alias are released only after this call. Safe to call more than once.
func (x *Exchange) Delivered() {
	x.once.Do(func() { x.engine.deliver(x) })
}

// encodeBody turns a canned body into bytes and a content type.
func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return b, "application/octet-stream", nil
	case string:
		return []byte(b), "text/plain; charset=utf-8", nil
	case json.RawMessage:
		return b, "application/json", nil
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return raw, "application/json", nil
	}
}

// ServeHTTP answers r from the registry. Unmatched calls get 501 and a JSON
// error; a matched rule whose body cannot be encoded gets 500.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	x, err := e.Intercept(domain.Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: flattenHeader(r.Header),
		Body:   body,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}

	for k, v := range x.Response.Headers {
		w.Header().Set(k, v)
	}
	if ct := x.ContentType(); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(x.Response.StatusCode)
	if len(x.body) > 0 {
		_, _ = w.Write(x.body)
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	x.Delivered()
}

// Transport returns a RoundTripper that answers every request from the
// registry. Unmatched requests fail with *intercept.UnmatchedRequestError.
func (e *Engine) Transport() http.RoundTripper {
	return roundTripper{engine: e}
}

type roundTripper struct {
	engine *Engine
}

func (rt roundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			return nil, err
		}
	}
	x, err := rt.engine.Intercept(domain.Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: flattenHeader(r.Header),
		Body:   body,
	})
	if err != nil {
		return nil, err
	}

	header := make(http.Header)
	for k, v := range x.Response.Headers {
		header.Set(k, v)
	}
	if ct := x.ContentType(); ct != "" {
		header.Set("Content-Type", ct)
	}
	return &http.Response{
		Status:        http.StatusText(x.Response.StatusCode),
		StatusCode:    x.Response.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          &deliveringBody{Reader: bytes.NewReader(x.body), x: x},
		ContentLength: int64(len(x.body)),
		Request:       r,
	}, nil
}

// deliveringBody reports delivery once the client has drained or closed the body.
type deliveringBody struct {
	*bytes.Reader
	x *Exchange
}

func (b *deliveringBody) Read(p []byte) (int, error) {
	n, err := b.Reader.Read(p)
	if err == io.EOF {
		b.x.Delivered()
	}
	return n, err
}

func (b *deliveringBody) Close() error {
	b.x.Delivered()
	return nil
}

// FailureStatus is the status an adapter answers for an Intercept error:
// 500 for an unencodable body, 501 otherwise.
func FailureStatus(err error) int {
	if errors.Is(err, domain.ErrResponseEncode) {
		return http.StatusInternalServerError
	}
	return http.StatusNotImplemented
}

func writeFailure(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(FailureStatus(err))
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return out
}
