// Package browser drives a real browser against the application and routes
// its backend calls through an interception engine.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"yogastudio/internal/adapters/interceptor"
	"yogastudio/internal/domain/identity"
	domain "yogastudio/internal/domain/intercept"
)

// Driver names.
const (
	Playwright = "playwright"
	Chromedp   = "chromedp"
)

// DefaultActionTimeout bounds a single page action.
const DefaultActionTimeout = 10 * time.Second

var ErrUnknownDriver = errors.New("unknown browser driver")

// Page is one browser tab whose backend calls are answered by an engine.
// It doubles as the client storage holding the session identity.
type Page interface {
	Goto(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	ClickText(ctx context.Context, text string) error
	// WaitText waits until text is visible, or absent when visible is false.
	WaitText(ctx context.Context, text string, visible bool, timeout time.Duration) error
	URL(ctx context.Context) (string, error)

	SeedOnBoot(ctx context.Context, id identity.Identity) error
	Clear(ctx context.Context) error
	Load(ctx context.Context) (identity.Identity, bool, error)

	Close() error
}

// Driver launches pages.
type Driver interface {
	NewPage(engine *interceptor.Engine) (Page, error)
	Close() error
}

// Options configures a Driver.
type Options struct {
	Headless  bool
	APIPrefix string // calls under this path prefix go to the engine
}

// Launch starts the named driver.
// PRE: name is Playwright or Chromedp and the browser binaries are installed
func Launch(name string, opts Options) (Driver, error) {
	if opts.APIPrefix == "" {
		opts.APIPrefix = "/api"
	}
	switch name {
	case Playwright:
		return LaunchPlaywright(opts)
	case Chromedp:
		return LaunchChromedp(opts)
	default:
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownDriver)
	}
}

// seedScript returns an init script that writes the identity the first time
// a document loads in this tab and never again, so a later logout sticks.
func seedScript(id identity.Identity) (string, error) {
	raw, err := id.Encode()
	if err != nil {
		return "", err
	}
	key, _ := json.Marshal(identity.StorageKey)
	value, _ := json.Marshal(raw)
	guard, _ := json.Marshal("__harness_seeded:" + id.Token)
	return fmt.Sprintf(`(() => {
  try {
    if (window.sessionStorage.getItem(%[3]s)) return;
    window.sessionStorage.setItem(%[3]s, "1");
    window.localStorage.setItem(%[1]s, %[2]s);
  } catch (e) {}
})();`, key, value, guard), nil
}

func clearScript() string {
	key, _ := json.Marshal(identity.StorageKey)
	return fmt.Sprintf(`() => window.localStorage.removeItem(%s)`, key)
}

func readScript() string {
	key, _ := json.Marshal(identity.StorageKey)
	return fmt.Sprintf(`() => window.localStorage.getItem(%s)`, key)
}

// decodeStored turns a storage read result into an identity.
func decodeStored(v any) (identity.Identity, bool, error) {
	raw, ok := v.(string)
	if !ok || raw == "" {
		return identity.Identity{}, false, nil
	}
	id, err := identity.Decode(raw)
	if err != nil {
		return identity.Identity{}, false, fmt.Errorf("stored identity is not valid JSON: %w", err)
	}
	return id, true, nil
}

// toRequest converts a browser request into the engine's view.
func toRequest(method, rawURL string, headers map[string]string, body []byte) domain.Request {
	req := domain.Request{Method: strings.ToUpper(method), Path: rawURL, Body: body, Header: map[string]string{}}
	if u, err := url.Parse(rawURL); err == nil {
		req.Path = u.Path
		req.Query = u.Query()
	}
	for k, v := range headers {
		req.Header[strings.ToLower(k)] = v
	}
	return req
}

// answer is the response a driver sends back to the browser.
type answer struct {
	status      int
	body        []byte
	contentType string
	headers     map[string]string
	exchange    *interceptor.Exchange // nil for unmatched calls
}

// resolve runs req through engine. Failed calls get the same status and body
// the HTTP adapter sends.
func resolve(engine *interceptor.Engine, req domain.Request) answer {
	x, err := engine.Intercept(req)
	if err != nil {
		body, _ := json.Marshal(map[string]string{"error": err.Error()})
		return answer{status: interceptor.FailureStatus(err), body: body, contentType: "application/json"}
	}
	return answer{
		status:      x.Response.StatusCode,
		body:        x.Body(),
		contentType: x.ContentType(),
		headers:     x.Response.Headers,
		exchange:    x,
	}
}

// delivered reports the response as handed to the application.
func (a answer) delivered() {
	if a.exchange != nil {
		a.exchange.Delivered()
	}
}
