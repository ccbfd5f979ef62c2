package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"yogastudio/internal/adapters/interceptor"
	"yogastudio/internal/domain/identity"
)

// ChromedpDriver runs Chrome over the DevTools protocol.
type ChromedpDriver struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	pattern     string
}

// LaunchChromedp prepares an exec allocator. Chrome starts with the first page.
// PRE: a Chrome or Chromium binary is on PATH
func LaunchChromedp(opts Options) (*ChromedpDriver, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", opts.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	return &ChromedpDriver{
		allocCtx:    allocCtx,
		cancelAlloc: cancel,
		pattern:     "*" + strings.TrimRight(opts.APIPrefix, "/") + "/*",
	}, nil
}

// NewPage opens a tab and pauses every API call so the engine can answer it.
// Each page gets its own browser context, so storage is not shared.
func (d *ChromedpDriver) NewPage(engine *interceptor.Engine) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(d.allocCtx, chromedp.WithNewBrowserContext())
	p := &ChromedpPage{tabCtx: tabCtx, cancel: cancel}

	chromedp.ListenTarget(tabCtx, func(ev any) {
		if e, ok := ev.(*fetch.EventRequestPaused); ok {
			// The listener must not block; fulfilling is a round-trip.
			go p.fulfill(engine, e)
		}
	})
	err := chromedp.Run(tabCtx, fetch.Enable().WithPatterns([]*fetch.RequestPattern{
		{URLPattern: d.pattern, RequestStage: fetch.RequestStageRequest},
	}))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to enable request interception: %w", err)
	}
	return p, nil
}

// Close shuts Chrome down.
func (d *ChromedpDriver) Close() error {
	d.cancelAlloc()
	return nil
}

// ChromedpPage is a Page backed by chromedp.
type ChromedpPage struct {
	tabCtx context.Context
	cancel context.CancelFunc
}

func (p *ChromedpPage) fulfill(engine *interceptor.Engine, e *fetch.EventRequestPaused) {
	ans := resolve(engine, toRequest(e.Request.Method, e.Request.URL, flattenCDPHeaders(e.Request.Headers), postData(e.Request)))

	headers := make([]*fetch.HeaderEntry, 0, len(ans.headers)+1)
	if ans.contentType != "" {
		headers = append(headers, &fetch.HeaderEntry{Name: "Content-Type", Value: ans.contentType})
	}
	for k, v := range ans.headers {
		if strings.EqualFold(k, "Content-Type") {
			continue
		}
		headers = append(headers, &fetch.HeaderEntry{Name: k, Value: v})
	}

	c := chromedp.FromContext(p.tabCtx)
	if c == nil || c.Target == nil {
		return
	}
	err := fetch.FulfillRequest(e.RequestID, int64(ans.status)).
		WithResponseHeaders(headers).
		WithBody(base64.StdEncoding.EncodeToString(ans.body)).
		Do(cdp.WithExecutor(p.tabCtx, c.Target))
	if err != nil {
		slog.Warn("browser_event", "event", "fulfill_failed", "driver", Chromedp, "url", e.Request.URL, "error", err.Error())
		return
	}
	ans.delivered()
}

// run executes actions on the tab, bounded by timeout and ctx.
func (p *ChromedpPage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *ChromedpPage) Goto(ctx context.Context, url string) error {
	return p.run(ctx, DefaultActionTimeout, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (p *ChromedpPage) Fill(ctx context.Context, selector, value string) error {
	return p.run(ctx, DefaultActionTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (p *ChromedpPage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, DefaultActionTimeout, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (p *ChromedpPage) ClickText(ctx context.Context, text string) error {
	return p.run(ctx, DefaultActionTimeout, chromedp.Click(textXPath(text), chromedp.BySearch, chromedp.NodeVisible))
}

func (p *ChromedpPage) WaitText(ctx context.Context, text string, visible bool, timeout time.Duration) error {
	if visible {
		return p.run(ctx, timeout, chromedp.WaitVisible(textXPath(text), chromedp.BySearch))
	}
	return p.run(ctx, timeout, chromedp.WaitNotPresent(textXPath(text), chromedp.BySearch))
}

func (p *ChromedpPage) URL(ctx context.Context) (string, error) {
	var loc string
	err := p.run(ctx, DefaultActionTimeout, chromedp.Location(&loc))
	return loc, err
}

// SeedOnBoot registers the identity script for every new document in the tab.
func (p *ChromedpPage) SeedOnBoot(ctx context.Context, id identity.Identity) error {
	script, err := seedScript(id)
	if err != nil {
		return err
	}
	return p.run(ctx, DefaultActionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		return err
	}))
}

func (p *ChromedpPage) Clear(ctx context.Context) error {
	return p.run(ctx, DefaultActionTimeout, chromedp.Evaluate("("+clearScript()+")()", nil))
}

func (p *ChromedpPage) Load(ctx context.Context) (identity.Identity, bool, error) {
	var v any
	if err := p.run(ctx, DefaultActionTimeout, chromedp.Evaluate("("+readScript()+")()", &v)); err != nil {
		return identity.Identity{}, false, err
	}
	return decodeStored(v)
}

// Close closes the tab.
func (p *ChromedpPage) Close() error {
	p.cancel()
	return nil
}

func postData(r *network.Request) []byte {
	if r == nil || !r.HasPostData {
		return nil
	}
	var out []byte
	for _, entry := range r.PostDataEntries {
		chunk, err := base64.StdEncoding.DecodeString(entry.Bytes)
		if err != nil {
			chunk = []byte(entry.Bytes)
		}
		out = append(out, chunk...)
	}
	return out
}

func flattenCDPHeaders(h network.Headers) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// textXPath matches the innermost element whose text contains text.
// XPath contains() is case-sensitive.
func textXPath(text string) string {
	lit := xpathLiteral(text)
	return fmt.Sprintf("//*[contains(normalize-space(.), %s) and not(.//*[contains(normalize-space(.), %s)])]", lit, lit)
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, part := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		quoted = append(quoted, `"`+part+`"`)
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
