package browser

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"yogastudio/internal/adapters/interceptor"
	"yogastudio/internal/domain/identity"
)

// PlaywrightDriver runs Chromium through playwright-go.
type PlaywrightDriver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	glob    string
}

// LaunchPlaywright starts Playwright and a Chromium instance.
// PRE: playwright browsers are installed
// POST: Returns a driver; Close releases both
func LaunchPlaywright(opts Options) (*PlaywrightDriver, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start Playwright: %w", err)
	}
	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return &PlaywrightDriver{
		pw:      pw,
		browser: b,
		glob:    "**" + strings.TrimRight(opts.APIPrefix, "/") + "/**",
	}, nil
}

// NewPage opens a tab in a fresh browser context, so storage is not shared
// between pages, and routes API calls to engine.
func (d *PlaywrightDriver) NewPage(engine *interceptor.Engine) (Page, error) {
	bctx, err := d.browser.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	if err := bctx.Route(d.glob, func(route playwright.Route) { fulfillPlaywright(engine, route) }); err != nil {
		bctx.Close()
		return nil, fmt.Errorf("failed to route %s: %w", d.glob, err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return &PlaywrightPage{bctx: bctx, page: page}, nil
}

// Close stops the browser and Playwright.
func (d *PlaywrightDriver) Close() error {
	if err := d.browser.Close(); err != nil {
		slog.Warn("browser_event", "event", "close_failed", "driver", Playwright, "error", err.Error())
	}
	return d.pw.Stop()
}

func fulfillPlaywright(engine *interceptor.Engine, route playwright.Route) {
	r := route.Request()
	body, _ := r.PostDataBuffer()
	ans := resolve(engine, toRequest(r.Method(), r.URL(), r.Headers(), body))

	opts := playwright.RouteFulfillOptions{
		Status:  playwright.Int(ans.status),
		Body:    ans.body,
		Headers: ans.headers,
	}
	if ans.contentType != "" {
		opts.ContentType = playwright.String(ans.contentType)
	}
	if err := route.Fulfill(opts); err != nil {
		slog.Warn("browser_event", "event", "fulfill_failed", "driver", Playwright, "url", r.URL(), "error", err.Error())
		return
	}
	ans.delivered()
}

// PlaywrightPage is a Page backed by playwright-go.
type PlaywrightPage struct {
	bctx playwright.BrowserContext
	page playwright.Page
}

// Raw exposes the underlying page for assertions the Page interface lacks.
func (p *PlaywrightPage) Raw() playwright.Page {
	return p.page
}

func (p *PlaywrightPage) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{Timeout: timeoutMs(ctx, DefaultActionTimeout)})
	return err
}

func (p *PlaywrightPage) Fill(ctx context.Context, selector, value string) error {
	return p.page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{Timeout: timeoutMs(ctx, DefaultActionTimeout)})
}

func (p *PlaywrightPage) Click(ctx context.Context, selector string) error {
	return p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{Timeout: timeoutMs(ctx, DefaultActionTimeout)})
}

// textPattern matches elements whose text contains text, case-sensitively,
// the same rule textXPath applies for chromedp. A bare string would make
// Playwright ignore case, so "Participate" would also find "Do not participate".
func textPattern(text string) *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(text))
}

func (p *PlaywrightPage) ClickText(ctx context.Context, text string) error {
	return p.page.GetByText(textPattern(text)).First().Click(playwright.LocatorClickOptions{Timeout: timeoutMs(ctx, DefaultActionTimeout)})
}

func (p *PlaywrightPage) WaitText(ctx context.Context, text string, visible bool, timeout time.Duration) error {
	state := playwright.WaitForSelectorStateVisible
	if !visible {
		state = playwright.WaitForSelectorStateDetached
	}
	return p.page.GetByText(textPattern(text)).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   state,
		Timeout: timeoutMs(ctx, timeout),
	})
}

func (p *PlaywrightPage) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.URL(), nil
}

// SeedOnBoot installs the identity as an init script on this tab.
func (p *PlaywrightPage) SeedOnBoot(_ context.Context, id identity.Identity) error {
	script, err := seedScript(id)
	if err != nil {
		return err
	}
	return p.page.AddInitScript(playwright.Script{Content: playwright.String(script)})
}

func (p *PlaywrightPage) Clear(_ context.Context) error {
	_, err := p.page.Evaluate(clearScript())
	return err
}

func (p *PlaywrightPage) Load(_ context.Context) (identity.Identity, bool, error) {
	v, err := p.page.Evaluate(readScript())
	if err != nil {
		return identity.Identity{}, false, err
	}
	return decodeStored(v)
}

// Close closes the tab and its browser context.
func (p *PlaywrightPage) Close() error {
	return p.bctx.Close()
}

// timeoutMs converts the tighter of d and ctx's deadline to Playwright's
// millisecond timeout.
func timeoutMs(ctx context.Context, d time.Duration) *float64 {
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < d {
			d = left
		}
	}
	if d <= 0 {
		d = time.Millisecond
	}
	return playwright.Float(float64(d.Milliseconds()))
}
