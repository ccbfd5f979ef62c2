package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	identityAdapter "yogastudio/internal/adapters/identity"
	"yogastudio/internal/domain/identity"
)

// ErrPageClosed is returned by actions on a closed page.
var ErrPageClosed = errors.New("page is closed")

// MemoryPage is a browser.Page with no browser behind it. Navigation boots
// an in-memory identity store, and the DOM is a set of visible texts the
// test controls with Show and Hide. Clicks can be wired to application
// behaviour with OnClick.
type MemoryPage struct {
	Store *identityAdapter.MemoryStore

	mu      sync.Mutex
	url     string
	visible map[string]bool
	fields  map[string]string
	clicks  []string
	onClick func(target string)
	closed  bool
}

// NewMemoryPage creates a blank page with an anonymous store.
func NewMemoryPage() *MemoryPage {
	return &MemoryPage{
		Store:   identityAdapter.NewMemoryStore(),
		visible: make(map[string]bool),
		fields:  make(map[string]string),
	}
}

// OnClick sets the hook run after every Click and ClickText.
func (p *MemoryPage) OnClick(fn func(target string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClick = fn
}

// Show makes texts visible.
func (p *MemoryPage) Show(texts ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range texts {
		p.visible[t] = true
	}
}

// Hide removes texts from the page.
func (p *MemoryPage) Hide(texts ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range texts {
		delete(p.visible, t)
	}
}

// SetURL simulates a client-side redirect.
func (p *MemoryPage) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// Field returns the value filled into selector.
func (p *MemoryPage) Field(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fields[selector]
}

// Clicks returns every clicked selector or text, in order.
func (p *MemoryPage) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

func (p *MemoryPage) Goto(ctx context.Context, url string) error {
	if err := p.usable(ctx); err != nil {
		return err
	}
	p.Store.Boot()
	p.SetURL(url)
	return nil
}

func (p *MemoryPage) Fill(ctx context.Context, selector, value string) error {
	if err := p.usable(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fields[selector] = value
	return nil
}

func (p *MemoryPage) Click(ctx context.Context, selector string) error {
	if err := p.usable(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	p.clicks = append(p.clicks, selector)
	hook := p.onClick
	p.mu.Unlock()
	if hook != nil {
		hook(selector)
	}
	return nil
}

func (p *MemoryPage) ClickText(ctx context.Context, text string) error {
	return p.Click(ctx, text)
}

// shows reports whether any visible text contains text, case-sensitively,
// matching how the browser pages look text up.
func (p *MemoryPage) shows(text string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for shown := range p.visible {
		if strings.Contains(shown, text) {
			return true
		}
	}
	return false
}

// WaitText polls the visible set until text reaches the wanted state.
func (p *MemoryPage) WaitText(ctx context.Context, text string, visible bool, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for {
		if p.shows(text) == visible {
			return nil
		}
		select {
		case <-tick.C:
		case <-deadline.C:
			state := "visible"
			if !visible {
				state = "gone"
			}
			return fmt.Errorf("text %q not %s after %s", text, state, timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *MemoryPage) URL(ctx context.Context) (string, error) {
	if err := p.usable(ctx); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *MemoryPage) SeedOnBoot(ctx context.Context, id identity.Identity) error {
	return p.Store.SeedOnBoot(ctx, id)
}

func (p *MemoryPage) Clear(ctx context.Context) error {
	return p.Store.Clear(ctx)
}

func (p *MemoryPage) Load(ctx context.Context) (identity.Identity, bool, error) {
	return p.Store.Load(ctx)
}

func (p *MemoryPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *MemoryPage) usable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPageClosed
	}
	return nil
}
