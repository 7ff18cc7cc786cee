package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/webpilot-ai/webpilot/internal/types"
)

// ScriptedDriver is an in-memory Driver for offline operation and tests.
// Pages are registered up front; failures can be injected per selector to
// exercise recovery paths.
type ScriptedDriver struct {
	mu         sync.Mutex
	pages      map[string]*PageContent
	currentURL string
	history    []string

	// failures maps a selector to the number of remaining times FindElement
	// should fail for it. A negative count fails forever.
	failures map[string]int

	// Calls records every driver invocation in order, for assertions.
	Calls []string
}

// NewScriptedDriver creates an empty scripted driver.
func NewScriptedDriver() *ScriptedDriver {
	return &ScriptedDriver{
		pages:    make(map[string]*PageContent),
		failures: make(map[string]int),
	}
}

// AddPage registers a page snapshot served when the driver navigates to url.
func (d *ScriptedDriver) AddPage(url string, page *PageContent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	page.URL = url
	d.pages[url] = page
	if d.currentURL == "" {
		d.currentURL = url
	}
}

// FailSelector injects count FindElement failures for the given selector.
// A negative count fails forever.
func (d *ScriptedDriver) FailSelector(selector string, count int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[selector] = count
}

func (d *ScriptedDriver) record(call string) {
	d.Calls = append(d.Calls, call)
}

// Navigate implements Driver.
func (d *ScriptedDriver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("navigate:" + url)
	if _, ok := d.pages[url]; !ok {
		return types.NewRetryableError(types.BROWSER_NAVIGATION_FAILED,
			fmt.Sprintf("no route to %s", url))
	}
	d.history = append(d.history, d.currentURL)
	d.currentURL = url
	return nil
}

// FindElement implements Driver.
func (d *ScriptedDriver) FindElement(ctx context.Context, selector string, timeout time.Duration) (*Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("find:" + selector)
	if remaining, ok := d.failures[selector]; ok && remaining != 0 {
		if remaining > 0 {
			d.failures[selector] = remaining - 1
		}
		return nil, types.NewRetryableError(types.BROWSER_ELEMENT_NOT_FOUND,
			fmt.Sprintf("element not found: %s", selector))
	}
	page, ok := d.pages[d.currentURL]
	if !ok {
		return nil, types.NewError(types.BROWSER_DRIVER_FAULT, "no current page")
	}
	for i := range page.Elements {
		if page.Elements[i].Selector == selector {
			return &page.Elements[i], nil
		}
	}
	// Loose matching lets alternative selectors resolve against the same
	// element set.
	base := strings.Trim(selector, "*[]=\"'")
	for i := range page.Elements {
		if base != "" && strings.Contains(page.Elements[i].Selector, base) {
			return &page.Elements[i], nil
		}
	}
	return nil, types.NewRetryableError(types.BROWSER_ELEMENT_NOT_FOUND,
		fmt.Sprintf("element not found: %s", selector))
}

// Click implements Driver.
func (d *ScriptedDriver) Click(ctx context.Context, el *Element) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("click:" + el.Selector)
	if !el.Clickable {
		return types.NewRetryableError(types.BROWSER_NOT_INTERACTABLE,
			fmt.Sprintf("element not interactable: %s", el.Selector))
	}
	return nil
}

// Type implements Driver.
func (d *ScriptedDriver) Type(ctx context.Context, el *Element, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record(fmt.Sprintf("type:%s:%s", el.Selector, text))
	return nil
}

// ScrollTo implements Driver.
func (d *ScriptedDriver) ScrollTo(ctx context.Context, el *Element) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("scroll:" + el.Selector)
	return nil
}

// PageContent implements Driver.
func (d *ScriptedDriver) PageContent(ctx context.Context) (*PageContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("page")
	page, ok := d.pages[d.currentURL]
	if !ok {
		return &PageContent{URL: d.currentURL}, nil
	}
	return page, nil
}

// Screenshot implements Driver.
func (d *ScriptedDriver) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("screenshot")
	return []byte("png:" + d.currentURL), nil
}

// Health implements Driver.
func (d *ScriptedDriver) Health(ctx context.Context) types.HealthStatus {
	return types.NewHealthStatus(types.HealthStateHealthy, "scripted")
}

// CurrentURL returns the URL of the current page.
func (d *ScriptedDriver) CurrentURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentURL
}

var _ Driver = (*ScriptedDriver)(nil)
