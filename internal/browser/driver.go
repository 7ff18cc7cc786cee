package browser

import (
	"context"
	"time"

	"github.com/webpilot-ai/webpilot/internal/types"
)

// Element is a located page element as reported by the driver.
type Element struct {
	Selector   string            `json:"selector"`
	Tag        string            `json:"tag"`
	Text       string            `json:"text,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Clickable  bool              `json:"clickable"`
	Visible    bool              `json:"visible"`
}

// PageContent is the driver's snapshot of the current page.
type PageContent struct {
	URL      string         `json:"url"`
	Title    string         `json:"title"`
	Text     string         `json:"text,omitempty"`
	HTML     string         `json:"html,omitempty"`
	Elements []Element      `json:"elements,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Driver is the browser-automation surface the engine drives. All calls are
// synchronous-suspending and may fail; every failure is treated uniformly
// through the error handler.
type Driver interface {
	// Navigate loads the given URL.
	Navigate(ctx context.Context, url string) error

	// FindElement locates an element by selector, waiting up to timeout.
	FindElement(ctx context.Context, selector string, timeout time.Duration) (*Element, error)

	// Click clicks a located element.
	Click(ctx context.Context, el *Element) error

	// Type enters text into a located element.
	Type(ctx context.Context, el *Element, text string) error

	// ScrollTo scrolls a located element into view.
	ScrollTo(ctx context.Context, el *Element) error

	// PageContent returns a snapshot of the current page.
	PageContent(ctx context.Context) (*PageContent, error)

	// Screenshot captures the current viewport.
	Screenshot(ctx context.Context) ([]byte, error)

	// Health reports driver connectivity.
	Health(ctx context.Context) types.HealthStatus
}
