// Package webview owns the lifecycle and visibility of embedded browsing
// contexts: creation, bounds, show/hide, destruction, and the two-phase
// protocol that keeps always-on-top contexts from being stranded over a
// hidden host window. The chromedp-backed implementation of the Host and
// View interfaces lives in the cdphost subpackage; tests use fakes.
package webview

import (
	"context"

	"github.com/chatdock/chatdock/api/schemas"
)

// View is one live embedded browsing context surface. All methods take the
// caller's context; implementations must not block past it.
type View interface {
	// Eval dispatches a script into the page, fire-and-forget. The result, if
	// any, arrives out-of-band through the report binding.
	Eval(ctx context.Context, script string) error
	Navigate(ctx context.Context, url string) error
	SetBounds(ctx context.Context, bounds schemas.Bounds) error
	Show(ctx context.Context) error
	Hide(ctx context.Context) error
	Focus(ctx context.Context) error
	// Close releases the underlying browsing context. The view is unusable
	// afterwards.
	Close(ctx context.Context) error
}

// ViewOptions parameterize view creation.
type ViewOptions struct {
	ID     string
	URL    string
	Bounds schemas.Bounds
	// ProxyURL routes this view's traffic through an upstream proxy. Views
	// with different proxies never share a browsing context.
	ProxyURL string
}

// Host creates views. The production implementation boots and owns a
// Chromium instance.
type Host interface {
	CreateView(ctx context.Context, opts ViewOptions) (View, error)
}

// HostWindow is the top-level application window that owns and positions the
// embedded contexts. The visibility coordinator is its only consumer.
type HostWindow interface {
	Show(ctx context.Context) error
	Hide(ctx context.Context) error
	Focus(ctx context.Context) error
}
