package cdphost

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/chatdock/chatdock/api/schemas"
)

// view is the webview.View for one CDP target living in its own browser
// context. All window operations go through the target's native window.
type view struct {
	id               string
	ctx              context.Context
	cancel           context.CancelFunc
	targetID         target.ID
	browserContextID cdp.BrowserContextID
	host             *Host
	logger           *zap.Logger
}

// run executes actions on the view's CDP session, bounded by the caller's
// deadline.
func (v *view) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(v.ctx)
	defer cancel()
	if ctx != nil {
		stop := context.AfterFunc(ctx, cancel)
		defer stop()
	}
	return chromedp.Run(runCtx, actions...)
}

// Eval dispatches script fire-and-forget. Bundles report through the
// binding, never through the evaluation return value, so nothing is
// awaited here.
func (v *view) Eval(ctx context.Context, script string) error {
	if err := v.run(ctx, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("failed to evaluate script in view %s: %w", v.id, err)
	}
	return nil
}

func (v *view) Navigate(ctx context.Context, url string) error {
	if err := v.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate view %s: %w", v.id, err)
	}
	return nil
}

func (v *view) SetBounds(ctx context.Context, b schemas.Bounds) error {
	return v.setWindowBounds(ctx, &browser.Bounds{
		Left:   b.X,
		Top:    b.Y,
		Width:  b.Width,
		Height: b.Height,
	})
}

func (v *view) Show(ctx context.Context) error {
	if err := v.setWindowBounds(ctx, &browser.Bounds{WindowState: browser.WindowStateNormal}); err != nil {
		return err
	}
	return v.Focus(ctx)
}

func (v *view) Hide(ctx context.Context) error {
	return v.setWindowBounds(ctx, &browser.Bounds{WindowState: browser.WindowStateMinimized})
}

func (v *view) Focus(ctx context.Context) error {
	err := v.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return target.ActivateTarget(v.targetID).Do(c)
	}))
	if err != nil {
		return fmt.Errorf("failed to focus view %s: %w", v.id, err)
	}
	return nil
}

// Close disposes the whole browser context, which tears down the target and
// its session storage, then releases the attached session.
func (v *view) Close(ctx context.Context) error {
	v.host.disposeBrowserContext(v.browserContextID)
	v.cancel()
	v.logger.Info("View closed.")
	return nil
}

func (v *view) setWindowBounds(ctx context.Context, bounds *browser.Bounds) error {
	err := v.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		windowID, _, err := browser.GetWindowForTarget().Do(c)
		if err != nil {
			return err
		}
		// A minimized window rejects geometry changes, so restore first when
		// applying explicit bounds.
		if bounds.WindowState == "" {
			restore := &browser.Bounds{WindowState: browser.WindowStateNormal}
			if err := browser.SetWindowBounds(windowID, restore).Do(c); err != nil {
				return err
			}
		}
		return browser.SetWindowBounds(windowID, bounds).Do(c)
	}))
	if err != nil {
		return fmt.Errorf("failed to set window bounds for view %s: %w", v.id, err)
	}
	return nil
}
