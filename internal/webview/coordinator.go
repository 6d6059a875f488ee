package webview

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chatdock/chatdock/api/schemas"
)

// DefaultSettleDelay is the pause between hiding the last embedded context
// and hiding the host window, in place of a hard acknowledgment channel.
const DefaultSettleDelay = 100 * time.Millisecond

// Coordinator synchronizes embedded-context visibility with host-window
// transitions. The load-bearing rule is ordering: on a hide intent every
// visible context is hidden first and only then may the host window hide,
// because an always-on-top context would otherwise stay visibly stranded
// over a hidden host. Restore runs the inverse order and re-shows exactly
// the contexts that were visible before the last hide; a context the user
// hid deliberately stays hidden.
type Coordinator struct {
	manager *Manager
	window  HostWindow
	settle  time.Duration
	logger  *zap.Logger

	mu          sync.Mutex
	hostHidden  bool
	lastVisible []string
}

// NewCoordinator builds a Coordinator. settle <= 0 picks DefaultSettleDelay.
func NewCoordinator(manager *Manager, window HostWindow, settle time.Duration, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	return &Coordinator{
		manager: manager,
		window:  window,
		settle:  settle,
		logger:  logger.Named("visibility"),
	}
}

// HandleFocusGained records that the host window gained focus.
func (c *Coordinator) HandleFocusGained(ctx context.Context) {
	c.logger.Debug("Host window focus gained.")
}

// HandleFocusLost records that the host window lost focus. Losing focus does
// not hide anything; only an explicit hide intent or minimize does.
func (c *Coordinator) HandleFocusLost(ctx context.Context) {
	c.logger.Debug("Host window focus lost.")
}

// HandleMinimize runs the two-phase hide for a host minimize.
func (c *Coordinator) HandleMinimize(ctx context.Context) error {
	return c.hideAll(ctx, "minimize")
}

// HandleHideIntent runs the two-phase hide for an explicit about-to-hide
// signal (tray hide, close-to-tray).
func (c *Coordinator) HandleHideIntent(ctx context.Context) error {
	return c.hideAll(ctx, "hide-intent")
}

// hideAll is the two-phase hide. Phase 1 hides every currently visible
// context and waits for all of them; after the settle delay, phase 2 hides
// the host window. Repeated hide signals while already hidden are no-ops.
func (c *Coordinator) hideAll(ctx context.Context, reason string) error {
	c.mu.Lock()
	if c.hostHidden {
		c.mu.Unlock()
		c.logger.Debug("Host already hidden; ignoring hide signal.", zap.String("reason", reason))
		return nil
	}
	c.mu.Unlock()

	visible := c.manager.VisibleIDs()
	sort.Strings(visible)
	c.logger.Info("Hiding embedded contexts before the host window.",
		zap.String("reason", reason), zap.Strings("contexts", visible))

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range visible {
		id := id
		g.Go(func() error {
			if err := c.manager.Hide(gctx, id); err != nil {
				return fmt.Errorf("context %s: %w", id, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("phase 1 of hide failed: %w", err)
	}

	// No acknowledgment channel exists for the compositor; a short settle
	// keeps the host visible until the contexts are actually gone.
	select {
	case <-time.After(c.settle):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := c.window.Hide(ctx); err != nil {
		return fmt.Errorf("failed to hide host window: %w", err)
	}

	c.mu.Lock()
	c.hostHidden = true
	c.lastVisible = visible
	c.mu.Unlock()
	return nil
}

// HandleRestore re-shows the host window first, then every context that was
// visible before the last hide. With no prior hide it only shows the host.
func (c *Coordinator) HandleRestore(ctx context.Context) error {
	if err := c.window.Show(ctx); err != nil {
		return fmt.Errorf("failed to show host window: %w", err)
	}
	if err := c.window.Focus(ctx); err != nil {
		return fmt.Errorf("failed to focus host window: %w", err)
	}

	c.mu.Lock()
	toRestore := append([]string(nil), c.lastVisible...)
	c.hostHidden = false
	c.lastVisible = nil
	c.mu.Unlock()

	var firstErr error
	for _, id := range toRestore {
		if err := c.manager.Show(ctx, id); err != nil {
			c.logger.Warn("Failed to restore context visibility.",
				zap.String("id", id), zap.Error(err))
			if firstErr == nil {
				// A context may have been closed while the host was hidden.
				var execErr *schemas.ExecutionError
				if !errors.As(err, &execErr) || execErr.Kind != schemas.ErrContextNotReady {
					firstErr = err
				}
			}
		}
	}
	if toRestore != nil {
		c.logger.Info("Restored embedded contexts.", zap.Strings("contexts", toRestore))
	}
	return firstErr
}
