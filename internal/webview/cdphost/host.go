// Package cdphost implements webview.Host on top of a Chromium instance
// driven over the DevTools protocol. Every view is an isolated CDP browser
// context with one window-mode target; the report binding is registered
// before the first navigation so bundles can always reach the bridge.
package cdphost

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/chatdock/chatdock/internal/bridge"
	"github.com/chatdock/chatdock/internal/webview"
)

// Config controls the Chromium instance hosting all views.
type Config struct {
	Headless bool
	ExecPath string
	// DataDir is the user-data directory; per-proxy profile isolation is the
	// caller's business (see the proxy package's ProfileDirFor).
	DataDir      string
	WindowWidth  int64
	WindowHeight int64
}

const disposeTimeout = 5 * time.Second

// Host boots and owns one Chromium process and creates views inside it.
type Host struct {
	cfg      Config
	logger   *zap.Logger
	reporter func(payload string)
	// initScript is installed into every view before its first navigation.
	initScript string

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	started       bool
}

// New builds a Host. reporter receives every report-binding payload; wire it
// to the bridge's HandleReport. initScript may be empty.
func New(cfg Config, reporter func(payload string), initScript string, logger *zap.Logger) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WindowWidth <= 0 {
		cfg.WindowWidth = 480
	}
	if cfg.WindowHeight <= 0 {
		cfg.WindowHeight = 720
	}
	return &Host{
		cfg:        cfg,
		logger:     logger.Named("cdphost"),
		reporter:   reporter,
		initScript: initScript,
	}
}

// Start boots Chromium. Idempotent; later calls are no-ops.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return nil
	}

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.WindowSize(int(h.cfg.WindowWidth), int(h.cfg.WindowHeight)),
	}
	if h.cfg.DataDir != "" {
		opts = append(opts, chromedp.UserDataDir(h.cfg.DataDir))
	}
	if h.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(h.cfg.ExecPath))
	}
	if h.cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Run with no actions boots the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("failed to boot chromium: %w", err)
	}

	h.allocCancel = allocCancel
	h.browserCtx = browserCtx
	h.browserCancel = browserCancel
	h.started = true
	h.logger.Info("Chromium booted.",
		zap.Bool("headless", h.cfg.Headless), zap.String("dataDir", h.cfg.DataDir))
	return nil
}

// Stop tears the browser down. Views become unusable.
func (h *Host) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return
	}
	h.browserCancel()
	h.allocCancel()
	h.started = false
	h.logger.Info("Chromium stopped.")
}

// CreateView builds one isolated browsing context and window-mode target,
// registers the report binding and init script, then navigates.
func (h *Host) CreateView(ctx context.Context, opts webview.ViewOptions) (webview.View, error) {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return nil, fmt.Errorf("cdphost is not started")
	}
	browserCtx := h.browserCtx
	h.mu.Unlock()

	var browserContextID cdp.BrowserContextID
	var targetID target.ID
	err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(c context.Context) error {
		params := target.CreateBrowserContext()
		if opts.ProxyURL != "" {
			params = params.WithProxyServer(opts.ProxyURL)
		}
		var err error
		browserContextID, err = params.Do(c)
		if err != nil {
			return fmt.Errorf("failed to create browser context: %w", err)
		}
		targetID, err = target.CreateTarget("about:blank").
			WithBrowserContextID(browserContextID).
			WithNewWindow(true).
			Do(c)
		if err != nil {
			h.disposeBrowserContext(browserContextID)
			return fmt.Errorf("failed to create target: %w", err)
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}

	viewCtx, viewCancel := chromedp.NewContext(browserCtx, chromedp.WithTargetID(targetID))

	reporter := h.reporter
	log := h.logger.With(zap.String("view", opts.ID))
	chromedp.ListenTarget(viewCtx, func(ev interface{}) {
		if binding, ok := ev.(*runtime.EventBindingCalled); ok && binding.Name == bridge.BindingName {
			if reporter != nil {
				// Listener callbacks must not block the CDP event loop.
				go reporter(binding.Payload)
			}
		}
	})

	v := &view{
		id:               opts.ID,
		ctx:              viewCtx,
		cancel:           viewCancel,
		targetID:         targetID,
		browserContextID: browserContextID,
		host:             h,
		logger:           log,
	}

	err = chromedp.Run(viewCtx,
		chromedp.ActionFunc(func(c context.Context) error {
			if err := runtime.AddBinding(bridge.BindingName).Do(c); err != nil {
				return fmt.Errorf("failed to register report binding: %w", err)
			}
			if h.initScript != "" {
				if _, err := page.AddScriptToEvaluateOnNewDocument(h.initScript).Do(c); err != nil {
					return fmt.Errorf("failed to install init script: %w", err)
				}
			}
			return nil
		}),
		chromedp.Navigate(opts.URL),
	)
	if err != nil {
		v.Close(context.Background())
		return nil, fmt.Errorf("failed to prepare view %s: %w", opts.ID, err)
	}

	if err := v.SetBounds(ctx, opts.Bounds); err != nil {
		log.Warn("Failed to apply initial bounds.", zap.Error(err))
	}

	log.Info("View created.", zap.String("url", opts.URL), zap.String("targetId", string(targetID)))
	return v, nil
}

// disposeBrowserContext is the best-effort cleanup for a context whose
// target never came up or whose view is closing.
func (h *Host) disposeBrowserContext(id cdp.BrowserContextID) {
	h.mu.Lock()
	browserCtx := h.browserCtx
	started := h.started
	h.mu.Unlock()
	if !started {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(browserCtx, disposeTimeout)
	defer cancel()
	err := chromedp.Run(cleanupCtx, chromedp.ActionFunc(func(c context.Context) error {
		return target.DisposeBrowserContext(id).Do(c)
	}))
	if err != nil {
		h.logger.Debug("Failed to dispose browser context.",
			zap.String("browserContextId", string(id)), zap.Error(err))
	}
}
