package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chatdock/chatdock/internal/bridge"
	"github.com/chatdock/chatdock/internal/config"
	"github.com/chatdock/chatdock/internal/history"
	"github.com/chatdock/chatdock/internal/proxy"
	"github.com/chatdock/chatdock/internal/quickask"
	"github.com/chatdock/chatdock/internal/registry"
	"github.com/chatdock/chatdock/internal/script"
	"github.com/chatdock/chatdock/internal/webview"
	"github.com/chatdock/chatdock/internal/webview/cdphost"
)

// engine is the full wiring used by run and ask: registry, compiler, bridge,
// Chromium host, context manager, visibility coordinator and the quick-ask
// service, plus the optional history store.
type engine struct {
	cfg         *config.Config
	logger      *zap.Logger
	registry    *registry.Registry
	bridge      *bridge.Bridge
	host        *cdphost.Host
	manager     *webview.Manager
	coordinator *webview.Coordinator
	ask         *quickask.Service
	history     *history.Store

	forwarders []*proxy.Forwarder
	cleanups   []func()
}

// buildRegistry loads built-ins and the optional templates file. It is also
// used standalone by the templates command, which needs no browser.
func buildRegistry(cfg *config.Config, logger *zap.Logger) (*registry.Registry, error) {
	reg := registry.New(logger, script.ValidateJS)
	if cfg.Templates.Builtins {
		if err := registry.RegisterBuiltins(reg); err != nil {
			return nil, fmt.Errorf("failed to register built-in templates: %w", err)
		}
	}
	if cfg.Templates.File != "" {
		n, err := registry.LoadFile(reg, cfg.Templates.File)
		if err != nil {
			return nil, fmt.Errorf("failed to load templates file: %w", err)
		}
		logger.Info("Loaded templates from file.",
			zap.String("file", cfg.Templates.File), zap.Int("count", n))
	}
	return reg, nil
}

// newEngine boots everything, including Chromium.
func newEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*engine, error) {
	e := &engine{cfg: cfg, logger: logger}

	reg, err := buildRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}
	e.registry = reg

	e.bridge = bridge.New(bridge.Config{
		Timeout:         cfg.Bridge.Timeout,
		UnmatchedBuffer: cfg.Bridge.UnmatchedBuffer,
	}, logger)

	e.host = cdphost.New(cdphost.Config{
		Headless:     cfg.Browser.Headless,
		ExecPath:     cfg.Browser.ExecPath,
		DataDir:      proxy.ProfileDirFor(cfg.Browser.DataDir, ""),
		WindowWidth:  cfg.Browser.WindowWidth,
		WindowHeight: cfg.Browser.WindowHeight,
	}, e.bridge.HandleReport, quickask.InitScript(), logger)
	if err := e.host.Start(ctx); err != nil {
		return nil, err
	}
	e.cleanups = append(e.cleanups, e.host.Stop)

	if err := e.resolveProxies(ctx); err != nil {
		e.Close(ctx)
		return nil, err
	}

	e.manager = webview.NewManager(e.host, e.bridge, logger)
	e.coordinator = webview.NewCoordinator(e.manager, consoleWindow{logger}, cfg.Visibility.SettleDelay, logger)

	if cfg.History.DSN != "" {
		store, closer, err := history.Connect(ctx, cfg.History.DSN, logger)
		if err != nil {
			e.Close(ctx)
			return nil, err
		}
		e.history = store
		e.cleanups = append(e.cleanups, closer)
	}

	var recorder quickask.Recorder
	if e.history != nil {
		recorder = e.history
	}
	e.ask = quickask.New(cfg, e.registry, script.New(logger), e.manager, recorder, logger)
	return e, nil
}

// resolveProxies rewrites each platform's proxy URL into the address the
// browser context actually uses. Authenticated http proxies get a loopback
// forwarder that injects the credentials; everything else is stripped down
// to scheme://host:port.
func (e *engine) resolveProxies(ctx context.Context) error {
	for i, p := range e.cfg.Platforms {
		if p.ProxyURL == "" {
			continue
		}
		u, err := proxy.ParseProxyURL(p.ProxyURL)
		if err != nil {
			return fmt.Errorf("platform %s: %w", p.ID, err)
		}
		if u.Scheme == "http" && u.User != nil {
			fwd, err := proxy.NewForwarder(p.ProxyURL, e.logger)
			if err != nil {
				return fmt.Errorf("platform %s: %w", p.ID, err)
			}
			addr, err := fwd.Start(ctx)
			if err != nil {
				return fmt.Errorf("platform %s: %w", p.ID, err)
			}
			e.forwarders = append(e.forwarders, fwd)
			e.cfg.Platforms[i].ProxyURL = "http://" + addr
			continue
		}
		if u.User != nil {
			e.logger.Warn("Proxy credentials cannot be forwarded for this scheme; they will be dropped.",
				zap.String("platform", p.ID), zap.String("scheme", u.Scheme))
		}
		e.cfg.Platforms[i].ProxyURL = proxy.ServerAddress(u)
	}
	return nil
}

// Close tears the engine down in reverse boot order.
func (e *engine) Close(ctx context.Context) {
	if e.manager != nil {
		if err := e.manager.CloseAll(ctx); err != nil {
			e.logger.Warn("Failed to close embedded contexts.", zap.Error(err))
		}
	}
	for _, fwd := range e.forwarders {
		if err := fwd.Stop(ctx); err != nil {
			e.logger.Warn("Failed to stop proxy forwarder.", zap.Error(err))
		}
	}
	for i := len(e.cleanups) - 1; i >= 0; i-- {
		e.cleanups[i]()
	}
}

// consoleWindow stands in for a native host window: the CLI has no real one,
// so host-level show/hide only logs. Context windows are real and still obey
// the two-phase ordering.
type consoleWindow struct {
	logger *zap.Logger
}

func (w consoleWindow) Show(ctx context.Context) error {
	w.logger.Debug("Host window shown.")
	return nil
}

func (w consoleWindow) Hide(ctx context.Context) error {
	w.logger.Debug("Host window hidden.")
	return nil
}

func (w consoleWindow) Focus(ctx context.Context) error {
	w.logger.Debug("Host window focused.")
	return nil
}
