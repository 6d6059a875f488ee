package webview

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/chatdock/chatdock/api/schemas"
	"github.com/chatdock/chatdock/internal/bridge"
)

// Manager exclusively owns all context records; no other component mutates
// their state. One context exists per platform id. Concurrent Ensure calls
// for one id share a single creation through the singleflight group, so a
// context is never silently duplicated while creating.
type Manager struct {
	host   Host
	bridge *bridge.Bridge
	logger *zap.Logger

	mu       sync.Mutex
	contexts map[string]*managedContext
	flight   singleflight.Group
}

// managedContext is the live record of one embedded context.
type managedContext struct {
	id            string
	url           string
	proxyURL      string
	state         schemas.ContextState
	bounds        schemas.Bounds
	lastFocusedAt time.Time
	view          View
}

func (mc *managedContext) snapshot() schemas.ContextInfo {
	return schemas.ContextInfo{
		ID:            mc.id,
		URL:           mc.url,
		State:         mc.state,
		Bounds:        mc.bounds,
		LastFocusedAt: mc.lastFocusedAt,
	}
}

// EnsureOptions parameterize Ensure.
type EnsureOptions struct {
	URL      string
	Bounds   schemas.Bounds
	ProxyURL string
}

// NewManager builds a Manager on top of a view host and an execution bridge.
func NewManager(host Host, b *bridge.Bridge, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		host:     host,
		bridge:   b,
		logger:   logger.Named("webview"),
		contexts: make(map[string]*managedContext),
	}
}

// Ensure returns the context for id, creating it on first call. An existing
// context is reconciled in place: a changed URL navigates, changed bounds
// are re-applied, while a changed proxy closes and recreates the context
// because proxy isolation is per browsing profile. Concurrent calls during
// creation all await the one creation and receive the same context.
func (m *Manager) Ensure(ctx context.Context, id string, opts EnsureOptions) (schemas.ContextInfo, error) {
	if id == "" {
		return schemas.ContextInfo{}, fmt.Errorf("context id must not be empty")
	}

	for attempt := 0; ; attempt++ {
		m.mu.Lock()
		mc, ok := m.contexts[id]
		if ok && mc.state.Live() {
			if mc.proxyURL != opts.ProxyURL {
				m.mu.Unlock()
				if attempt > 0 {
					return schemas.ContextInfo{}, fmt.Errorf("context %s: proxy change did not settle", id)
				}
				m.logger.Info("Proxy changed; recreating context.",
					zap.String("id", id), zap.String("proxy", opts.ProxyURL))
				if err := m.Close(ctx, id); err != nil {
					return schemas.ContextInfo{}, err
				}
				continue
			}
			view := mc.view
			needNavigate := opts.URL != "" && mc.url != opts.URL
			needBounds := opts.Bounds != (schemas.Bounds{}) && mc.bounds != opts.Bounds
			m.mu.Unlock()

			if needNavigate {
				if err := view.Navigate(ctx, opts.URL); err != nil {
					return schemas.ContextInfo{}, fmt.Errorf("failed to navigate context %s: %w", id, err)
				}
			}
			if needBounds {
				if err := view.SetBounds(ctx, opts.Bounds); err != nil {
					return schemas.ContextInfo{}, fmt.Errorf("failed to resize context %s: %w", id, err)
				}
			}

			m.mu.Lock()
			if mc := m.contexts[id]; mc != nil {
				if needNavigate {
					mc.url = opts.URL
				}
				if needBounds {
					mc.bounds = opts.Bounds
				}
				info := mc.snapshot()
				m.mu.Unlock()
				return info, nil
			}
			m.mu.Unlock()
			continue
		}
		m.mu.Unlock()

		result, err, _ := m.flight.Do(id, func() (interface{}, error) {
			return m.create(ctx, id, opts)
		})
		if err != nil {
			return schemas.ContextInfo{}, err
		}
		return result.(schemas.ContextInfo), nil
	}
}

// create performs the single creation for an id. Only ever runs inside the
// singleflight group.
func (m *Manager) create(ctx context.Context, id string, opts EnsureOptions) (schemas.ContextInfo, error) {
	m.mu.Lock()
	if existing, ok := m.contexts[id]; ok && existing.state.Live() {
		// Lost a race with another creation that already settled.
		info := existing.snapshot()
		m.mu.Unlock()
		return info, nil
	}
	mc := &managedContext{
		id:       id,
		url:      opts.URL,
		proxyURL: opts.ProxyURL,
		state:    schemas.StateCreating,
		bounds:   opts.Bounds,
	}
	m.contexts[id] = mc
	m.mu.Unlock()

	m.logger.Info("Creating embedded context.",
		zap.String("id", id), zap.String("url", opts.URL))
	view, err := m.host.CreateView(ctx, ViewOptions{
		ID: id, URL: opts.URL, Bounds: opts.Bounds, ProxyURL: opts.ProxyURL,
	})
	if err != nil {
		m.mu.Lock()
		delete(m.contexts, id)
		m.mu.Unlock()
		return schemas.ContextInfo{}, fmt.Errorf("failed to create context %s: %w", id, err)
	}

	m.mu.Lock()
	mc.view = view
	// New contexts start hidden, like the child webviews they model.
	mc.state = schemas.StateReady
	info := mc.snapshot()
	m.mu.Unlock()

	m.logger.Info("Embedded context ready.", zap.String("id", id))
	return info, nil
}

// live fetches the context for id if scripts and visibility operations are
// valid against it.
func (m *Manager) live(id string) (*managedContext, View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.contexts[id]
	if !ok {
		return nil, nil, schemas.NewError(schemas.ErrContextNotReady, "no context %q; call ensure first", id)
	}
	if !mc.state.Live() {
		return nil, nil, schemas.NewError(schemas.ErrContextNotReady, "context %q is %s", id, mc.state)
	}
	return mc, mc.view, nil
}

// Show makes the context visible and gives it focus.
func (m *Manager) Show(ctx context.Context, id string) error {
	mc, view, err := m.live(id)
	if err != nil {
		return err
	}
	if err := view.Show(ctx); err != nil {
		return fmt.Errorf("failed to show context %s: %w", id, err)
	}
	if err := view.Focus(ctx); err != nil {
		return fmt.Errorf("failed to focus context %s: %w", id, err)
	}
	m.mu.Lock()
	mc.state = schemas.StateVisible
	mc.lastFocusedAt = time.Now()
	m.mu.Unlock()
	return nil
}

// Hide hides the context. Hiding an already-hidden or merely ready context
// is a no-op.
func (m *Manager) Hide(ctx context.Context, id string) error {
	mc, view, err := m.live(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	wasVisible := mc.state == schemas.StateVisible
	m.mu.Unlock()
	if !wasVisible {
		return nil
	}
	if err := view.Hide(ctx); err != nil {
		return fmt.Errorf("failed to hide context %s: %w", id, err)
	}
	m.mu.Lock()
	mc.state = schemas.StateHidden
	m.mu.Unlock()
	return nil
}

// UpdateBounds repositions the context. Valid in any non-destroyed state;
// bounds set while still creating are applied by creation itself.
func (m *Manager) UpdateBounds(ctx context.Context, id string, bounds schemas.Bounds) error {
	m.mu.Lock()
	mc, ok := m.contexts[id]
	if !ok {
		m.mu.Unlock()
		return schemas.NewError(schemas.ErrContextNotReady, "no context %q", id)
	}
	mc.bounds = bounds
	view := mc.view
	state := mc.state
	m.mu.Unlock()

	if !state.Live() {
		return nil
	}
	if err := view.SetBounds(ctx, bounds); err != nil {
		return fmt.Errorf("failed to resize context %s: %w", id, err)
	}
	return nil
}

// SetFocus focuses the context without changing visibility state.
func (m *Manager) SetFocus(ctx context.Context, id string) error {
	mc, view, err := m.live(id)
	if err != nil {
		return err
	}
	if err := view.Focus(ctx); err != nil {
		return fmt.Errorf("failed to focus context %s: %w", id, err)
	}
	m.mu.Lock()
	mc.lastFocusedAt = time.Now()
	m.mu.Unlock()
	return nil
}

// Close destroys the context and releases its view. The id must be
// re-ensured to be used again; the next Ensure yields a brand-new context,
// never a resurrection.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	mc, ok := m.contexts[id]
	if !ok || mc.state == schemas.StateDestroyed {
		m.mu.Unlock()
		return nil
	}
	mc.state = schemas.StateDestroyed
	view := mc.view
	delete(m.contexts, id)
	m.flight.Forget(id)
	m.mu.Unlock()

	if view != nil {
		if err := view.Close(ctx); err != nil {
			return fmt.Errorf("failed to close context %s: %w", id, err)
		}
	}
	m.logger.Info("Embedded context destroyed.", zap.String("id", id))
	return nil
}

// CloseAll destroys every context. Used at host shutdown.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.contexts))
	for id := range m.contexts {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := m.Close(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// EvaluateScript submits a compiled bundle to the context through the
// execution bridge and awaits its correlated result. Only valid against a
// live context; anything else is a ContextNotReady contract violation.
func (m *Manager) EvaluateScript(ctx context.Context, id, script string, timeout time.Duration) (*schemas.ExecutionResult, error) {
	_, view, err := m.live(id)
	if err != nil {
		return nil, err
	}
	return m.bridge.Execute(ctx, view, id, script, timeout)
}

// Snapshot returns a read-only copy of one context record.
func (m *Manager) Snapshot(id string) (schemas.ContextInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mc, ok := m.contexts[id]; ok {
		return mc.snapshot(), true
	}
	return schemas.ContextInfo{}, false
}

// List returns snapshots of all contexts, unordered.
func (m *Manager) List() []schemas.ContextInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]schemas.ContextInfo, 0, len(m.contexts))
	for _, mc := range m.contexts {
		out = append(out, mc.snapshot())
	}
	return out
}

// VisibleIDs returns the ids of all currently visible contexts.
func (m *Manager) VisibleIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, mc := range m.contexts {
		if mc.state == schemas.StateVisible {
			out = append(out, id)
		}
	}
	return out
}
