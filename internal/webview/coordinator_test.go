package webview

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatdock/chatdock/internal/bridge"
)

func newTestCoordinator(t *testing.T, settle time.Duration) (*Coordinator, *Manager, *recorder) {
	t.Helper()
	rec := &recorder{}
	host := newFakeHost(rec)
	m := NewManager(host, bridge.New(bridge.Config{}, zap.NewNop()), zap.NewNop())
	c := NewCoordinator(m, &fakeWindow{rec: rec}, settle, zap.NewNop())
	return c, m, rec
}

func ensureShown(t *testing.T, m *Manager, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		_, err := m.Ensure(ctx, id, defaultOpts())
		require.NoError(t, err)
		require.NoError(t, m.Show(ctx, id))
	}
}

func TestTwoPhaseHideOrdering(t *testing.T) {
	c, m, rec := newTestCoordinator(t, 10*time.Millisecond)
	ensureShown(t, m, "chatgpt", "claude")

	require.NoError(t, c.HandleHideIntent(context.Background()))

	hostHide := rec.indexOf("window.hide")
	require.GreaterOrEqual(t, hostHide, 0, "the host window must be hidden")
	for _, id := range []string{"chatgpt", "claude"} {
		viewHide := rec.indexOf("view.hide " + id)
		require.GreaterOrEqual(t, viewHide, 0, "context %s must be hidden", id)
		assert.Less(t, viewHide, hostHide,
			"context %s must be hidden before the host window", id)
	}
}

func TestHideIsIdempotentWhileHidden(t *testing.T) {
	c, m, rec := newTestCoordinator(t, time.Millisecond)
	ensureShown(t, m, "chatgpt")

	require.NoError(t, c.HandleHideIntent(context.Background()))
	before := len(rec.Calls())

	require.NoError(t, c.HandleHideIntent(context.Background()))
	require.NoError(t, c.HandleMinimize(context.Background()))
	assert.Len(t, rec.Calls(), before, "repeated hide signals while hidden are no-ops")
}

func TestRestoreOrderingAndHistory(t *testing.T) {
	c, m, rec := newTestCoordinator(t, time.Millisecond)
	ctx := context.Background()
	ensureShown(t, m, "chatgpt", "claude", "gemini")

	// The user deliberately hides one context before the host hides.
	require.NoError(t, m.Hide(ctx, "gemini"))

	require.NoError(t, c.HandleHideIntent(ctx))
	hidden := len(rec.Calls())
	require.NoError(t, c.HandleRestore(ctx))

	t.Run("host becomes visible before any context", func(t *testing.T) {
		// Only the restore phase matters; the setup shows above are history.
		calls := rec.Calls()
		windowShow := rec.indexOf("window.show")
		require.GreaterOrEqual(t, windowShow, hidden)
		for _, call := range calls[hidden:windowShow] {
			assert.NotContains(t, call, "view.show", "no context may show before the host window")
		}
	})

	t.Run("only previously-visible contexts are restored", func(t *testing.T) {
		info, _ := m.Snapshot("chatgpt")
		assert.Equal(t, "visible", string(info.State))
		info, _ = m.Snapshot("claude")
		assert.Equal(t, "visible", string(info.State))
		info, _ = m.Snapshot("gemini")
		assert.Equal(t, "hidden", string(info.State), "a deliberately hidden context must not be auto-restored")
	})
}

func TestRestoreWithoutPriorHide(t *testing.T) {
	c, m, rec := newTestCoordinator(t, time.Millisecond)
	ensureShown(t, m, "chatgpt")
	require.NoError(t, m.Hide(context.Background(), "chatgpt"))

	require.NoError(t, c.HandleRestore(context.Background()))
	assert.GreaterOrEqual(t, rec.indexOf("window.show"), 0)
	info, _ := m.Snapshot("chatgpt")
	assert.Equal(t, "hidden", string(info.State), "restore without a prior hide only shows the host")
}

func TestRestoreSurvivesClosedContexts(t *testing.T) {
	c, m, _ := newTestCoordinator(t, time.Millisecond)
	ctx := context.Background()
	ensureShown(t, m, "chatgpt", "claude")

	require.NoError(t, c.HandleHideIntent(ctx))
	// The context disappears while the host is hidden.
	require.NoError(t, m.Close(ctx, "claude"))

	require.NoError(t, c.HandleRestore(ctx), "a vanished context must not fail the restore")
	info, _ := m.Snapshot("chatgpt")
	assert.Equal(t, "visible", string(info.State))
}

func TestMinimizeRunsTwoPhaseHide(t *testing.T) {
	c, m, rec := newTestCoordinator(t, time.Millisecond)
	ensureShown(t, m, "chatgpt")

	require.NoError(t, c.HandleMinimize(context.Background()))
	assert.Less(t, rec.indexOf("view.hide chatgpt"), rec.indexOf("window.hide"))
}

func TestFocusSignalsAreBookkeepingOnly(t *testing.T) {
	c, m, rec := newTestCoordinator(t, time.Millisecond)
	ensureShown(t, m, "chatgpt")
	before := len(rec.Calls())

	c.HandleFocusGained(context.Background())
	c.HandleFocusLost(context.Background())
	assert.Len(t, rec.Calls(), before, "focus transitions must not touch visibility")
}

func TestSettleDelayPrecedesHostHide(t *testing.T) {
	settle := 120 * time.Millisecond
	c, m, _ := newTestCoordinator(t, settle)
	ensureShown(t, m, "chatgpt")

	start := time.Now()
	require.NoError(t, c.HandleHideIntent(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), settle,
		"the host hide must wait out the settle delay")
}
