// Package bridge dispatches compiled script bundles into embedded browsing
// contexts and correlates their asynchronous results. Execution and result
// live on two sides of a process boundary with no synchronous return
// channel, so every dispatch is annotated with a correlation id and the
// result arrives as an out-of-band binding event.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/chatdock/chatdock/api/schemas"
)

// BindingName is the page-side function compiled bundles report through. The
// host registers it as a CDP binding on every context before navigation.
const BindingName = "__chatdockReport"

// DefaultTimeout bounds the wait for a correlated result when the caller
// does not supply one.
const DefaultTimeout = 10 * time.Second

const defaultUnmatchedBuffer = 32

// json is the decode path for binding payloads, which arrive on every
// extract poll tick of every context.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Evaler dispatches a script into one embedded context, fire-and-forget.
// The lifecycle manager's views implement it.
type Evaler interface {
	Eval(ctx context.Context, script string) error
}

// Config tunes the bridge.
type Config struct {
	// Timeout is the default result wait; zero means DefaultTimeout.
	Timeout time.Duration
	// UnmatchedBuffer bounds the ring of late or unknown correlation ids
	// kept for diagnostics; zero picks a small default.
	UnmatchedBuffer int
}

// Bridge owns the correlation table. One instance serves all contexts;
// requests against different contexts run concurrently while requests
// against the same context are serialized internally, so callers need no
// locking of their own.
type Bridge struct {
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	pending   map[string]*pendingRequest
	queues    map[string]chan struct{}
	unmatched []string
}

type pendingRequest struct {
	once sync.Once
	ch   chan *schemas.ExecutionResult
}

// resolve delivers the result exactly once; later calls are dropped.
func (p *pendingRequest) resolve(res *schemas.ExecutionResult) bool {
	delivered := false
	p.once.Do(func() {
		p.ch <- res
		delivered = true
	})
	return delivered
}

// New builds a Bridge.
func New(cfg Config, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UnmatchedBuffer <= 0 {
		cfg.UnmatchedBuffer = defaultUnmatchedBuffer
	}
	return &Bridge{
		cfg:     cfg,
		logger:  logger.Named("bridge"),
		pending: make(map[string]*pendingRequest),
		queues:  make(map[string]chan struct{}),
	}
}

// Execute submits a compiled bundle into the target context and awaits its
// correlated result. Exactly one outcome is delivered per request: the
// reported result, a ResultTimeout result, or a Go error for dispatch and
// context failures. A timed-out bundle keeps running page-side; the bridge
// only sets its cooperative cancellation flag and walks away.
func (b *Bridge) Execute(ctx context.Context, target Evaler, contextID, bundle string, timeout time.Duration) (*schemas.ExecutionResult, error) {
	if timeout <= 0 {
		timeout = b.cfg.Timeout
	}

	release, err := b.acquire(ctx, contextID)
	if err != nil {
		return nil, err
	}
	defer release()

	correlationID := uuid.NewString()
	pending := &pendingRequest{ch: make(chan *schemas.ExecutionResult, 1)}

	b.mu.Lock()
	b.pending[correlationID] = pending
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, correlationID)
		b.mu.Unlock()
	}()

	log := b.logger.With(zap.String("contextId", contextID), zap.String("correlationId", correlationID))
	if err := target.Eval(ctx, wrapBundle(correlationID, bundle)); err != nil {
		return nil, fmt.Errorf("failed to dispatch bundle to context %s: %w", contextID, err)
	}
	log.Debug("Bundle dispatched.", zap.Duration("timeout", timeout))

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-pending.ch:
		return res, nil
	case <-timer.C:
		// Mark resolved so a late event cannot race the return.
		pending.once.Do(func() {})
		log.Warn("No correlated result before timeout; setting the cancellation flag.",
			zap.Duration("timeout", timeout))
		b.requestCancel(ctx, target, correlationID)
		return schemas.FailedResult(schemas.ErrResultTimeout,
			fmt.Sprintf("no result from context %s within %s", contextID, timeout)), nil
	case <-ctx.Done():
		pending.once.Do(func() {})
		return nil, ctx.Err()
	}
}

// requestCancel sets the page-side cancellation flag the bundle polls
// between actions. Best effort: the flag cannot stop a synchronous fragment.
func (b *Bridge) requestCancel(ctx context.Context, target Evaler, correlationID string) {
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	script := fmt.Sprintf(
		"window.__chatdockCancel = window.__chatdockCancel || {}; window.__chatdockCancel[%q] = true;",
		correlationID)
	if err := target.Eval(cancelCtx, script); err != nil {
		b.logger.Debug("Failed to set the cancellation flag.",
			zap.String("correlationId", correlationID), zap.Error(err))
	}
}

// reportEnvelope is the wire shape bundles report through the binding.
type reportEnvelope struct {
	CorrelationID string              `json:"correlationId"`
	Result        jsoniter.RawMessage `json:"result"`
}

// HandleReport consumes one binding payload. Safe to call from any
// goroutine; the host wires it into its binding-event listener. Unknown or
// late correlation ids are logged and remembered, never resolved twice.
func (b *Bridge) HandleReport(payload string) {
	var env reportEnvelope
	if err := json.UnmarshalFromString(payload, &env); err != nil || env.CorrelationID == "" {
		b.logger.Error("Discarding malformed report envelope.",
			zap.Int("payloadBytes", len(payload)), zap.Error(err))
		return
	}

	b.mu.Lock()
	pending, ok := b.pending[env.CorrelationID]
	b.mu.Unlock()
	if !ok {
		b.rememberUnmatched(env.CorrelationID)
		b.logger.Warn("Report for unknown or already-resolved correlation id.",
			zap.String("correlationId", env.CorrelationID))
		return
	}

	var res schemas.ExecutionResult
	if err := json.Unmarshal(env.Result, &res); err != nil {
		b.logger.Error("Report payload is not an execution result.",
			zap.String("correlationId", env.CorrelationID), zap.Error(err))
		pending.resolve(schemas.FailedResult(schemas.ErrInvalidResultFormat,
			fmt.Sprintf("undecodable result payload: %v", err)))
		return
	}
	if !res.Success && res.Error == nil {
		pending.resolve(schemas.FailedResult(schemas.ErrInvalidResultFormat,
			"failure result carries no error"))
		return
	}

	if !pending.resolve(&res) {
		b.rememberUnmatched(env.CorrelationID)
		b.logger.Warn("Late report arrived after resolution; dropped.",
			zap.String("correlationId", env.CorrelationID))
	}
}

// RecentUnmatched returns the correlation ids of recently dropped reports,
// oldest first. Diagnostics only.
func (b *Bridge) RecentUnmatched() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.unmatched...)
}

func (b *Bridge) rememberUnmatched(correlationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unmatched = append(b.unmatched, correlationID)
	if len(b.unmatched) > b.cfg.UnmatchedBuffer {
		b.unmatched = b.unmatched[len(b.unmatched)-b.cfg.UnmatchedBuffer:]
	}
}

// acquire takes the per-context execution slot, creating it on first use.
// Requests for one context run strictly one at a time; different contexts
// never wait on each other.
func (b *Bridge) acquire(ctx context.Context, contextID string) (func(), error) {
	b.mu.Lock()
	queue, ok := b.queues[contextID]
	if !ok {
		queue = make(chan struct{}, 1)
		b.queues[contextID] = queue
	}
	b.mu.Unlock()

	select {
	case queue <- struct{}{}:
		return func() { <-queue }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for context %s execution slot: %w", contextID, ctx.Err())
	}
}

// wrapBundle surrounds a compiled bundle with the reporting envelope: define
// the per-call cancellation predicate, run the bundle, report the result
// with the correlation id, clean the flag up. The catch arm converts a
// bundle that violates its never-throw contract into a reported failure.
func wrapBundle(correlationID, bundle string) string {
	return fmt.Sprintf(`(() => {
  const cid = %q;
  window.__chatdockCancel = window.__chatdockCancel || {};
  const cancelled = () => window.__chatdockCancel[cid] === true;
  Promise.resolve()
    .then(() => (%s)(cancelled))
    .catch((e) => ({ success: false, error: { kind: 'ScriptExecutionError', message: 'bundle rejected: ' + e } }))
    .then((result) => {
      delete window.__chatdockCancel[cid];
      if (typeof window.%s === 'function') {
        window.%s(JSON.stringify({ correlationId: cid, result: result }));
      }
    });
})();`, correlationID, bundle, BindingName, BindingName)
}
