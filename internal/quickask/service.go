// Package quickask orchestrates one-shot prompts: resolve the platform,
// compile its template with the prompt text, ensure the embedded context and
// dispatch, then render the extracted answer.
package quickask

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/chatdock/chatdock/api/schemas"
	"github.com/chatdock/chatdock/internal/config"
	"github.com/chatdock/chatdock/internal/htmltext"
	"github.com/chatdock/chatdock/internal/registry"
	"github.com/chatdock/chatdock/internal/script"
	"github.com/chatdock/chatdock/internal/webview"
)

// DefaultThrottle is the minimum spacing between dispatches, matching the
// hotkey debounce of the desktop application this service fronts for.
const DefaultThrottle = 350 * time.Millisecond

// dispatchSlack pads the bridge wait beyond the sum of action timeouts.
const dispatchSlack = 2 * time.Second

// ErrThrottled reports a dispatch dropped by the rate guard.
var ErrThrottled = errors.New("quick ask throttled, try again shortly")

// ContextManager is the slice of the webview manager the service needs.
type ContextManager interface {
	Ensure(ctx context.Context, id string, opts webview.EnsureOptions) (schemas.ContextInfo, error)
	Show(ctx context.Context, id string) error
	EvaluateScript(ctx context.Context, id, script string, timeout time.Duration) (*schemas.ExecutionResult, error)
}

// Recorder persists execution outcomes. The history store implements it; a
// nil Recorder disables persistence.
type Recorder interface {
	RecordResult(ctx context.Context, platformID, templateName, targetURL string, res *schemas.ExecutionResult) error
}

// Request is one quick-ask invocation.
type Request struct {
	// Platform selects the target context; empty picks the configured default.
	Platform string
	Text     string
	// Template names the template to run, defaulting to "ask".
	Template string
}

// Answer is the outcome of a quick ask.
type Answer struct {
	Platform string                   `json:"platform"`
	Template string                   `json:"template,omitempty"`
	Result   *schemas.ExecutionResult `json:"result,omitempty"`
	// Output is the rendered extraction payload, empty for fallback asks.
	Output string `json:"output,omitempty"`
	// Fallback is true when no template existed and the prompt traveled
	// through the hash protocol instead.
	Fallback bool `json:"fallback,omitempty"`
}

// Service wires the registry, compiler and context manager together.
type Service struct {
	cfg      *config.Config
	reg      *registry.Registry
	compiler *script.Compiler
	contexts ContextManager
	recorder Recorder
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// New builds the service. recorder may be nil.
func New(cfg *config.Config, reg *registry.Registry, compiler *script.Compiler, contexts ContextManager, recorder Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	throttle := cfg.QuickAsk.Throttle
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	return &Service{
		cfg:      cfg,
		reg:      reg,
		compiler: compiler,
		contexts: contexts,
		recorder: recorder,
		limiter:  rate.NewLimiter(rate.Every(throttle), 1),
		logger:   logger.Named("quickask"),
	}
}

// Ask runs one prompt end to end. Platforms without a template fall back to
// the hash protocol: the context navigates to url#__qa=<base64> and the
// page-side init script performs the injection, so no result comes back.
func (s *Service) Ask(ctx context.Context, req Request) (*Answer, error) {
	platformID := req.Platform
	if platformID == "" {
		platformID = s.cfg.QuickAsk.DefaultPlatform
	}
	platform, ok := s.cfg.Platform(platformID)
	if !ok {
		return nil, fmt.Errorf("unknown platform %q", platformID)
	}
	if req.Text == "" {
		return nil, fmt.Errorf("prompt text is empty")
	}
	if !s.limiter.Allow() {
		return nil, ErrThrottled
	}

	opts := webview.EnsureOptions{
		URL:      platform.URL,
		Bounds:   platform.Bounds,
		ProxyURL: platform.ProxyURL,
	}
	info, err := s.contexts.Ensure(ctx, platformID, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure context %s: %w", platformID, err)
	}
	if err := s.contexts.Show(ctx, platformID); err != nil {
		return nil, fmt.Errorf("failed to show context %s: %w", platformID, err)
	}

	templateName := req.Template
	if templateName == "" {
		templateName = "ask"
	}
	tmpl, ok := s.reg.Get(platformID, templateName)
	if !ok {
		return s.askViaHash(ctx, platformID, platform.URL, opts, req.Text)
	}

	bundle, err := s.compiler.GenerateTemplateScript(tmpl, map[string]string{"text": req.Text})
	if err != nil {
		return nil, fmt.Errorf("failed to compile template %s/%s: %w", platformID, templateName, err)
	}

	timeout := dispatchTimeout(tmpl.Actions)
	s.logger.Info("Dispatching quick ask.",
		zap.String("platform", platformID),
		zap.String("template", templateName),
		zap.Duration("timeout", timeout))

	res, err := s.contexts.EvaluateScript(ctx, platformID, bundle, timeout)
	if err != nil {
		return nil, fmt.Errorf("dispatch to %s failed: %w", platformID, err)
	}
	s.record(ctx, platformID, templateName, info.URL, res)

	answer := &Answer{
		Platform: platformID,
		Template: templateName,
		Result:   res,
	}
	if res.Success && res.Payload != nil {
		answer.Output = htmltext.Render(res.Payload, outputFormat(tmpl.Actions))
	}
	return answer, nil
}

// askViaHash re-navigates the context with the prompt in the fragment.
func (s *Service) askViaHash(ctx context.Context, platformID, baseURL string, opts webview.EnsureOptions, text string) (*Answer, error) {
	opts.URL = EncodeAskFragment(baseURL, text)
	if _, err := s.contexts.Ensure(ctx, platformID, opts); err != nil {
		return nil, fmt.Errorf("hash fallback for %s failed: %w", platformID, err)
	}
	s.logger.Info("No template for platform; used hash fallback.",
		zap.String("platform", platformID))
	return &Answer{Platform: platformID, Fallback: true}, nil
}

func (s *Service) record(ctx context.Context, platformID, templateName, targetURL string, res *schemas.ExecutionResult) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordResult(ctx, platformID, templateName, targetURL, res); err != nil {
		s.logger.Warn("Failed to record execution history.",
			zap.String("platform", platformID), zap.Error(err))
	}
}

// dispatchTimeout budgets the bridge wait from the per-action timeouts plus
// wait durations, with a little slack for dispatch and reporting.
func dispatchTimeout(actions []schemas.Action) time.Duration {
	var totalMs int
	for _, a := range actions {
		if a.Kind == schemas.ActionWait {
			totalMs += a.DurationMs
			continue
		}
		totalMs += a.EffectiveTimeoutMs()
	}
	return time.Duration(totalMs)*time.Millisecond + dispatchSlack
}

// outputFormat picks the format of the template's extract action, if any.
func outputFormat(actions []schemas.Action) schemas.OutputFormat {
	for i := len(actions) - 1; i >= 0; i-- {
		if actions[i].Kind == schemas.ActionExtract {
			return actions[i].EffectiveOutputFormat()
		}
	}
	return schemas.OutputText
}
