package webview

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chatdock/chatdock/api/schemas"
)

// recorder captures the global order of host-window and view calls, which is
// what the visibility ordering properties assert on.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) indexOf(call string) int {
	for i, c := range r.Calls() {
		if c == call {
			return i
		}
	}
	return -1
}

type fakeView struct {
	rec *recorder
	id  string

	mu      sync.Mutex
	scripts []string
	hideErr error
}

func (v *fakeView) Eval(ctx context.Context, script string) error {
	v.mu.Lock()
	v.scripts = append(v.scripts, script)
	v.mu.Unlock()
	v.rec.record("view.eval %s", v.id)
	return nil
}

func (v *fakeView) lastScript() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.scripts) == 0 {
		return ""
	}
	return v.scripts[len(v.scripts)-1]
}

func (v *fakeView) Navigate(ctx context.Context, url string) error {
	v.rec.record("view.navigate %s %s", v.id, url)
	return nil
}

func (v *fakeView) SetBounds(ctx context.Context, b schemas.Bounds) error {
	v.rec.record("view.bounds %s %dx%d", v.id, b.Width, b.Height)
	return nil
}

func (v *fakeView) Show(ctx context.Context) error {
	v.rec.record("view.show %s", v.id)
	return nil
}

func (v *fakeView) Hide(ctx context.Context) error {
	if v.hideErr != nil {
		return v.hideErr
	}
	v.rec.record("view.hide %s", v.id)
	return nil
}

func (v *fakeView) Focus(ctx context.Context) error {
	v.rec.record("view.focus %s", v.id)
	return nil
}

func (v *fakeView) Close(ctx context.Context) error {
	v.rec.record("view.close %s", v.id)
	return nil
}

type fakeHost struct {
	rec *recorder
	// createDelay widens the creating window so concurrency tests can race.
	createDelay time.Duration

	mu      sync.Mutex
	created map[string]int
	failFor map[string]error
	views   map[string]*fakeView
}

func newFakeHost(rec *recorder) *fakeHost {
	return &fakeHost{
		rec:     rec,
		created: make(map[string]int),
		failFor: make(map[string]error),
		views:   make(map[string]*fakeView),
	}
}

func (h *fakeHost) CreateView(ctx context.Context, opts ViewOptions) (View, error) {
	if h.createDelay > 0 {
		select {
		case <-time.After(h.createDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.failFor[opts.ID]; err != nil {
		return nil, err
	}
	h.created[opts.ID]++
	view := &fakeView{rec: h.rec, id: opts.ID}
	h.views[opts.ID] = view
	h.rec.record("host.create %s", opts.ID)
	return view, nil
}

func (h *fakeHost) createdCount(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.created[id]
}

func (h *fakeHost) view(id string) *fakeView {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.views[id]
}

type fakeWindow struct {
	rec *recorder
}

func (w *fakeWindow) Show(ctx context.Context) error {
	w.rec.record("window.show")
	return nil
}

func (w *fakeWindow) Hide(ctx context.Context) error {
	w.rec.record("window.hide")
	return nil
}

func (w *fakeWindow) Focus(ctx context.Context) error {
	w.rec.record("window.focus")
	return nil
}
