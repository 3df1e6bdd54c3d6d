// Package autocomplete implements the debounced search-and-select state
// machine shared by the asset, driver and container selectors.
//
// In fetch mode every keystroke restarts a debounce timer; when it fires the
// engine issues one fetch tagged with a generation number. A response is only
// committed when its generation is still the latest, the selector is open and
// the query has not changed since. In static mode the engine filters a fixed
// list synchronously.
package autocomplete

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"fieldmission/internal/logging"
	"fieldmission/pkg/domain"
)

// DefaultDebounce is the quiet period after the last keystroke.
const DefaultDebounce = 500 * time.Millisecond

// DefaultErrorMessage is shown when a fetch fails.
const DefaultErrorMessage = "Erreur lors du chargement des données"

// Fetcher returns candidates for term. An empty term asks for the default page.
type Fetcher[T domain.Entity] func(ctx context.Context, term string) ([]T, error)

// Timer is the handle returned by a scheduling function.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

// RealAfterFunc schedules on the runtime timer.
func RealAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Config parameterizes an Engine. Set Fetch for remote mode, or Items (and
// optionally Extract) for static mode.
type Config[T domain.Entity] struct {
	Fetch        Fetcher[T]
	Items        []T
	Extract      func(T) []string
	Display      func(T) string
	Debounce     time.Duration
	FetchTimeout time.Duration
	ErrorMessage string
	AfterFunc    AfterFunc
	Logger       *slog.Logger
	Name         string
}

// State is a snapshot of the selector.
type State[T domain.Entity] struct {
	Open     bool
	Query    string
	Results  []T
	Loading  bool
	Err      string
	Selected *T
}

// Engine is safe for concurrent use.
type Engine[T domain.Entity] struct {
	cfg    Config[T]
	logger *slog.Logger

	mu      sync.Mutex
	state   State[T]
	gen     uint64
	timer   Timer
	pending int
	idle    *sync.Cond

	ctx    context.Context
	cancel context.CancelFunc

	subMu sync.Mutex
	subs  map[int]chan struct{}
	subID int
}

// New builds an engine from cfg, filling defaults.
func New[T domain.Entity](cfg Config[T]) *Engine[T] {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.ErrorMessage == "" {
		cfg.ErrorMessage = DefaultErrorMessage
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = RealAfterFunc
	}
	if cfg.Display == nil {
		cfg.Display = func(item T) string { return item.Label() }
	}
	if cfg.Extract == nil {
		cfg.Extract = func(item T) []string { return []string{item.Label()} }
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine[T]{
		cfg:    cfg,
		logger: logging.OrDiscard(cfg.Logger).With("selector", cfg.Name),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[int]chan struct{}),
	}
	e.idle = sync.NewCond(&e.mu)
	if e.static() {
		e.state.Results = e.filter("")
	}
	return e
}

func (e *Engine[T]) static() bool { return e.cfg.Fetch == nil }

// State returns a copy of the current state.
func (e *Engine[T]) State() State[T] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine[T]) snapshotLocked() State[T] {
	s := e.state
	s.Results = append([]T(nil), e.state.Results...)
	if e.state.Selected != nil {
		sel := *e.state.Selected
		s.Selected = &sel
	}
	return s
}

// Label renders item for display.
func (e *Engine[T]) Label(item T) string { return e.cfg.Display(item) }

// Open shows the list. In fetch mode an empty result cache triggers an
// immediate fetch for the current query.
func (e *Engine[T]) Open() {
	e.mu.Lock()
	if e.state.Open {
		e.mu.Unlock()
		return
	}
	e.state.Open = true
	if e.static() {
		e.state.Results = e.filter(e.state.Query)
	} else if len(e.state.Results) == 0 && !e.state.Loading {
		e.stopTimerLocked()
		e.gen++
		e.startFetchLocked(e.gen, e.state.Query)
	}
	e.mu.Unlock()
	e.notify()
}

// Type records a keystroke. Fetch mode schedules a debounced fetch and
// supersedes any earlier timer or in-flight request.
func (e *Engine[T]) Type(query string) {
	e.mu.Lock()
	e.state.Query = query
	e.state.Open = true
	if e.static() {
		e.state.Results = e.filter(query)
		e.mu.Unlock()
		e.notify()
		return
	}
	e.stopTimerLocked()
	e.gen++
	gen := e.gen
	e.pending++
	e.timer = e.cfg.AfterFunc(e.cfg.Debounce, func() { e.fire(gen) })
	e.mu.Unlock()
	e.notify()
}

func (e *Engine[T]) fire(gen uint64) {
	e.mu.Lock()
	e.pending--
	if gen != e.gen || !e.state.Open {
		e.idle.Broadcast()
		e.mu.Unlock()
		return
	}
	e.timer = nil
	e.startFetchLocked(gen, e.state.Query)
	e.mu.Unlock()
	e.notify()
}

func (e *Engine[T]) startFetchLocked(gen uint64, term string) {
	e.state.Loading = true
	e.pending++
	ctx := e.ctx
	var cancel context.CancelFunc = func() {}
	if e.cfg.FetchTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.cfg.FetchTimeout)
	}
	go func() {
		defer cancel()
		items, err := e.cfg.Fetch(ctx, term)
		e.commit(gen, term, items, err)
	}()
}

func (e *Engine[T]) commit(gen uint64, term string, items []T, err error) {
	e.mu.Lock()
	defer func() {
		e.pending--
		e.idle.Broadcast()
		e.mu.Unlock()
		e.notify()
	}()
	if gen != e.gen || !e.state.Open || term != e.state.Query {
		e.logger.Debug("discard stale results", "term", term)
		return
	}
	e.state.Loading = false
	if err != nil {
		e.logger.Warn("search failed", "term", term, "error", err)
		e.state.Results = nil
		e.state.Err = e.cfg.ErrorMessage
		return
	}
	e.state.Results = append([]T(nil), items...)
	e.state.Err = ""
}

// Select picks item, closes the list and resets the query.
func (e *Engine[T]) Select(item T) {
	e.mu.Lock()
	e.stopTimerLocked()
	e.gen++
	sel := item
	e.state.Selected = &sel
	e.state.Open = false
	e.state.Query = ""
	e.state.Loading = false
	e.mu.Unlock()
	e.notify()
}

// Clear drops the selection and query without reopening the list.
func (e *Engine[T]) Clear() {
	e.mu.Lock()
	e.stopTimerLocked()
	e.gen++
	e.state.Selected = nil
	e.state.Query = ""
	e.state.Loading = false
	if e.static() {
		e.state.Results = e.filter("")
	}
	e.mu.Unlock()
	e.notify()
}

// Close hides the list. Results of in-flight fetches are ignored on arrival.
func (e *Engine[T]) Close() {
	e.mu.Lock()
	e.stopTimerLocked()
	e.gen++
	e.state.Open = false
	e.state.Loading = false
	e.mu.Unlock()
	e.notify()
}

// IsHighlighted reports whether item is the current selection, by id.
func (e *Engine[T]) IsHighlighted(item T) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Selected != nil && (*e.state.Selected).EntityID() == item.EntityID()
}

// Wait blocks until no debounce timer is pending and no fetch is in flight.
func (e *Engine[T]) Wait() {
	e.mu.Lock()
	for e.pending > 0 {
		e.idle.Wait()
	}
	e.mu.Unlock()
}

// Shutdown stops timers, cancels in-flight fetches and waits for them.
func (e *Engine[T]) Shutdown() {
	e.Close()
	e.cancel()
	e.Wait()
	e.subMu.Lock()
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
	e.subMu.Unlock()
}

func (e *Engine[T]) stopTimerLocked() {
	if e.timer == nil {
		return
	}
	if e.timer.Stop() {
		e.pending--
		e.idle.Broadcast()
	}
	e.timer = nil
}

func (e *Engine[T]) filter(query string) []T {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]T, 0, len(e.cfg.Items))
	for _, item := range e.cfg.Items {
		if q == "" {
			out = append(out, item)
			continue
		}
		for _, field := range e.cfg.Extract(item) {
			if strings.Contains(strings.ToLower(field), q) {
				out = append(out, item)
				break
			}
		}
	}
	return out
}

// Subscribe returns a channel signalled after every state change. cancel
// releases it.
func (e *Engine[T]) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	e.subMu.Lock()
	id := e.subID
	e.subID++
	e.subs[id] = ch
	e.subMu.Unlock()
	return ch, func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		if _, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(ch)
		}
	}
}

func (e *Engine[T]) notify() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
