// Package queue holds submissions that could not reach the server. The whole
// ordered collection is persisted under one key after every mutation, and
// memory only advances once the write succeeded.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldmission/internal/kv"
	"fieldmission/internal/logging"
	"fieldmission/internal/observability"
	"fieldmission/pkg/domain"
)

// StorageKey is the key-value record holding the serialized queue.
const StorageKey = "offline_forms"

// Entry is a queued submission.
type Entry = domain.OfflineFormEntry

// Queue is the single shared offline queue. All mutations are serialized by
// one mutex held across the persist call.
type Queue struct {
	mu      sync.Mutex
	store   kv.Store
	entries []Entry
	loaded  bool
	lastAt  time.Time

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	tracer  observability.Tracer
	now     func() time.Time
	newID   func() (string, error)

	subMu   sync.Mutex
	subs    map[int]chan int
	nextSub int
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger used for storage failures.
func WithLogger(l *slog.Logger) Option { return func(q *Queue) { q.logger = logging.OrDiscard(l) } }

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(q *Queue) {
		if m != nil {
			q.metrics = m
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t observability.Tracer) Option {
	return func(q *Queue) {
		if t != nil {
			q.tracer = t
		}
	}
}

// WithClock overrides the enqueue timestamp source.
func WithClock(now func() time.Time) Option { return func(q *Queue) { q.now = now } }

// WithIDGenerator overrides entry id generation.
func WithIDGenerator(fn func() (string, error)) Option { return func(q *Queue) { q.newID = fn } }

// New returns a queue backed by store. Call Load before first use; mutations
// load lazily when it was skipped.
func New(store kv.Store, opts ...Option) *Queue {
	q := &Queue{
		store:   store,
		logger:  logging.Discard(),
		metrics: observability.NoopRecorder{},
		tracer:  observability.NoopTracer{},
		now:     time.Now,
		newID:   newTimeOrderedID,
		subs:    make(map[int]chan int),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func newTimeOrderedID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Load reads the persisted collection and replaces the in-memory one. An
// unreadable or malformed record yields an empty queue and is only logged.
func (q *Queue) Load(ctx context.Context) []Entry {
	q.mu.Lock()
	_ = q.loadLocked(ctx)
	out := q.snapshotLocked()
	q.mu.Unlock()
	q.notify(len(out))
	return out
}

// loadLocked replaces the in-memory entries with the persisted ones. A read
// failure leaves the queue unloaded so the next mutation retries the read
// instead of overwriting the record.
func (q *Queue) loadLocked(ctx context.Context) error {
	q.entries = nil
	raw, ok, err := q.store.Get(ctx, StorageKey)
	if err != nil {
		q.loaded = false
		q.logger.Error("load offline queue", "key", StorageKey, "error", err)
		return &domain.StorageError{Op: "load", Key: StorageKey, Err: err}
	}
	q.loaded = true
	if !ok || len(raw) == 0 {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		q.logger.Error("decode offline queue, record will be replaced on next write",
			"key", StorageKey, "bytes", len(raw), "error", err)
		return nil
	}
	q.entries = entries
	for _, e := range entries {
		if e.EnqueuedAt.After(q.lastAt) {
			q.lastAt = e.EnqueuedAt
		}
	}
	return nil
}

func (q *Queue) ensureLoaded(ctx context.Context) error {
	if q.loaded {
		return nil
	}
	return q.loadLocked(ctx)
}

// List returns a copy of the entries in insertion order.
func (q *Queue) List() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// Count returns the number of queued entries.
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Get returns the entry with id.
func (q *Queue) Get(id string) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i := q.indexLocked(id); i >= 0 {
		return q.entries[i], true
	}
	return Entry{}, false
}

// Enqueue appends sub and returns the new entry id. On a storage failure the
// entry is not added and a *domain.StorageError is returned.
func (q *Queue) Enqueue(ctx context.Context, sub domain.Submission) (string, error) {
	var id string
	err := observability.Instrument(ctx, q.metrics, q.tracer, observability.OpQueueEnqueue, func(ctx context.Context) error {
		q.mu.Lock()
		defer q.mu.Unlock()
		if err := q.ensureLoaded(ctx); err != nil {
			return err
		}
		newID, err := q.newID()
		if err != nil {
			return fmt.Errorf("generate entry id: %w", err)
		}
		for q.indexLocked(newID) >= 0 {
			if newID, err = q.newID(); err != nil {
				return fmt.Errorf("generate entry id: %w", err)
			}
		}
		at := q.now().UTC()
		if !at.After(q.lastAt) {
			at = q.lastAt.Add(time.Nanosecond)
		}
		entry := Entry{ID: newID, Title: sub.Title, Payload: sub, EnqueuedAt: at}
		next := append(q.snapshotLocked(), entry)
		if err := q.persistLocked(ctx, "enqueue", next); err != nil {
			return err
		}
		q.entries = next
		q.lastAt = at
		id = newID
		return nil
	})
	if err != nil {
		return "", err
	}
	q.notify(q.Count())
	return id, nil
}

// Update replaces the payload of entry id. A missing id yields
// domain.ErrNotFound, which callers treat as a no-op.
func (q *Queue) Update(ctx context.Context, id string, sub domain.Submission) error {
	return q.mutate(ctx, observability.OpQueueUpdate, "update", func(entries []Entry) ([]Entry, error) {
		for i := range entries {
			if entries[i].ID == id {
				entries[i].Payload = sub
				return entries, nil
			}
		}
		return nil, domain.ErrNotFound{Kind: "offline form", ID: id}
	})
}

// UpdateDescription edits only the mission description of entry id.
func (q *Queue) UpdateDescription(ctx context.Context, id, description string) error {
	return q.mutate(ctx, observability.OpQueueUpdate, "update", func(entries []Entry) ([]Entry, error) {
		for i := range entries {
			if entries[i].ID == id {
				entries[i].Payload.Data.Description = description
				return entries, nil
			}
		}
		return nil, domain.ErrNotFound{Kind: "offline form", ID: id}
	})
}

// Delete removes entry id. Deleting an absent id is a no-op.
func (q *Queue) Delete(ctx context.Context, id string) error {
	return q.mutate(ctx, observability.OpQueueDelete, "delete", func(entries []Entry) ([]Entry, error) {
		out := entries[:0]
		for _, e := range entries {
			if e.ID != id {
				out = append(out, e)
			}
		}
		if len(out) == len(entries) {
			return nil, nil
		}
		return out, nil
	})
}

// Clear empties the queue and removes the persisted record.
func (q *Queue) Clear(ctx context.Context) error {
	err := observability.Instrument(ctx, q.metrics, q.tracer, observability.OpQueueClear, func(ctx context.Context) error {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.loaded = true
		if err := q.store.Remove(ctx, StorageKey); err != nil {
			q.logger.Error("clear offline queue", "key", StorageKey, "error", err)
			return &domain.StorageError{Op: "clear", Key: StorageKey, Err: err}
		}
		q.entries = nil
		return nil
	})
	if err == nil {
		q.notify(0)
	}
	return err
}

// mutate applies fn to a copy of the entries. fn returns nil entries to
// signal that nothing changed.
func (q *Queue) mutate(ctx context.Context, op, verb string, fn func([]Entry) ([]Entry, error)) error {
	err := observability.Instrument(ctx, q.metrics, q.tracer, op, func(ctx context.Context) error {
		q.mu.Lock()
		defer q.mu.Unlock()
		if err := q.ensureLoaded(ctx); err != nil {
			return err
		}
		next, err := fn(q.snapshotLocked())
		if err != nil || next == nil {
			return err
		}
		if err := q.persistLocked(ctx, verb, next); err != nil {
			return err
		}
		q.entries = next
		return nil
	})
	if err == nil {
		q.notify(q.Count())
	}
	return err
}

func (q *Queue) persistLocked(ctx context.Context, verb string, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	raw, err := json.Marshal(entries)
	if err == nil {
		err = q.store.Set(ctx, StorageKey, raw)
	}
	if err != nil {
		q.logger.Error("persist offline queue", "op", verb, "key", StorageKey, "entries", len(entries), "error", err)
		return &domain.StorageError{Op: verb, Key: StorageKey, Err: err}
	}
	return nil
}

func (q *Queue) snapshotLocked() []Entry {
	if len(q.entries) == 0 {
		return []Entry{}
	}
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

func (q *Queue) indexLocked(id string) int {
	for i, e := range q.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// Subscribe returns a channel receiving the latest count after every change.
// Slow readers only see the most recent value. cancel closes the channel.
func (q *Queue) Subscribe() (<-chan int, func()) {
	ch := make(chan int, 1)
	q.subMu.Lock()
	id := q.nextSub
	q.nextSub++
	q.subs[id] = ch
	q.subMu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			q.subMu.Lock()
			delete(q.subs, id)
			q.subMu.Unlock()
			close(ch)
		})
	}
}

func (q *Queue) notify(count int) {
	q.subMu.Lock()
	defer q.subMu.Unlock()
	for _, ch := range q.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- count:
		default:
		}
	}
}
