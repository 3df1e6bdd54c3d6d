// Package submission turns the current draft into a remote save or a queued
// offline entry, and syncs queued entries on demand.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fieldmission/internal/blob"
	"fieldmission/internal/connectivity"
	"fieldmission/internal/draft"
	"fieldmission/internal/geo"
	"fieldmission/internal/logging"
	"fieldmission/internal/observability"
	"fieldmission/internal/photo"
	"fieldmission/internal/queue"
	"fieldmission/pkg/domain"
)

// ErrLocationRequired blocks a submission without a position. It wraps the
// geolocation cause.
var ErrLocationRequired = errors.New("location required to submit")

// Saver posts a submission to the remote API.
type Saver interface {
	SaveFormData(ctx context.Context, sub domain.Submission) error
}

// SessionSource provides the signed-in user.
type SessionSource interface {
	Load(ctx context.Context) (domain.Session, bool)
}

// Mode says where a submission went.
type Mode string

const (
	// ModeRemote means the server accepted the submission.
	ModeRemote Mode = "remote"
	// ModeQueued means the submission waits in the offline queue.
	ModeQueued Mode = "queued"
)

// Outcome describes a successful submit.
type Outcome struct {
	Mode       Mode
	EntryID    string
	Submission domain.Submission
}

// Coordinator wires the draft to its destinations. Draft, Queue, API and
// Session are required; a nil Probe counts as online and a nil Photos store
// skips photo cleanup.
type Coordinator struct {
	Draft    *draft.Store
	Queue    *queue.Queue
	API      Saver
	Probe    connectivity.Probe
	Locator  geo.Locator
	Geocoder geo.Geocoder
	Session  SessionSource
	Photos   blob.Store
	Location geo.Options
	Metrics  observability.MetricsRecorder
	Tracer   observability.Tracer
	Logger   *slog.Logger
}

func (c *Coordinator) logger() *slog.Logger { return logging.OrDiscard(c.Logger) }

func (c *Coordinator) online(ctx context.Context) bool {
	if c.Probe == nil {
		return true
	}
	return c.Probe.Online(ctx)
}

// Submit validates the draft, acquires a position and either saves remotely
// or queues the submission. The draft is reset only when the submission was
// handed off; every error leaves it untouched.
func (c *Coordinator) Submit(ctx context.Context, formID, title string) (Outcome, error) {
	var out Outcome
	err := observability.Instrument(ctx, c.Metrics, c.Tracer, observability.OpSubmit, func(ctx context.Context) error {
		var err error
		out, err = c.submit(ctx, formID, title)
		return err
	})
	return out, err
}

func (c *Coordinator) submit(ctx context.Context, formID, title string) (Outcome, error) {
	if err := c.Draft.Validate(); err != nil {
		return Outcome{}, err
	}
	sess, ok := c.Session.Load(ctx)
	if !ok {
		return Outcome{}, domain.ErrNotAuthenticated
	}

	current := c.Draft.Snapshot()
	opts := c.Location
	opts.Previous = current.Location
	if opts.Logger == nil {
		opts.Logger = c.Logger
	}
	fix, err := geo.Acquire(ctx, c.Locator, c.Geocoder, opts)
	if err != nil {
		c.logger().Warn("submission blocked without location", "error", err)
		return Outcome{}, fmt.Errorf("%w: %w", ErrLocationRequired, err)
	}
	c.Draft.SetLocation(&fix)

	draftID := c.Draft.ID()
	sub := domain.Compose(c.Draft.Snapshot(), formID, title, sess.User)

	if c.online(ctx) {
		if err := c.API.SaveFormData(ctx, sub); err != nil {
			c.logger().Error("remote submission failed", "form", formID, "error", err)
			return Outcome{}, err
		}
		c.handOff(ctx, draftID)
		c.logger().Info("submission saved", "form", formID)
		return Outcome{Mode: ModeRemote, Submission: sub}, nil
	}

	id, err := c.Queue.Enqueue(ctx, sub)
	if err != nil {
		return Outcome{}, err
	}
	c.handOff(ctx, draftID)
	c.logger().Info("submission queued offline", "form", formID, "entry", id)
	return Outcome{Mode: ModeQueued, EntryID: id, Submission: sub}, nil
}

// handOff resets the draft and drops its stored photo; the submission body
// already carries the encoded image.
func (c *Coordinator) handOff(ctx context.Context, draftID string) {
	c.Draft.Reset()
	if c.Photos == nil {
		return
	}
	if err := photo.Release(ctx, c.Photos, draftID); err != nil {
		c.logger().Warn("release draft photo", "draft", draftID, "error", err)
	}
}

// Sync sends one queued entry. The entry is removed only after the server
// accepted it.
func (c *Coordinator) Sync(ctx context.Context, id string) error {
	return observability.Instrument(ctx, c.Metrics, c.Tracer, observability.OpSync, func(ctx context.Context) error {
		return c.sync(ctx, id)
	})
}

func (c *Coordinator) sync(ctx context.Context, id string) error {
	entry, ok := c.Queue.Get(id)
	if !ok {
		return domain.ErrNotFound{Kind: "offline form", ID: id}
	}
	if !c.online(ctx) {
		return domain.ErrOffline
	}
	if err := c.API.SaveFormData(ctx, entry.Payload); err != nil {
		c.logger().Error("sync failed", "entry", id, "error", err)
		return err
	}
	if err := c.Queue.Delete(ctx, id); err != nil {
		return fmt.Errorf("remove synced entry %s: %w", id, err)
	}
	c.logger().Info("offline form synced", "entry", id)
	return nil
}

// SyncFailure records an entry that could not be sent.
type SyncFailure struct {
	ID  string
	Err error
}

// SyncReport summarizes a SyncAll run.
type SyncReport struct {
	Synced    []string
	Failed    []SyncFailure
	Remaining int
	// Err is set when the run stopped early for lack of connectivity.
	Err error
}

// SyncAll sends every queued entry in order. It stops at the first
// connectivity failure; server rejections are recorded and skipped.
func (c *Coordinator) SyncAll(ctx context.Context) SyncReport {
	var report SyncReport
	for _, entry := range c.Queue.List() {
		if err := ctx.Err(); err != nil {
			report.Err = err
			break
		}
		err := c.Sync(ctx, entry.ID)
		if err == nil {
			report.Synced = append(report.Synced, entry.ID)
			continue
		}
		if domain.IsNotFound(err) {
			continue
		}
		if unreachable(err) {
			report.Err = err
			break
		}
		report.Failed = append(report.Failed, SyncFailure{ID: entry.ID, Err: err})
	}
	report.Remaining = c.Queue.Count()
	return report
}

// unreachable reports errors that make further attempts pointless.
func unreachable(err error) bool {
	if errors.Is(err, domain.ErrOffline) || errors.Is(err, domain.ErrNotAuthenticated) {
		return true
	}
	var ne *domain.NetworkError
	return errors.As(err, &ne) && ne.Status == 0
}
