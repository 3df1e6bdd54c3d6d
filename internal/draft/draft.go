// Package draft holds the single in-progress mission form.
package draft

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldmission/pkg/domain"
)

// Store guards the current draft. Values handed in and out are copies.
type Store struct {
	mu    sync.Mutex
	draft domain.FormDraft
	id    string
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the source of the default date.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// New returns an empty draft dated today.
func New(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.Reset()
	return s
}

// ID identifies the current draft; it changes on every Reset.
func (s *Store) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// SetAsset selects an asset; nil clears it.
func (s *Store) SetAsset(a *domain.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft.SelectedAsset = clonePtr(a)
}

// SetDriver selects a driver; nil clears it.
func (s *Store) SetDriver(d *domain.Driver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft.SelectedDriver = clonePtr(d)
}

// SetContainer selects a container; nil clears it.
func (s *Store) SetContainer(c *domain.Container) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft.SelectedContainer = clonePtr(c)
}

// SetPhoto stores the encoded photo.
func (s *Store) SetPhoto(photo string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft.Photo = photo
}

// SetDescription stores the free-text description.
func (s *Store) SetDescription(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft.Description = text
}

// SetLocation replaces the fix wholesale; nil clears it.
func (s *Store) SetLocation(fix *domain.GeoFix) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft.Location = clonePtr(fix)
}

// SetDate sets the mission day (YYYY-MM-DD).
func (s *Store) SetDate(date string) error {
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return fmt.Errorf("parse date %q: %w", date, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft.Date = date
	return nil
}

// Snapshot returns a deep copy of the draft.
func (s *Store) Snapshot() domain.FormDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.draft
	d.SelectedAsset = clonePtr(d.SelectedAsset)
	d.SelectedDriver = clonePtr(d.SelectedDriver)
	d.SelectedContainer = clonePtr(d.SelectedContainer)
	d.Location = clonePtr(d.Location)
	return d
}

// Validate checks the required fields of the current draft.
func (s *Store) Validate() error {
	return s.Snapshot().Validate()
}

// Reset empties the draft, dates it today and assigns a new id.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = domain.FormDraft{Date: s.now().Format(domain.DateLayout)}
	s.id = uuid.NewString()
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
