// Package geo acquires the device position for a submission.
package geo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fieldmission/internal/logging"
	"fieldmission/pkg/domain"
)

// Defaults applied when Options leave a bound unset.
const (
	DefaultTimeout = 15 * time.Second
	DefaultMaxAge  = 60 * time.Second
)

// Locator is the position source of the device.
type Locator interface {
	// RequestPermission asks for foreground location access.
	RequestPermission(ctx context.Context) (bool, error)
	CurrentPosition(ctx context.Context) (domain.GeoFix, error)
}

// Geocoder resolves coordinates into a postal address.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

// Options bound one acquisition attempt.
type Options struct {
	Timeout time.Duration
	// MaxAge is how old Previous may be and still be reused once permission
	// has been granted for this attempt.
	MaxAge time.Duration
	// Previous is the last fix already held by the draft, if any.
	Previous *domain.GeoFix
	Now      func() time.Time
	Logger   *slog.Logger
}

// Acquire returns a fix no older than MaxAge. Permission is requested once per
// attempt, before any reuse of Previous, and the wait is bounded by Timeout. The address is looked up when geocoder is set;
// a failed lookup leaves the address empty.
func Acquire(ctx context.Context, loc Locator, geocoder Geocoder, opts Options) (domain.GeoFix, error) {
	logger := logging.OrDiscard(opts.Logger)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if loc == nil {
		return domain.GeoFix{}, domain.ErrLocationUnavailable
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	granted, err := loc.RequestPermission(ctx)
	if err != nil {
		return domain.GeoFix{}, fmt.Errorf("request location permission: %w", errors.Join(domain.ErrPermissionDenied, err))
	}
	if !granted {
		return domain.GeoFix{}, domain.ErrPermissionDenied
	}
	if prev := opts.Previous; prev != nil && !prev.Timestamp.IsZero() && now().Sub(prev.Timestamp) <= maxAge {
		return *prev, nil
	}

	fix, err := loc.CurrentPosition(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) || errors.Is(err, domain.ErrLocationUnavailable) {
			return domain.GeoFix{}, err
		}
		return domain.GeoFix{}, fmt.Errorf("current position: %w", errors.Join(domain.ErrLocationUnavailable, err))
	}
	if fix.Timestamp.IsZero() {
		fix.Timestamp = now()
	}

	if geocoder != nil {
		addr, err := geocoder.Reverse(ctx, fix.Latitude, fix.Longitude)
		if err != nil {
			logger.Warn("reverse geocoding failed", "error", err)
		} else {
			fix.Address = addr
		}
	}
	return fix, nil
}

// StaticLocator always grants permission and reports a fixed position.
type StaticLocator struct {
	Latitude  float64
	Longitude float64
	Accuracy  *float64
}

// RequestPermission implements Locator.
func (StaticLocator) RequestPermission(context.Context) (bool, error) { return true, nil }

// CurrentPosition implements Locator.
func (s StaticLocator) CurrentPosition(ctx context.Context) (domain.GeoFix, error) {
	if err := ctx.Err(); err != nil {
		return domain.GeoFix{}, err
	}
	return domain.GeoFix{Latitude: s.Latitude, Longitude: s.Longitude, Accuracy: s.Accuracy, Timestamp: time.Now()}, nil
}

// DeniedLocator refuses permission.
type DeniedLocator struct{}

// RequestPermission implements Locator.
func (DeniedLocator) RequestPermission(context.Context) (bool, error) { return false, nil }

// CurrentPosition implements Locator.
func (DeniedLocator) CurrentPosition(context.Context) (domain.GeoFix, error) {
	return domain.GeoFix{}, domain.ErrPermissionDenied
}
