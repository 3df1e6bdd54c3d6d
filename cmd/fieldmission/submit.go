package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"fieldmission/internal/autocomplete"
	"fieldmission/internal/draft"
	"fieldmission/internal/geo"
	"fieldmission/internal/photo"
	"fieldmission/internal/submission"
	"fieldmission/pkg/domain"
)

func cmdSubmit(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "submit")
	formID := fs.String("form-id", "", "form template id")
	title := fs.String("title", "", "title shown in the offline list (default: form id)")
	asset := fs.String("asset", "", "asset id or name")
	driverRef := fs.String("driver", "", "driver id or name")
	container := fs.String("container", "", "container id or name")
	description := fs.String("description", "", "mission description")
	photoPath := fs.String("photo", "", "photo file to attach")
	date := fs.String("date", "", "mission day YYYY-MM-DD (default today)")
	lat := fs.String("lat", "", "latitude of the current position")
	lon := fs.String("lon", "", "longitude of the current position")
	geocode := fs.Bool("geocode", false, "resolve the position into an address")
	offline := fs.Bool("offline", false, "queue the submission without contacting the server")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *formID == "" {
		return fmt.Errorf("%w: -form-id is required", errUsage)
	}
	if *title == "" {
		*title = *formID
	}

	probe := a.probe(*offline)
	online := probe.Online(ctx)
	d := draft.New()
	s := a.client.Searchers()

	if *asset != "" {
		x, err := resolve(ctx, a, online, s.Assets, *asset, func(v string) domain.Asset { return domain.Asset{ID: v, Name: v} })
		if err != nil {
			return err
		}
		d.SetAsset(&x)
	}
	if *driverRef != "" {
		x, err := resolve(ctx, a, online, s.Drivers, *driverRef, driverFromName)
		if err != nil {
			return err
		}
		d.SetDriver(&x)
	}
	if *container != "" {
		x, err := resolve(ctx, a, online, s.Containers, *container, func(v string) domain.Container { return domain.Container{ID: v, Name: v} })
		if err != nil {
			return err
		}
		d.SetContainer(&x)
	}
	d.SetDescription(*description)
	if *date != "" {
		if err := d.SetDate(*date); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
	}
	if *photoPath != "" {
		uri, err := attachPhoto(ctx, a, d.ID(), *photoPath)
		if err != nil {
			return err
		}
		d.SetPhoto(uri)
		// A handed-off draft gets a new id and its photo is already released.
		draftID := d.ID()
		defer func() {
			if d.ID() != draftID {
				return
			}
			if err := photo.Release(ctx, a.blobs, draftID); err != nil {
				a.logger.Warn("release unsent photo", "draft", draftID, "error", err)
			}
		}()
	}

	var locator geo.Locator
	if *lat != "" || *lon != "" {
		la, errLat := strconv.ParseFloat(*lat, 64)
		lo, errLon := strconv.ParseFloat(*lon, 64)
		if err := errors.Join(errLat, errLon); err != nil {
			return fmt.Errorf("%w: invalid -lat/-lon: %v", errUsage, err)
		}
		locator = geo.StaticLocator{Latitude: la, Longitude: lo}
	}
	var geocoder geo.Geocoder
	if *geocode && online {
		geocoder = geo.NewHTTPGeocoder(a.cfg.GeocoderURL, a.cfg.RequestTimeout)
	}

	coord := &submission.Coordinator{
		Draft:    d,
		Queue:    a.queue,
		API:      a.client,
		Probe:    probe,
		Locator:  locator,
		Geocoder: geocoder,
		Session:  a.sessions,
		Photos:   a.blobs,
		Location: geo.Options{Timeout: a.cfg.LocationTimeout, MaxAge: a.cfg.LocationMaxAge},
		Metrics:  a.metrics,
		Tracer:   a.tracer,
		Logger:   a.logger,
	}
	out, err := coord.Submit(ctx, *formID, *title)
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			return fmt.Errorf("%w: missing %s", errUsage, strings.Join(ve.Fields, ", "))
		}
		return err
	}
	switch out.Mode {
	case submission.ModeQueued:
		a.printf("saved offline as %s (%d waiting)\n", out.EntryID, a.queue.Count())
	default:
		a.printf("submitted\n")
	}
	return nil
}

// resolve picks the record matching value by id or label. Offline, or when
// nothing matches the recent page and the search, value is used verbatim.
func resolve[T domain.Entity](ctx context.Context, a *app, online bool, fetch autocomplete.Fetcher[T], value string, verbatim func(string) T) (T, error) {
	if !online {
		return verbatim(value), nil
	}
	for _, term := range []string{"", value} {
		items, err := fetch(ctx, term)
		if err != nil {
			var zero T
			return zero, err
		}
		for _, item := range items {
			if item.EntityID() == value || strings.EqualFold(item.Label(), value) {
				return item, nil
			}
		}
	}
	a.logger.Warn("no matching record, using value as id", "value", value)
	return verbatim(value), nil
}

// driverFromName builds an unresolved driver whose first word is the first
// name and the remainder the last name.
func driverFromName(v string) domain.Driver {
	first, last, _ := strings.Cut(strings.TrimSpace(v), " ")
	return domain.Driver{ID: v, Name: v, FirstName: first, LastName: strings.TrimSpace(last)}
}

func attachPhoto(ctx context.Context, a *app, draftID, path string) (string, error) {
	// #nosec G304 -- operator supplied photo path
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open photo: %w", err)
	}
	defer f.Close()
	return photo.Attach(ctx, a.blobs, draftID, f, "")
}
