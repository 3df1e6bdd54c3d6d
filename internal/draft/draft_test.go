package draft

import (
	"errors"
	"testing"
	"time"

	"fieldmission/pkg/domain"
)

func fixedClock() time.Time { return time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC) }

func TestNewDraftIsDatedToday(t *testing.T) {
	s := New(WithClock(fixedClock))
	if got := s.Snapshot().Date; got != "2026-05-04" {
		t.Fatalf("expected today's date, got %q", got)
	}
	if s.ID() == "" {
		t.Fatalf("expected draft id")
	}
}

func TestValidateListsMissingFields(t *testing.T) {
	s := New(WithClock(fixedClock))
	s.SetDescription("   ")
	err := s.Validate()
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, f := range []string{"asset", "driver", "container", "description"} {
		if !ve.Has(f) {
			t.Fatalf("expected %s to be missing: %v", f, ve.Fields)
		}
	}

	s.SetAsset(&domain.Asset{ID: "a1", Name: "Truck"})
	s.SetDriver(&domain.Driver{ID: "d1", Name: "Jean Dupont"})
	s.SetContainer(&domain.Container{ID: "b1", Name: "Bac 1"})
	s.SetDescription("overflowing")
	if err := s.Validate(); err != nil {
		t.Fatalf("expected valid draft without location, got %v", err)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New()
	asset := &domain.Asset{ID: "a1", Name: "Truck"}
	s.SetAsset(asset)
	asset.Name = "mutated"

	snap := s.Snapshot()
	if snap.SelectedAsset.Name != "Truck" {
		t.Fatalf("store kept caller pointer")
	}
	snap.SelectedAsset.Name = "changed"
	if s.Snapshot().SelectedAsset.Name != "Truck" {
		t.Fatalf("snapshot aliases store state")
	}
}

func TestSetLocationReplacesFix(t *testing.T) {
	s := New()
	s.SetLocation(&domain.GeoFix{Latitude: 1, Longitude: 2, Address: "old"})
	s.SetLocation(&domain.GeoFix{Latitude: 3, Longitude: 4})
	loc := s.Snapshot().Location
	if loc.Latitude != 3 || loc.Address != "" {
		t.Fatalf("expected wholesale replacement, got %+v", loc)
	}
	s.SetLocation(nil)
	if s.Snapshot().Location != nil {
		t.Fatalf("expected cleared location")
	}
}

func TestSetDateRejectsInvalid(t *testing.T) {
	s := New(WithClock(fixedClock))
	if err := s.SetDate("04/05/2026"); err == nil {
		t.Fatalf("expected parse error")
	}
	if err := s.SetDate("2026-01-31"); err != nil {
		t.Fatalf("set date: %v", err)
	}
	if s.Snapshot().Date != "2026-01-31" {
		t.Fatalf("date not stored")
	}
}

func TestResetClearsAndRotatesID(t *testing.T) {
	s := New(WithClock(fixedClock))
	id := s.ID()
	s.SetDescription("x")
	s.SetPhoto("data:image/jpeg;base64,AAAA")
	s.SetDate("2026-01-01")
	s.Reset()
	snap := s.Snapshot()
	if snap.Description != "" || snap.Photo != "" || snap.Date != "2026-05-04" {
		t.Fatalf("unexpected draft after reset: %+v", snap)
	}
	if s.ID() == id {
		t.Fatalf("expected new draft id")
	}
}
