package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestComposeBuildsWireBody(t *testing.T) {
	d := completeDraft()
	d.Photo = "data:image/jpeg;base64,AAAA"
	d.Location = &GeoFix{Latitude: 14.7, Longitude: -17.4}
	user := User{ID: "u1", CompanyOwner: "co1"}

	sub := Compose(d, "form-1", "Collecte", user)
	if sub.FormID != "form-1" || sub.ReadOnly || sub.User != "u1" || sub.CompanyOwner != "co1" {
		t.Fatalf("unexpected envelope %+v", sub)
	}
	if sub.Data.Loc.Type != "Point" || sub.Data.Loc.Coordinates != [2]float64{-17.4, 14.7} {
		t.Fatalf("coordinates must be [lon, lat], got %+v", sub.Data.Loc)
	}
	if sub.Data.Driver.FirstName != "Awa" || sub.Data.Driver.ID != "d1" {
		t.Fatalf("unexpected driver ref %+v", sub.Data.Driver)
	}
	if sub.Data.Container.Name != "Bac Nord" || sub.Data.Asset.ID != "a1" {
		t.Fatalf("unexpected refs %+v", sub.Data)
	}
	if sub.Title != "Collecte" {
		t.Fatalf("expected local title to be kept, got %q", sub.Title)
	}
}

func TestComposeWithoutLocationEncodesOrigin(t *testing.T) {
	sub := Compose(completeDraft(), "f", "", User{})
	if sub.Data.Loc.Coordinates != [2]float64{0, 0} {
		t.Fatalf("expected origin, got %v", sub.Data.Loc.Coordinates)
	}
}

func TestWireStripsTitle(t *testing.T) {
	sub := Compose(completeDraft(), "f", "Local title", User{ID: "u"})
	b, err := json.Marshal(sub.Wire())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(b)
	if strings.Contains(body, "Local title") || strings.Contains(body, `"title"`) {
		t.Fatalf("title leaked into wire body: %s", body)
	}
	for _, key := range []string{`"_form_id":"f"`, `"READ_ONLY":false`, `"bac":`, `"loc":`} {
		if !strings.Contains(body, key) {
			t.Fatalf("expected %s in %s", key, body)
		}
	}
	if sub.Title != "Local title" {
		t.Fatalf("Wire must not mutate receiver")
	}
}
