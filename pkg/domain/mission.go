// Package domain defines the mission form entities, selectable records and
// error taxonomy shared by the fieldmission packages.
package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// EntityKind identifies which selector a record belongs to.
type EntityKind string

// Supported selectable entity kinds.
const (
	// KindAsset identifies a vehicle or equipment record.
	KindAsset EntityKind = "asset"
	// KindDriver identifies a driver record.
	KindDriver EntityKind = "driver"
	// KindContainer identifies a collection container ("bac") record backed by geodata.
	KindContainer EntityKind = "container"
)

// Entity is implemented by every record selectable in a form field. Identity is
// the server-assigned id; the label is what a selector displays.
type Entity interface {
	EntityID() string
	Label() string
}

// Asset is a vehicle or piece of equipment.
type Asset struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type,omitempty"`
	Model        string `json:"model,omitempty"`
	LicensePlate string `json:"licensePlate,omitempty"`
}

// EntityID implements Entity.
func (a Asset) EntityID() string { return a.ID }

// Label implements Entity.
func (a Asset) Label() string { return a.Name }

// Driver is a person assigned to a mission.
type Driver struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// EntityID implements Entity.
func (d Driver) EntityID() string { return d.ID }

// Label implements Entity. Falls back to first/last name when Name is unset.
func (d Driver) Label() string {
	if d.Name != "" {
		return d.Name
	}
	return strings.TrimSpace(d.FirstName + " " + d.LastName)
}

// Container is a collection point.
type Container struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Location string  `json:"location,omitempty"`
	Capacity float64 `json:"capacity,omitempty"`
	Type     string  `json:"type,omitempty"`
}

// EntityID implements Entity.
func (c Container) EntityID() string { return c.ID }

// Label implements Entity.
func (c Container) Label() string { return c.Name }

// GeoFix is a single device position. A new fix always replaces the previous one.
type GeoFix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Address   string    `json:"address,omitempty"`
}

// DateLayout is the calendar-day format used by drafts and submissions.
const DateLayout = "2006-01-02"

// FormDraft is the in-progress mission form.
type FormDraft struct {
	SelectedAsset     *Asset     `json:"selectedAsset"`
	SelectedDriver    *Driver    `json:"selectedDriver"`
	SelectedContainer *Container `json:"selectedBac"`
	Photo             string     `json:"photo,omitempty"`
	Description       string     `json:"description"`
	Location          *GeoFix    `json:"location"`
	Date              string     `json:"date"`
}

// MissingFields lists the required fields that are empty. Location is not part
// of draft validity; it is acquired at submit time.
func (d FormDraft) MissingFields() []string {
	var missing []string
	if d.SelectedAsset == nil || d.SelectedAsset.ID == "" {
		missing = append(missing, "asset")
	}
	if d.SelectedDriver == nil || d.SelectedDriver.ID == "" {
		missing = append(missing, "driver")
	}
	if d.SelectedContainer == nil || d.SelectedContainer.ID == "" {
		missing = append(missing, "container")
	}
	if strings.TrimSpace(d.Description) == "" {
		missing = append(missing, "description")
	}
	return missing
}

// Validate returns a *ValidationError when required fields are missing.
func (d FormDraft) Validate() error {
	if missing := d.MissingFields(); len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// User is the authenticated field agent.
type User struct {
	ID           string     `json:"_id"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Login        string     `json:"login"`
	Role         string     `json:"role"`
	CompanyOwner CompanyRef `json:"_company_owner,omitempty"`
	CreatedAt    string     `json:"creation_dt,omitempty"`
}

// CompanyRef is the owning company id. The API returns it either as a bare id
// or as a populated {"_id": ...} document.
type CompanyRef string

// UnmarshalJSON accepts both representations.
func (c *CompanyRef) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*c = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = CompanyRef(s)
		return nil
	}
	var doc struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	*c = CompanyRef(doc.ID)
	return nil
}

// Session is the persisted authentication state.
type Session struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// FormTemplate describes a form the agent can fill.
type FormTemplate struct {
	ID          string `json:"_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}
