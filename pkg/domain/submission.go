package domain

import "time"

// Submission is the body posted to the form_data endpoint. Title is kept
// locally for display in the offline list and is never transmitted.
type Submission struct {
	Title        string         `json:"title,omitempty"`
	FormID       string         `json:"_form_id"`
	ReadOnly     bool           `json:"READ_ONLY"`
	Data         SubmissionData `json:"data"`
	CompanyOwner string         `json:"_company_owner,omitempty"`
	User         string         `json:"user,omitempty"`
}

// SubmissionData is the mission payload of a submission.
type SubmissionData struct {
	Description string       `json:"description"`
	Photo       PhotoRef     `json:"photo"`
	Asset       NamedRef     `json:"asset"`
	Driver      DriverRef    `json:"driver"`
	Container   NamedRef     `json:"bac"`
	Loc         GeoJSONPoint `json:"loc"`
	Date        string       `json:"date"`
}

// PhotoRef wraps the encoded photo.
type PhotoRef struct {
	Photo string `json:"photo"`
}

// NamedRef references a selected record by id and display name.
type NamedRef struct {
	Name string `json:"name"`
	ID   string `json:"_id"`
}

// DriverRef references the selected driver.
type DriverRef struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	ID        string `json:"_id"`
}

// GeoJSONPoint is a GeoJSON point; Coordinates are [longitude, latitude].
type GeoJSONPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// Wire returns a copy of s stripped of local-only fields.
func (s Submission) Wire() Submission {
	s.Title = ""
	return s
}

// Compose builds the submission body for a draft. A draft without a location
// is encoded at [0, 0].
func Compose(d FormDraft, formID, title string, user User) Submission {
	sub := Submission{
		Title:        title,
		FormID:       formID,
		CompanyOwner: string(user.CompanyOwner),
		User:         user.ID,
		Data: SubmissionData{
			Description: d.Description,
			Photo:       PhotoRef{Photo: d.Photo},
			Loc:         GeoJSONPoint{Type: "Point"},
			Date:        d.Date,
		},
	}
	if a := d.SelectedAsset; a != nil {
		sub.Data.Asset = NamedRef{Name: a.Name, ID: a.ID}
	}
	if dr := d.SelectedDriver; dr != nil {
		sub.Data.Driver = DriverRef{FirstName: dr.FirstName, LastName: dr.LastName, ID: dr.ID}
	}
	if c := d.SelectedContainer; c != nil {
		sub.Data.Container = NamedRef{Name: c.Name, ID: c.ID}
	}
	if loc := d.Location; loc != nil {
		sub.Data.Loc.Coordinates = [2]float64{loc.Longitude, loc.Latitude}
	}
	return sub
}

// OfflineFormEntry is a submission waiting in the local queue.
type OfflineFormEntry struct {
	ID         string     `json:"id"`
	Title      string     `json:"title,omitempty"`
	Payload    Submission `json:"data"`
	EnqueuedAt time.Time  `json:"timestamp"`
}
