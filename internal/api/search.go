package api

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"fieldmission/internal/autocomplete"
	"fieldmission/pkg/domain"
)

type queryBody struct {
	Query   map[string]any `json:"query"`
	Options queryOptions   `json:"options"`
}

type queryOptions struct {
	Populate []populate     `json:"populate,omitempty"`
	SortBy   map[string]int `json:"sortBy"`
}

type populate struct {
	Path   string `json:"path"`
	Select string `json:"select"`
}

// regexFilter matches field values containing term, ignoring case.
func regexFilter(term string) map[string]string {
	return map[string]string{"$regex": regexp.QuoteMeta(term), "$options": "i"}
}

func orFilter(term string, fields ...string) []map[string]any {
	clauses := make([]map[string]any, 0, len(fields))
	for _, f := range fields {
		clauses = append(clauses, map[string]any{f: regexFilter(term)})
	}
	return clauses
}

type assetRecord struct {
	ID           string `json:"_id"`
	AltID        string `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Model        string `json:"model"`
	LicensePlate string `json:"licensePlate"`
}

type driverRecord struct {
	ID        string `json:"_id"`
	AltID     string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type geodataRecord struct {
	ID         string `json:"_id"`
	Category   string `json:"category"`
	Properties struct {
		Nom         string     `json:"Nom"`
		Description string     `json:"Description"`
		Capacity    flexNumber `json:"capacity"`
	} `json:"properties"`
}

// flexNumber decodes a JSON number or numeric string; anything else is zero.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*n = flexNumber(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*n = flexNumber(f)
			return nil
		}
	}
	*n = 0
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// search runs an authenticated, throttled entity query and decodes the result
// page into out.
func (c *Client) search(ctx context.Context, entity string, build func(owner string) queryBody, out any) error {
	sess, err := c.sessions.Require(ctx)
	if err != nil {
		return err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("throttle %s query: %w", entity, err)
		}
	}
	body := build(string(sess.User.CompanyOwner))
	var resp struct {
		Result json.RawMessage `json:"result"`
	}
	if _, err := c.do(ctx, fmt.Sprintf("/%s/query?limit=%d&page=1", entity, c.pageSize), sess.Token, body, &resp); err != nil {
		return err
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return &domain.NetworkError{Op: "POST /" + entity + "/query", Err: fmt.Errorf("decode result: %w", err)}
	}
	return nil
}

// QueryAssets searches assets by name or license plate, most recent first.
func (c *Client) QueryAssets(ctx context.Context, term string) ([]domain.Asset, error) {
	var records []assetRecord
	err := c.search(ctx, "asset", func(owner string) queryBody {
		q := map[string]any{"_company_owner": owner}
		if t := strings.TrimSpace(term); t != "" {
			q["$or"] = orFilter(t, "name", "licensePlate")
		}
		return queryBody{Query: q, Options: queryOptions{
			Populate: []populate{{Path: "_asset", Select: "name"}},
			SortBy:   map[string]int{"from_dt": -1},
		}}
	}, &records)
	if err != nil {
		return nil, err
	}
	assets := make([]domain.Asset, 0, len(records))
	for _, r := range records {
		assets = append(assets, domain.Asset{
			ID:           firstNonEmpty(r.ID, r.AltID),
			Name:         r.Name,
			Type:         r.Type,
			Model:        r.Model,
			LicensePlate: r.LicensePlate,
		})
	}
	return assets, nil
}

// QueryDrivers searches drivers by first or last name, most recent first.
func (c *Client) QueryDrivers(ctx context.Context, term string) ([]domain.Driver, error) {
	var records []driverRecord
	err := c.search(ctx, "driver", func(owner string) queryBody {
		q := map[string]any{"_company_owner": owner}
		if t := strings.TrimSpace(term); t != "" {
			q["$or"] = orFilter(t, "first_name", "last_name")
		}
		return queryBody{Query: q, Options: queryOptions{SortBy: map[string]int{"from_dt": -1}}}
	}, &records)
	if err != nil {
		return nil, err
	}
	drivers := make([]domain.Driver, 0, len(records))
	for _, r := range records {
		drivers = append(drivers, domain.Driver{
			ID:        firstNonEmpty(r.ID, r.AltID),
			Name:      strings.TrimSpace(r.FirstName + " " + r.LastName),
			FirstName: r.FirstName,
			LastName:  r.LastName,
			Email:     r.Email,
			Phone:     r.Phone,
		})
	}
	return drivers, nil
}

// QueryContainers searches point geodata by name, newest first.
func (c *Client) QueryContainers(ctx context.Context, term string) ([]domain.Container, error) {
	var records []geodataRecord
	err := c.search(ctx, "geodata", func(owner string) queryBody {
		q := map[string]any{"_company_owner": owner, "geometry.type": "Point"}
		if t := strings.TrimSpace(term); t != "" {
			q["properties.Nom"] = regexFilter(t)
		}
		return queryBody{Query: q, Options: queryOptions{SortBy: map[string]int{"creation_dt": -1}}}
	}, &records)
	if err != nil {
		return nil, err
	}
	containers := make([]domain.Container, 0, len(records))
	for _, r := range records {
		containers = append(containers, domain.Container{
			ID:       r.ID,
			Name:     firstNonEmpty(r.Properties.Nom, "Unnamed"),
			Location: r.Properties.Description,
			Capacity: float64(r.Properties.Capacity),
			Type:     firstNonEmpty(r.Category, "Point"),
		})
	}
	return containers, nil
}

// Searchers exposes the three entity searches as selector fetchers.
type Searchers struct {
	Assets     autocomplete.Fetcher[domain.Asset]
	Drivers    autocomplete.Fetcher[domain.Driver]
	Containers autocomplete.Fetcher[domain.Container]
}

// Searchers returns fetchers bound to c.
func (c *Client) Searchers() Searchers {
	return Searchers{
		Assets:     c.QueryAssets,
		Drivers:    c.QueryDrivers,
		Containers: c.QueryContainers,
	}
}
