package queue

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

var csvHeader = []string{
	"id", "title", "enqueued_at", "form_id", "date", "description",
	"asset_id", "asset_name", "driver_id", "driver_name", "container_id", "container_name",
	"longitude", "latitude",
}

// Export writes the queued entries to w as JSON or CSV.
func (q *Queue) Export(w io.Writer, format string) error {
	entries := q.List()
	switch strings.ToLower(format) {
	case "", FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
		for _, e := range entries {
			d := e.Payload.Data
			row := []string{
				e.ID,
				e.Title,
				e.EnqueuedAt.UTC().Format(time.RFC3339),
				e.Payload.FormID,
				d.Date,
				d.Description,
				d.Asset.ID,
				d.Asset.Name,
				d.Driver.ID,
				strings.TrimSpace(d.Driver.FirstName + " " + d.Driver.LastName),
				d.Container.ID,
				d.Container.Name,
				strconv.FormatFloat(d.Loc.Coordinates[0], 'f', -1, 64),
				strconv.FormatFloat(d.Loc.Coordinates[1], 'f', -1, 64),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}
