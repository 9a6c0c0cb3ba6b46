// Package csvbridge converts observation collections to and from CSV files
// with one header row named after the record fields.
package csvbridge

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"treewalk/pkg/domain"
)

// Column names in file order.
const (
	ColumnID        = "id"
	ColumnSpecies   = "species"
	ColumnCondition = "condition"
	ColumnNotes     = "notes"
	ColumnLat       = "lat"
	ColumnLng       = "lng"
	ColumnCreatedAt = "createdAt"
	ColumnImageID   = "imageId"
)

// Columns returns the header row written by Export.
func Columns() []string {
	return []string{ColumnID, ColumnSpecies, ColumnCondition, ColumnNotes, ColumnLat, ColumnLng, ColumnCreatedAt, ColumnImageID}
}

// Filename is the download name for exported files.
const Filename = "treewalk.csv"

// ContentType is the media type of exported files.
const ContentType = "text/csv; charset=utf-8"

// Export writes a header and one row per record, in collection order.
func Export(w io.Writer, records []domain.TreeObservation) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Columns()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		if err := writer.Write(row(r)); err != nil {
			return fmt.Errorf("write row %s: %w", r.ID, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func row(r domain.TreeObservation) []string {
	imageID := ""
	if r.ImageID != nil {
		imageID = *r.ImageID
	}
	return []string{
		r.ID,
		r.Species,
		string(r.Condition),
		r.Notes,
		formatCoordinate(r.Lat),
		formatCoordinate(r.Lng),
		r.CreatedAt,
		imageID,
	}
}

// formatCoordinate uses the shortest decimal text that parses back to v.
func formatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
