// Package report renders detection rows as downloadable files.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/therealutkarshpriyadarshi/tooldetect/pkg/models"
)

// Supported export formats
const (
	FormatCSV = "csv"
	FormatPDF = "pdf"
)

// ErrUnknownFormat is returned for an export format other than csv or pdf
var ErrUnknownFormat = errors.New("unknown export format")

// Header is the column order shared by every export format
func Header() []string {
	header := []string{"id", "user_id"}
	header = append(header, models.ToolClasses...)
	return append(header, "total", "created_at")
}

func row(d *models.Detection) []string {
	record := []string{
		strconv.FormatInt(d.ID, 10),
		strconv.FormatInt(d.UserID, 10),
	}
	for _, v := range d.Values() {
		record = append(record, strconv.Itoa(v))
	}
	return append(record,
		strconv.Itoa(d.Total()),
		d.CreatedAt.UTC().Format(time.RFC3339),
	)
}

// ContentType returns the MIME type of a format
func ContentType(format string) string {
	switch format {
	case FormatCSV:
		return "text/csv"
	case FormatPDF:
		return "application/pdf"
	}
	return "application/octet-stream"
}

// Filename returns the attachment name for an export generated at t
func Filename(format string, t time.Time) string {
	return fmt.Sprintf("detections_%s.%s", t.UTC().Format("20060102_150405"), format)
}

// Write renders rows in the given format
func Write(w io.Writer, format string, rows []*models.Detection, generatedAt time.Time) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, rows)
	case FormatPDF:
		return WritePDF(w, rows, generatedAt)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// WriteCSV writes rows as CSV with a header line
func WriteCSV(w io.Writer, rows []*models.Detection) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(Header()); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, d := range rows {
		if err := writer.Write(row(d)); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
