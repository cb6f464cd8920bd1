// Package export renders tabular reports as downloadable CSV or XLSX documents.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/flexidesk/backend/internal/domain/shared"
)

// Format is an output file format.
type Format string

// Supported formats
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Content types
const (
	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ParseFormat maps a query value to a Format. Empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	default:
		return "", shared.NewValidationError("unsupported export format %q", s)
	}
}

// Table is an ordered header row plus data rows. A table with a Placeholder
// is rendered as that plain message instead of a grid.
type Table struct {
	Headers     []string
	Rows        [][]string
	Placeholder string
	// Truncated is set when the source data hit the fetch ceiling
	Truncated bool
}

// NewPlaceholder returns a table that renders as msg.
func NewPlaceholder(msg string) *Table {
	return &Table{Placeholder: msg}
}

// Document is a rendered export ready to be served.
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
	Truncated   bool
	// ArchiveKey is the object key when the document was archived
	ArchiveKey string
}

// Filename builds "<base>-YYYY-MM-DD.<ext>".
func Filename(base string, format Format, now time.Time) string {
	return fmt.Sprintf("%s-%s.%s", base, now.Format("2006-01-02"), format)
}

// Render encodes t in the given format.
func Render(t *Table, format Format, base string, now time.Time) (*Document, error) {
	doc := &Document{
		Filename:  Filename(base, format, now),
		Truncated: t.Truncated,
	}
	switch format {
	case FormatXLSX:
		body, err := EncodeXLSX(t)
		if err != nil {
			return nil, err
		}
		doc.ContentType = ContentTypeXLSX
		doc.Body = body
	default:
		doc.ContentType = ContentTypeCSV
		doc.Body = EncodeCSV(t)
	}
	return doc, nil
}
