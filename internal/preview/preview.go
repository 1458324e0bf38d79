// Package preview renders a paginated tabular preview of stored files.
// CSV and TSV are supported; the first record is treated as the header row.
package preview

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/tagpipe-io/tagpipe/internal/models"
)

// Table is one page of a tabular file.
type Table struct {
	Headers      []string   `json:"headers"`
	Rows         [][]string `json:"rows"`
	TotalRows    int        `json:"totalRows"`
	TotalColumns int        `json:"totalColumns"`
	FileType     string     `json:"fileType"`
}

// Query selects the page to render.
type Query struct {
	Page     int
	PageSize int
}

// DefaultPageSize is used when the query does not set one.
const DefaultPageSize = 50

// File renders a preview page for the file at path, choosing the delimiter
// from the display name's extension. Unsupported extensions return
// models.ErrForbidden.
func File(path, displayName string, q Query) (*Table, error) {
	var delim rune
	fileType := strings.TrimPrefix(models.ExtensionTagName(displayName), ".")
	switch fileType {
	case "csv":
		delim = ','
	case "tsv":
		delim = '\t'
	default:
		return nil, fmt.Errorf("%w: no tabular preview for %q files", models.ErrForbidden, fileType)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file for preview: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	r := csv.NewReader(f)
	r.Comma = delim
	// Tolerate ragged rows; previews render what is there.
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s file: %w", fileType, err)
	}
	if len(records) == 0 {
		return &Table{Headers: []string{}, Rows: [][]string{}, FileType: fileType}, nil
	}

	headers := records[0]
	body := records[1:]

	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	page := q.Page
	if page < 0 {
		page = 0
	}

	start := page * pageSize
	if start > len(body) {
		start = len(body)
	}
	end := start + pageSize
	if end > len(body) {
		end = len(body)
	}

	rows := make([][]string, 0, end-start)
	rows = append(rows, body[start:end]...)

	return &Table{
		Headers:      headers,
		Rows:         rows,
		TotalRows:    len(body),
		TotalColumns: len(headers),
		FileType:     fileType,
	}, nil
}
