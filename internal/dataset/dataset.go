// Package dataset parses user-uploaded evaluation datasets and encodes
// document uploads for ingestion.
package dataset

import (
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Table is a parsed tabular dataset. Column order follows the source
// file; every row carries a value for every column, empty cells
// included.
type Table struct {
	Columns []string
	Rows    []map[string]any
}

// RowCount returns the number of data rows.
func (t *Table) RowCount() int { return len(t.Rows) }

// Preview returns up to n rows for display.
func (t *Table) Preview(n int) []map[string]any {
	if len(t.Rows) <= n {
		return t.Rows
	}
	return t.Rows[:n]
}

// ParseUpload parses an uploaded dataset by file extension. CSV and
// XLSX are supported; anything else is rejected.
func ParseUpload(filename string, r io.Reader) (*Table, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return parseCSV(r)
	case ".xlsx":
		return parseXLSX(r)
	default:
		return nil, fmt.Errorf("dataset: unsupported file format %q, please upload a CSV or XLSX file", filepath.Ext(filename))
	}
}

func parseCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("dataset: file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("dataset: read csv header: %w", err)
	}

	t := &Table{Columns: header}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dataset: read csv row: %w", err)
		}
		t.Rows = append(t.Rows, rowFromRecord(header, record))
	}
	return t, nil
}

func parseXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("dataset: open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("dataset: workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("dataset: read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("dataset: file is empty")
	}

	t := &Table{Columns: rows[0]}
	for _, record := range rows[1:] {
		t.Rows = append(t.Rows, rowFromRecord(rows[0], record))
	}
	return t, nil
}

// rowFromRecord zips a record against the header, padding short rows
// with empty strings. Excel omits trailing empty cells.
func rowFromRecord(header, record []string) map[string]any {
	row := make(map[string]any, len(header))
	for i, col := range header {
		if i < len(record) {
			row[col] = record[i]
		} else {
			row[col] = ""
		}
	}
	return row
}

var mimeTypes = map[string]string{
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// DataURL encodes an uploaded document as a base64 data URL, the
// content form the ingestion API accepts for binary documents.
func DataURL(filename string, content []byte) string {
	mime, ok := mimeTypes[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(content)
}
