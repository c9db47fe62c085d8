package dataset

import (
	"strings"
	"testing"
)

func TestParseUploadCSV(t *testing.T) {
	src := "input_query,expected_answer\nwhat is 2+2,4\ncapital of France,Paris\n"

	table, err := ParseUpload("eval.csv", strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseUpload: %v", err)
	}

	wantCols := []string{"input_query", "expected_answer"}
	if len(table.Columns) != len(wantCols) {
		t.Fatalf("expected columns %v, got %v", wantCols, table.Columns)
	}
	for i, c := range wantCols {
		if table.Columns[i] != c {
			t.Fatalf("expected columns %v, got %v", wantCols, table.Columns)
		}
	}

	if table.RowCount() != 2 {
		t.Fatalf("expected 2 rows, got %d", table.RowCount())
	}
	if table.Rows[1]["expected_answer"] != "Paris" {
		t.Fatalf("unexpected row: %v", table.Rows[1])
	}
}

func TestParseUploadShortRecord(t *testing.T) {
	src := "a,b,c\n1,2\n"

	table, err := ParseUpload("data.csv", strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseUpload: %v", err)
	}
	if table.Rows[0]["c"] != "" {
		t.Fatalf("expected padded empty cell, got %v", table.Rows[0])
	}
}

func TestParseUploadRejectsUnknownFormat(t *testing.T) {
	_, err := ParseUpload("notes.pdf", strings.NewReader("x"))
	if err == nil {
		t.Fatal("expected an error for unsupported format")
	}
	if !strings.Contains(err.Error(), "unsupported file format") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseUploadEmptyCSV(t *testing.T) {
	_, err := ParseUpload("empty.csv", strings.NewReader(""))
	if err == nil {
		t.Fatal("expected an error for empty file")
	}
}

func TestPreviewCapsRows(t *testing.T) {
	var b strings.Builder
	b.WriteString("n\n")
	for i := 0; i < 25; i++ {
		b.WriteString("x\n")
	}

	table, err := ParseUpload("big.csv", strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("ParseUpload: %v", err)
	}
	if got := len(table.Preview(10)); got != 10 {
		t.Fatalf("expected 10 preview rows, got %d", got)
	}
	if got := len(table.Preview(100)); got != 25 {
		t.Fatalf("expected all 25 rows, got %d", got)
	}
}

func TestDataURL(t *testing.T) {
	url := DataURL("report.pdf", []byte("hello"))
	if !strings.HasPrefix(url, "data:application/pdf;base64,") {
		t.Fatalf("unexpected data url: %q", url)
	}
	if !strings.HasSuffix(url, "aGVsbG8=") {
		t.Fatalf("unexpected payload: %q", url)
	}

	if got := DataURL("blob.bin", []byte{0x1}); !strings.HasPrefix(got, "data:application/octet-stream;base64,") {
		t.Fatalf("expected octet-stream fallback, got %q", got)
	}
}
