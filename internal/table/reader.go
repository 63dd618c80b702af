package table

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ErrKind classifies why a table could not be read.
type ErrKind string

const (
	KindNotFound    ErrKind = "not_found"
	KindOpen        ErrKind = "open"
	KindParse       ErrKind = "parse"
	KindUnsupported ErrKind = "unsupported"
)

// ReadError is returned for any table read failure. Callers branch on Kind
// instead of matching error text.
type ReadError struct {
	Kind ErrKind
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	if e.Err == nil {
		return string(e.Kind) + ": " + e.Path
	}
	return string(e.Kind) + ": " + e.Path + ": " + e.Err.Error()
}

func (e *ReadError) Unwrap() error { return e.Err }

// AsReadError unwraps err to a *ReadError if there is one.
func AsReadError(err error) (*ReadError, bool) {
	var re *ReadError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// Read parses the file at path into a Table. The parser is chosen by
// extension first; if the primary parser fails the other one is tried once,
// because legacy uploads routinely carry the wrong extension (a CSV saved
// as .xls, an Excel export renamed .csv).
func Read(path string) (*Table, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, &ReadError{Kind: KindNotFound, Path: path, Err: err}
		}
		return nil, &ReadError{Kind: KindOpen, Path: path, Err: err}
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".csv", ".txt":
		t, err := readCSV(path)
		if err == nil {
			return t, nil
		}
		if t2, err2 := readXLSX(path); err2 == nil {
			return t2, nil
		}
		return nil, &ReadError{Kind: KindParse, Path: path, Err: err}
	case ".xlsx", ".xls":
		t, err := readXLSX(path)
		if err == nil {
			return t, nil
		}
		if t2, err2 := readCSV(path); err2 == nil {
			return t2, nil
		}
		return nil, &ReadError{Kind: KindParse, Path: path, Err: err}
	default:
		return nil, &ReadError{Kind: KindUnsupported, Path: path, Err: eris.Errorf("unsupported extension %q", ext)}
	}
}

func readCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "csv: open")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}

	t := &Table{Columns: header}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		t.Rows = append(t.Rows, rec)
	}

	t.normalize()
	if len(t.Columns) == 0 {
		return nil, eris.New("csv: no columns")
	}
	return t, nil
}

func readXLSX(path string) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: no sheets")
	}
	sheet := f.Sheets[0]

	t := &Table{}
	for i, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		if i == 0 {
			t.Columns = cells
			continue
		}
		t.Rows = append(t.Rows, cells)
	}

	t.normalize()
	if len(t.Columns) == 0 {
		return nil, eris.New("xlsx: no header row")
	}
	return t, nil
}
