package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrEmptyTable indicates the input contained no data rows.
var ErrEmptyTable = errors.New("dataset: table has no rows")

// Table is a header-less feature table: every row holds Dim() float
// features followed by one label string.
type Table struct {
	Features [][]float64
	Labels   []string
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Labels) }

// Dim returns the feature dimensionality.
func (t *Table) Dim() int {
	if len(t.Features) == 0 {
		return 0
	}
	return len(t.Features[0])
}

// Columns returns the column count of the source table, label included.
func (t *Table) Columns() int { return t.Dim() + 1 }

// LoadTable reads the table at path, which may be a single delimited file
// or a directory of *.csv files that share one column layout.
func LoadTable(path string) (*Table, error) {
	files, err := DiscoverTables(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no csv files under %s", ErrEmptyTable, path)
	}

	merged := &Table{}
	for _, file := range files {
		t, err := readTableFile(file)
		if err != nil {
			return nil, err
		}
		if merged.Len() > 0 && t.Dim() != merged.Dim() {
			return nil, fmt.Errorf("%s: %d features, want %d", file, t.Dim(), merged.Dim())
		}
		merged.Features = append(merged.Features, t.Features...)
		merged.Labels = append(merged.Labels, t.Labels...)
	}
	return merged, nil
}

func readTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()

	t, err := ReadTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ReadTable parses comma separated rows from r. Every row must have the same
// number of columns, at least two.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	t := &Table{}
	line := 0
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("row %d: need at least one feature and a label, got %d columns", line, len(record))
		}
		last := len(record) - 1
		features := make([]float64, last)
		for i := 0; i < last; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", line, i, err)
			}
			features[i] = v
		}
		t.Features = append(t.Features, features)
		t.Labels = append(t.Labels, strings.TrimSpace(record[last]))
	}
	if t.Len() == 0 {
		return nil, ErrEmptyTable
	}
	return t, nil
}
