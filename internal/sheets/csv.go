package sheets

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// CSVSource reads rows from a CSV document whose first record is the header.
type CSVSource struct {
	r io.Reader
}

var _ RowSource = (*CSVSource)(nil)

func NewCSVSource(r io.Reader) *CSVSource {
	return &CSVSource{r: r}
}

// ReadRows implements RowSource. Both ',' and ';' separated files are accepted.
func (s *CSVSource) ReadRows(ctx context.Context) ([]Row, error) {
	raw, err := io.ReadAll(s.r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	text := strings.TrimPrefix(string(raw), "\ufeff")

	cr := csv.NewReader(strings.NewReader(text))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	if first, _, _ := strings.Cut(text, "\n"); strings.Count(first, ";") > strings.Count(first, ",") {
		cr.Comma = ';'
	}

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var rows []Row
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record %d: %w", len(rows)+2, err)
		}
		rows = append(rows, Zip(header, rec))
	}
	return rows, nil
}

// Zip pairs header cells with values. Missing values are empty and
// blank header cells are dropped.
func Zip(header, values []string) Row {
	row := make(Row, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		v := ""
		if i < len(values) {
			v = strings.TrimSpace(values[i])
		}
		row[h] = v
	}
	return row
}
