package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/storage"
)

// CSVSource reads bars from a CSV file with a header naming at least t,o,h,l,c.
// Column v is optional; any other column is ignored.
type CSVSource struct {
	Path string
}

// NewCSVSource creates a CSV bar source.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{Path: path}
}

// Load reads, sorts and re-indexes the file.
func (s *CSVSource) Load(_ context.Context) ([]*domain.Bar, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer f.Close()

	bars, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Path, err)
	}
	return Prepare(bars)
}

// ReadCSV parses bars in file order without re-indexing.
func ReadCSV(r io.Reader) ([]*domain.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, req := range []string{"t", "o", "h", "l", "c"} {
		if _, ok := col[req]; !ok {
			return nil, fmt.Errorf("%w: csv header missing column %q", storage.ErrInvalidInput, req)
		}
	}

	var bars []*domain.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		b := &domain.Bar{}
		if b.Timestamp, err = strconv.ParseInt(rec[col["t"]], 10, 64); err != nil {
			return nil, fmt.Errorf("%w: line %d: timestamp: %v", storage.ErrInvalidInput, line, err)
		}
		fields := []struct {
			name string
			dst  *float64
		}{{"o", &b.Open}, {"h", &b.High}, {"l", &b.Low}, {"c", &b.Close}, {"v", &b.Volume}}
		for _, fld := range fields {
			i, ok := col[fld.name]
			if !ok {
				continue
			}
			if *fld.dst, err = strconv.ParseFloat(rec[i], 64); err != nil {
				return nil, fmt.Errorf("%w: line %d: column %s: %v", storage.ErrInvalidInput, line, fld.name, err)
			}
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// WriteCSV writes bars with header t,o,h,l,c,v.
func WriteCSV(w io.Writer, bars []*domain.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"t", "o", "h", "l", "c", "v"}); err != nil {
		return err
	}
	for _, b := range bars {
		if err := cw.Write([]string{
			strconv.FormatInt(b.Timestamp, 10),
			floatStr(b.Open),
			floatStr(b.High),
			floatStr(b.Low),
			floatStr(b.Close),
			floatStr(b.Volume),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

var _ storage.BarSource = (*CSVSource)(nil)
