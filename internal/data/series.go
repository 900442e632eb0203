package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Series holds named columns of equal length, e.g. demand or availability
// profiles referenced from a config with "@column".
type Series map[string][]float64

// Column returns the named column.
func (s Series) Column(name string) ([]float64, error) {
	v, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("unknown series column %q (available: %s)", name, strings.Join(s.Names(), ", "))
	}
	return v, nil
}

// Names lists the columns in sorted order.
func (s Series) Names() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len is the common column length, 0 for an empty set.
func (s Series) Len() int {
	for _, v := range s {
		return len(v)
	}
	return 0
}

func (s Series) checkLengths() error {
	n := -1
	for _, name := range s.Names() {
		if n >= 0 && len(s[name]) != n {
			return fmt.Errorf("column %q has %d rows, expected %d", name, len(s[name]), n)
		}
		n = len(s[name])
	}
	return nil
}

// LoadSeries picks the loader by file extension (.csv or .json).
func LoadSeries(path string) (Series, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadSeriesCSV(path)
	case ".json":
		return LoadSeriesJSON(path)
	}
	return nil, fmt.Errorf("%s: unsupported series format (want .csv or .json)", path)
}

// LoadSeriesCSV reads a CSV whose first row holds the column names.
func LoadSeriesCSV(path string) (Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := ReadSeriesCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ReadSeriesCSV parses CSV rows of numbers below a header row. Empty cells
// are rejected.
func ReadSeriesCSV(r io.Reader) (Series, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("series file is empty")
		}
		return nil, err
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
		if header[i] == "" {
			return nil, fmt.Errorf("column %d has no name", i)
		}
	}
	out := make(Series, len(header))
	for _, h := range header {
		if _, dup := out[h]; dup {
			return nil, fmt.Errorf("duplicate column %q", h)
		}
		out[h] = nil
	}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		for i, cell := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d, column %q: %w", line, header[i], err)
			}
			out[header[i]] = append(out[header[i]], v)
		}
	}
	return out, nil
}
