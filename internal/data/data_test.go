package data

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"energy-dispatch/internal/results"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSeriesCSV(t *testing.T) {
	path := writeFile(t, "profiles.csv", "demand, pv\n10,0\n12, 0.5\n8,1\n")
	s, err := LoadSeries(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"demand", "pv"}, s.Names())
	assert.Equal(t, 3, s.Len())
	pv, err := s.Column("pv")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, 1}, pv)

	_, err = s.Column("wind")
	assert.ErrorContains(t, err, "wind")
}

func TestReadSeriesCSVErrors(t *testing.T) {
	_, err := ReadSeriesCSV(strings.NewReader(""))
	assert.Error(t, err)

	_, err = ReadSeriesCSV(strings.NewReader("a,a\n1,2\n"))
	assert.ErrorContains(t, err, "duplicate")

	_, err = ReadSeriesCSV(strings.NewReader("a,b\n1,x\n"))
	assert.ErrorContains(t, err, `column "b"`)

	_, err = ReadSeriesCSV(strings.NewReader("a,b\n1\n"))
	assert.Error(t, err)
}

func TestLoadSeriesJSON(t *testing.T) {
	path := writeFile(t, "profiles.json", `{"demand": [1, 2, 3], "price": [4, 5, 6]}`)
	s, err := LoadSeries(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5, 6}, s["price"])

	bad := writeFile(t, "bad.json", `{"demand": [1, 2, 3], "price": [4]}`)
	_, err = LoadSeriesJSON(bad)
	assert.ErrorContains(t, err, "price")
}

func TestLoadSeriesUnknownExtension(t *testing.T) {
	_, err := LoadSeries("profiles.parquet")
	assert.ErrorContains(t, err, "unsupported")
}

func TestRunCache(t *testing.T) {
	c := NewRunCache(time.Hour)
	defer c.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	id := c.Put(&Run{Name: "demo", Results: &results.Results{Objective: 42}})
	require.NotEmpty(t, id)

	run, ok := c.Get(id)
	require.True(t, ok)
	assert.Equal(t, "demo", run.Name)
	assert.Equal(t, now, run.CreatedAt)
	assert.InDelta(t, 42, run.Results.Objective, 0)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	now = now.Add(2 * time.Hour)
	_, ok = c.Get(id)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
	c.evictExpired()
	assert.Equal(t, 0, c.Len())

	c.Close()
	c.Close()
}

func TestRunCacheKeepsExplicitID(t *testing.T) {
	c := NewRunCache(0)
	defer c.Close()
	assert.Equal(t, "fixed", c.Put(&Run{ID: "fixed"}))
	c.Clear()
	assert.Equal(t, 0, c.Len())
}
