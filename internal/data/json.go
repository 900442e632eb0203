package data

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadSeriesJSON reads {"column": [v0, v1, ...], ...}.
func LoadSeriesJSON(path string) (Series, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Series
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := s.checkLengths(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}
