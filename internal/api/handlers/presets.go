package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"energy-dispatch/internal/api/models"
	"energy-dispatch/internal/config"
	"energy-dispatch/internal/logging"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PresetHandler lists storage preset files
type PresetHandler struct {
	dir string
	log *zap.Logger
}

// NewPresetHandler creates a preset handler reading from dir. An empty dir
// falls back to PRESET_DIR, then ./examples/presets.
func NewPresetHandler(dir string, log *zap.Logger) *PresetHandler {
	if dir == "" {
		dir = os.Getenv("PRESET_DIR")
	}
	if dir == "" {
		dir = filepath.Join(".", "examples", "presets")
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &PresetHandler{dir: dir, log: logging.Or(log)}
}

// Dir returns the preset directory.
func (h *PresetHandler) Dir() string { return h.dir }

// ListPresets handles GET /api/v1/presets
func (h *PresetHandler) ListPresets(c *gin.Context) {
	presets := []models.PresetInfo{}

	entries, err := os.ReadDir(h.dir)
	if err != nil {
		h.log.Debug("preset directory not readable", zap.String("dir", h.dir), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"presets": presets})
		return
	}

	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(h.dir, entry.Name())
		sc, err := config.LoadPresetFile(path)
		if err != nil {
			h.log.Warn("skipping invalid preset", zap.String("file", path), zap.Error(err))
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ext)
		name := sc.Name
		if name == "" {
			name = id
		}
		presets = append(presets, models.PresetInfo{
			ID:   id,
			Name: name,
			File: path,
			Storage: models.PresetSpecs{
				NominalCapacity: sc.NominalCapacity,
				Investment:      sc.Investment != nil,
			},
		})
	}
	sort.Slice(presets, func(i, j int) bool { return presets[i].ID < presets[j].ID })

	c.JSON(http.StatusOK, gin.H{"presets": presets})
}
