package layout

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/deckflow/deckflow-go/deckflow"
)

// overrideFile is the on-disk shape of a per-document override, one
// YAML file per document id.
type overrideFile struct {
	TemplateName   string                   `yaml:"template_name"`
	Version        string                   `yaml:"version"`
	ChartOverrides map[string]chartOverride `yaml:"chart_overrides"`
	GlobalSettings globalSettings           `yaml:"global_settings"`
}

type chartOverride struct {
	SizePreset     string `yaml:"size_preset"`
	PositionPreset string `yaml:"position_preset"`
	ReplaceMethod  string `yaml:"replace_method"`
	WidthEMU       int64  `yaml:"width_emu"`
	HeightEMU      int64  `yaml:"height_emu"`
	OffsetXEMU     int64  `yaml:"offset_x_emu"`
	OffsetYEMU     int64  `yaml:"offset_y_emu"`
	MinWidthEMU    int64  `yaml:"min_width_emu"`
	MaxWidthEMU    int64  `yaml:"max_width_emu"`
	MinHeightEMU   int64  `yaml:"min_height_emu"`
	MaxHeightEMU   int64  `yaml:"max_height_emu"`
}

type globalSettings struct {
	DefaultReplaceMethod string `yaml:"default_replace_method"`
	AspectRatioLock      *bool  `yaml:"enable_aspect_ratio_lock"`
}

// OverrideStore loads and caches per-document layout overrides from a
// configuration directory. Overrides take precedence over category
// defaults; a missing or unreadable file means no overrides.
type OverrideStore struct {
	dir    string
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]*overrideFile
}

// NewOverrideStore builds a store over dir. The directory does not have
// to exist.
func NewOverrideStore(dir string, logger *slog.Logger) *OverrideStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &OverrideStore{dir: dir, logger: logger, cache: make(map[string]*overrideFile)}
}

func (s *OverrideStore) load(documentID string) *overrideFile {
	s.mu.RLock()
	cached, ok := s.cache[documentID]
	s.mu.RUnlock()
	if ok {
		return cached
	}

	var file *overrideFile
	path := filepath.Join(s.dir, documentID+".yaml")
	raw, err := os.ReadFile(path)
	if err == nil {
		var parsed overrideFile
		if err := yaml.Unmarshal(raw, &parsed); err != nil {
			s.logger.Warn("ignoring malformed layout override", "path", path, "error", err)
		} else {
			file = &parsed
			s.logger.Debug("loaded layout override", "document_id", documentID, "path", path)
		}
	}

	s.mu.Lock()
	s.cache[documentID] = file
	s.mu.Unlock()
	return file
}

// Invalidate drops the cached override for a document so the next Apply
// re-reads the file.
func (s *OverrideStore) Invalidate(documentID string) {
	s.mu.Lock()
	delete(s.cache, documentID)
	s.mu.Unlock()
}

// Apply layers a document's override for a style key onto a base
// config. Unset override fields leave the base values untouched.
func (s *OverrideStore) Apply(documentID, styleKey string, base StyleConfig) StyleConfig {
	file := s.load(documentID)
	if file == nil {
		return base
	}

	if file.GlobalSettings.DefaultReplaceMethod != "" {
		base.ReplaceMethod = deckflow.ReplaceMethod(file.GlobalSettings.DefaultReplaceMethod)
	}
	if file.GlobalSettings.AspectRatioLock != nil {
		base.MaintainAspectRatio = *file.GlobalSettings.AspectRatioLock
	}

	ov, ok := file.ChartOverrides[styleKey]
	if !ok {
		return base
	}

	if ov.SizePreset != "" {
		base.SizePreset = SizePreset(ov.SizePreset)
	}
	if ov.PositionPreset != "" {
		base.PositionPreset = PositionPreset(ov.PositionPreset)
	}
	if ov.ReplaceMethod != "" {
		base.ReplaceMethod = deckflow.ReplaceMethod(ov.ReplaceMethod)
	}
	if ov.WidthEMU > 0 && ov.HeightEMU > 0 {
		base.CustomSize = &Size{Width: ov.WidthEMU, Height: ov.HeightEMU}
	}
	if ov.OffsetXEMU != 0 || ov.OffsetYEMU != 0 {
		base.CustomPosition = &Position{X: ov.OffsetXEMU, Y: ov.OffsetYEMU}
	}
	if ov.MinWidthEMU > 0 {
		base.MinWidth = ov.MinWidthEMU
	}
	if ov.MaxWidthEMU > 0 {
		base.MaxWidth = ov.MaxWidthEMU
	}
	if ov.MinHeightEMU > 0 {
		base.MinHeight = ov.MinHeightEMU
	}
	if ov.MaxHeightEMU > 0 {
		base.MaxHeight = ov.MaxHeightEMU
	}
	return base
}
