// Package projectconfig provides the ProjectConfig struct and loader for
// .ubcal.yaml project-level configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/impedance-lab/ubcal/internal/utils"
	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file looked up by Load.
const FileName = ".ubcal.yaml"

// Default values for project configuration. New() references them and no
// other code should duplicate them.
const (
	DefaultJobsDir    = "jobs/"
	DefaultResultsDir = "results/"

	DefaultCoverage      = 0.95
	DefaultAmbient       = 20.0
	DefaultAmbientU      = 0.5
	DefaultAmbientDOF    = 10.0
	DefaultAmbientLabel  = "temperature"
	DefaultWorkers       = 4
	DefaultBudgetEntries = 10
	DefaultCacheDir      = ".ubcal-cache"
)

// DefaultZeroLabels are the item labels treated as zero references.
var DefaultZeroLabels = []string{"coax zero", "box_zero", "CuZero"}

// PathsConfig holds directory paths for job files, results and the bridge calibration.
type PathsConfig struct {
	Jobs    string `yaml:"jobs,omitempty"`
	Results string `yaml:"results,omitempty"`
	// Calibration is used by commands that evaluate single readings.
	Calibration string `yaml:"calibration,omitempty"`
}

// AmbientConfig is the laboratory temperature in °C.
type AmbientConfig struct {
	Value       *float64 `yaml:"value,omitempty"`
	Uncertainty float64  `yaml:"uncertainty,omitempty"`
	DOF         float64  `yaml:"dof,omitempty"`
	Label       string   `yaml:"label,omitempty"`
}

// DefaultsConfig holds default evaluation parameters.
type DefaultsConfig struct {
	Coverage   float64       `yaml:"coverage,omitempty"`
	Ambient    AmbientConfig `yaml:"ambient,omitempty"`
	Resolution *bool         `yaml:"resolution,omitempty"`
	ZeroLabels []string      `yaml:"zero_labels,omitempty"`
	Workers    int           `yaml:"workers,omitempty"`
	Budget     int           `yaml:"budget,omitempty"`
	Strict     *bool         `yaml:"strict,omitempty"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Dir     string `yaml:"dir,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .ubcal.yaml.
type ProjectConfig struct {
	Paths    PathsConfig    `yaml:"paths,omitempty"`
	Defaults DefaultsConfig `yaml:"defaults,omitempty"`
	Cache    CacheConfig    `yaml:"cache,omitempty"`

	// Dir is the directory the configuration was found in, or "" for defaults.
	Dir string `yaml:"-"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Paths: PathsConfig{
			Jobs:    DefaultJobsDir,
			Results: DefaultResultsDir,
		},
		Defaults: DefaultsConfig{
			Coverage: DefaultCoverage,
			Ambient: AmbientConfig{
				Value:       float64Ptr(DefaultAmbient),
				Uncertainty: DefaultAmbientU,
				DOF:         DefaultAmbientDOF,
				Label:       DefaultAmbientLabel,
			},
			Resolution: boolPtr(true),
			ZeroLabels: DefaultZeroLabels,
			Workers:    DefaultWorkers,
			Budget:     DefaultBudgetEntries,
			Strict:     boolPtr(false),
		},
		Cache: CacheConfig{
			Enabled: boolPtr(false),
			Dir:     DefaultCacheDir,
		},
	}
}

// Load finds .ubcal.yaml by walking up from startDir (max 10 levels),
// unmarshals it, and fills in missing fields with defaults.
// If no config file is found, returns defaults with a nil error.
// Real I/O errors (e.g. permission denied) are returned to the caller.
func Load(startDir string) (*ProjectConfig, error) {
	cfg := New()

	data, dir, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	}

	var fileCfg ProjectConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}

	mergeConfig(cfg, &fileCfg)
	cfg.Dir = dir
	return cfg, nil
}

// Path resolves p against the directory of the configuration file.
func (c *ProjectConfig) Path(p string) string {
	return utils.ResolvePath(p, c.Dir)
}

// findConfigFile walks up from dir looking for .ubcal.yaml (max 10 levels).
// Returns os.ErrNotExist if no config file is found.
func findConfigFile(dir string) ([]byte, string, error) {
	// Convert to absolute path so filepath.Dir(".") walks correctly.
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for range 10 {
		p := filepath.Join(dir, FileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return data, dir, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return nil, "", os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	// Paths
	if src.Paths.Jobs != "" {
		dst.Paths.Jobs = src.Paths.Jobs
	}
	if src.Paths.Results != "" {
		dst.Paths.Results = src.Paths.Results
	}
	if src.Paths.Calibration != "" {
		dst.Paths.Calibration = src.Paths.Calibration
	}

	// Defaults
	if src.Defaults.Coverage != 0 {
		dst.Defaults.Coverage = src.Defaults.Coverage
	}
	if src.Defaults.Ambient.Value != nil {
		dst.Defaults.Ambient.Value = src.Defaults.Ambient.Value
	}
	if src.Defaults.Ambient.Uncertainty != 0 {
		dst.Defaults.Ambient.Uncertainty = src.Defaults.Ambient.Uncertainty
	}
	if src.Defaults.Ambient.DOF != 0 {
		dst.Defaults.Ambient.DOF = src.Defaults.Ambient.DOF
	}
	if src.Defaults.Ambient.Label != "" {
		dst.Defaults.Ambient.Label = src.Defaults.Ambient.Label
	}
	if src.Defaults.Resolution != nil {
		dst.Defaults.Resolution = src.Defaults.Resolution
	}
	if len(src.Defaults.ZeroLabels) > 0 {
		dst.Defaults.ZeroLabels = src.Defaults.ZeroLabels
	}
	if src.Defaults.Workers != 0 {
		dst.Defaults.Workers = src.Defaults.Workers
	}
	if src.Defaults.Budget != 0 {
		dst.Defaults.Budget = src.Defaults.Budget
	}
	if src.Defaults.Strict != nil {
		dst.Defaults.Strict = src.Defaults.Strict
	}

	// Cache
	if src.Cache.Enabled != nil {
		dst.Cache.Enabled = src.Cache.Enabled
	}
	if src.Cache.Dir != "" {
		dst.Cache.Dir = src.Cache.Dir
	}
}

func boolPtr(b bool) *bool {
	return &b
}

func float64Ptr(f float64) *float64 {
	return &f
}
