package main

import (
	"cmp"
	"errors"
	"fmt"

	"github.com/impedance-lab/ubcal/internal/bridge"
	"github.com/impedance-lab/ubcal/internal/gum"
	"github.com/impedance-lab/ubcal/internal/models"
	"github.com/impedance-lab/ubcal/internal/orchestration"
	"github.com/impedance-lab/ubcal/internal/projectconfig"
)

// errNoCalibration is returned when neither --cal nor paths.calibration names a file.
var errNoCalibration = errors.New("no calibration file: pass --cal or set paths.calibration in " + projectconfig.FileName)

// runnerSettings maps the project defaults onto job runner settings.
func runnerSettings(cfg *projectconfig.ProjectConfig) orchestration.Settings {
	s := orchestration.DefaultSettings()
	d := cfg.Defaults
	s.Coverage = cmp.Or(d.Coverage, s.Coverage)
	if d.Ambient.Value != nil {
		s.Ambient = models.UncertainValue{
			Value:       *d.Ambient.Value,
			Uncertainty: d.Ambient.Uncertainty,
			DOF:         d.Ambient.DOF,
			Label:       cmp.Or(d.Ambient.Label, s.Ambient.Label),
		}
	}
	if d.Resolution != nil {
		s.Resolution = *d.Resolution
	}
	if len(d.ZeroLabels) > 0 {
		s.ZeroLabels = d.ZeroLabels
	}
	return s
}

// openBridge builds a bridge model at the project ambient temperature.
// calPath overrides paths.calibration.
func openBridge(cfg *projectconfig.ProjectConfig, calPath string) (*bridge.Model, orchestration.Settings, error) {
	settings := runnerSettings(cfg)
	calPath = cmp.Or(calPath, cfg.Path(cfg.Paths.Calibration))
	if calPath == "" {
		return nil, settings, errNoCalibration
	}

	gctx := gum.NewContext()
	a := settings.Ambient
	temp, err := gctx.Leaf(a.Value, a.Uncertainty, a.DOF, a.Label)
	if err != nil {
		return nil, settings, fmt.Errorf("ambient temperature: %w", err)
	}
	model, err := bridge.Open(gctx, calPath, temp)
	if err != nil {
		return nil, settings, fmt.Errorf("loading calibration %s: %w", calPath, err)
	}
	return model, settings, nil
}
