// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package threshold owns the quality-threshold policy: field-specific
// initial values and the monotonic relaxation ladder. No other component
// may invent threshold values.
package threshold

import (
	"github.com/pdiddy/retrieval-engine/internal/field"
	"github.com/pdiddy/retrieval-engine/pkg/types"
)

// Initial thresholds reflect systematic metadata completeness per field:
// biomedical sources carry rich structured metadata and support a strict
// bar, humanities sources are metadata-sparse and start looser.
var initialByField = map[field.Field]float64{
	field.Biomedical:        60,
	field.PhysicalSciences:  55,
	field.ComputerScience:   55,
	field.Engineering:       50,
	field.SocialSciences:    45,
	field.Humanities:        40,
	field.Interdisciplinary: 50,
}

// Service computes the initial threshold for a field and the relaxation
// sequence across iterations.
type Service struct {
	cfg types.ThresholdConfig
}

// NewService returns a Service with defaults applied to zero-valued knobs.
func NewService(cfg types.ThresholdConfig) *Service {
	if cfg.Step <= 0 {
		cfg.Step = 10
	}
	if cfg.Floor <= 0 {
		cfg.Floor = 30
	}
	return &Service{cfg: cfg}
}

// Floor returns the configured minimum threshold.
func (s *Service) Floor() float64 { return s.cfg.Floor }

// Initial returns the field-specific starting threshold, never below the floor.
func (s *Service) Initial(f field.Field) float64 {
	t, ok := initialByField[f]
	if !ok {
		t = initialByField[field.Interdisciplinary]
	}
	if t < s.cfg.Floor {
		return s.cfg.Floor
	}
	return t
}

// Next returns the threshold for the following iteration and the reason.
// The sequence is strictly non-increasing and clamps at the floor; once at
// the floor the reason is MIN_THRESHOLD, signalling the loop cannot relax
// further.
func (s *Service) Next(current float64, f field.Field, iteration, found, target int) (float64, types.StopReason) {
	if current <= s.cfg.Floor {
		return s.cfg.Floor, types.StopMinThreshold
	}
	next := current - s.cfg.Step
	if next < s.cfg.Floor {
		next = s.cfg.Floor
	}
	return next, types.StopRelaxingThreshold
}
