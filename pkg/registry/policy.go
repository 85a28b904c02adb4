package registry

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/soundprediction/robomem/pkg/spatial"
)

// CorroborateFunc returns the confidence of an entity after a corroborating
// mention with the given weight in (0,1].
type CorroborateFunc func(confidence, weight float64) float64

// DecayFunc returns the confidence of an entity after elapsed time without
// corroboration. It must be a pure function of its inputs.
type DecayFunc func(confidence float64, elapsed time.Duration) float64

// SaturatingGain moves confidence toward 1 by gain·weight of the remaining gap:
// c' = c + (1-c)·gain·weight.
func SaturatingGain(gain float64) CorroborateFunc {
	return func(confidence, weight float64) float64 {
		return confidence + (1-confidence)*gain*weight
	}
}

// ExponentialDecay decays confidence toward floor with the given half-life:
// c' = floor + (c-floor)·2^(-elapsed/halfLife). Confidence already at or below
// floor is returned unchanged.
func ExponentialDecay(halfLife time.Duration, floor float64) DecayFunc {
	return func(confidence float64, elapsed time.Duration) float64 {
		if confidence <= floor || elapsed <= 0 {
			return confidence
		}
		if halfLife <= 0 {
			return floor
		}
		factor := math.Exp2(-float64(elapsed) / float64(halfLife))
		return floor + (confidence-floor)*factor
	}
}

// Policy holds the resolution and maintenance parameters of a Registry.
type Policy struct {
	// Mode selects planar or volumetric distances.
	Mode spatial.Mode
	// MatchRadius is the maximum distance between an estimate and an existing
	// entity of the same type for them to be merged.
	MatchRadius float64
	// TieEpsilon is the distance band inside which candidates count as equally near.
	TieEpsilon float64
	// ConfidencePrior is the confidence of a newly created entity.
	ConfidencePrior float64
	// DecayWindow is how long an entity may go uncorroborated before decaying.
	DecayWindow time.Duration
	// Corroborate updates confidence on a merge.
	Corroborate CorroborateFunc
	// Decay updates confidence during maintenance.
	Decay DecayFunc
	// NewID mints entity and edge identifiers.
	NewID func() string
}

const confidenceTieEpsilon = 1e-9

// DefaultPolicy returns the documented defaults.
func DefaultPolicy() Policy {
	return Policy{
		Mode:            spatial.Mode2D,
		MatchRadius:     1.0,
		TieEpsilon:      1e-3,
		ConfidencePrior: 0.5,
		DecayWindow:     30 * time.Second,
		Corroborate:     SaturatingGain(0.2),
		Decay:           ExponentialDecay(5*time.Minute, 0),
		NewID:           uuid.NewString,
	}
}

// withDefaults fills unset fields from DefaultPolicy.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MatchRadius <= 0 {
		p.MatchRadius = d.MatchRadius
	}
	if p.TieEpsilon <= 0 {
		p.TieEpsilon = d.TieEpsilon
	}
	if p.ConfidencePrior <= 0 || p.ConfidencePrior > 1 {
		p.ConfidencePrior = d.ConfidencePrior
	}
	if p.DecayWindow < 0 {
		p.DecayWindow = 0
	}
	if p.Corroborate == nil {
		p.Corroborate = d.Corroborate
	}
	if p.Decay == nil {
		p.Decay = d.Decay
	}
	if p.NewID == nil {
		p.NewID = d.NewID
	}
	return p
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
