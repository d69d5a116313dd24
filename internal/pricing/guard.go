package pricing

import (
	"fmt"
	"math"
)

// Severity classifies the outcome of a plausibility check.
type Severity string

const (
	// SeverityNone means the price looks plausible.
	SeverityNone Severity = "NONE"
	// SeverityWarn means the price is suspicious but submittable.
	SeverityWarn Severity = "WARN"
	// SeverityBlock means the price must not be accepted.
	SeverityBlock Severity = "BLOCK"
)

// Candidate is a purchase draft under evaluation.
type Candidate struct {
	ProductID int64
	Price     float64
	Quantity  float64
}

// Verdict is the guard's answer for one candidate.
type Verdict struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message,omitempty"`
}

// GuardConfig carries the policy constants of the anomaly check. The numbers
// are product policy, not algorithm, so they live in configuration.
type GuardConfig struct {
	MinSamples        int
	WarnDeviationPct  float64
	BlockDeviationPct float64
	Ceilings          map[Unit]float64
	Floors            map[Unit]float64
}

// DefaultGuardConfig returns the community defaults: warn above 50% deviation,
// block above 200%, and per-unit absolute bounds for sparse history.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		MinSamples:        DefaultMinSamples,
		WarnDeviationPct:  50,
		BlockDeviationPct: 200,
		Ceilings: map[Unit]float64{
			UnitKilogram: 100,
			UnitLiter:    80,
			UnitPiece:    50,
			UnitMeter:    50,
			UnitRoll:     25,
			UnitTablet:   25,
		},
		Floors: map[Unit]float64{
			UnitKilogram: 0.10,
			UnitLiter:    0.10,
			UnitPiece:    0.05,
			UnitMeter:    0.10,
			UnitRoll:     0.10,
			UnitTablet:   0.05,
		},
	}
}

// Guard validates candidate purchase prices against a product's history.
type Guard struct {
	cfg GuardConfig
}

// NewGuard builds a guard, falling back to defaults for unset fields.
func NewGuard(cfg GuardConfig) *Guard {
	def := DefaultGuardConfig()
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.WarnDeviationPct <= 0 {
		cfg.WarnDeviationPct = def.WarnDeviationPct
	}
	if cfg.BlockDeviationPct <= 0 {
		cfg.BlockDeviationPct = def.BlockDeviationPct
	}
	if cfg.Ceilings == nil {
		cfg.Ceilings = def.Ceilings
	}
	if cfg.Floors == nil {
		cfg.Floors = def.Floors
	}
	return &Guard{cfg: cfg}
}

// Evaluate checks a candidate's unit price for the given product against its
// purchase history. With enough history the candidate is measured against the
// historical mean unit price across all stores; with sparse history it is
// normalized to the canonical unit and held against absolute bounds, which
// never block. Callers guarantee a positive quantity and finite numbers.
func (g *Guard) Evaluate(candidate Candidate, product Product, history []Purchase) Verdict {
	unitPrice := candidate.Price / candidate.Quantity

	samples := make([]float64, 0, len(history))
	for _, p := range history {
		if p.ProductID != candidate.ProductID {
			continue
		}
		if up, ok := p.UnitPrice(); ok {
			samples = append(samples, up)
		}
	}

	if len(samples) >= g.cfg.MinSamples {
		return g.statistical(unitPrice, samples)
	}
	return g.absolute(unitPrice, product.Unit)
}

func (g *Guard) statistical(unitPrice float64, samples []float64) Verdict {
	var sum float64
	for _, v := range samples {
		sum += v
	}
	mean := sum / float64(len(samples))
	if mean == 0 {
		return Verdict{Severity: SeverityNone}
	}
	deviation := math.Abs(unitPrice-mean) / mean * 100

	switch {
	case deviation > g.cfg.BlockDeviationPct:
		return Verdict{
			Severity: SeverityBlock,
			Message: fmt.Sprintf("unit price €%.2f deviates more than %.0f%% from the historical average €%.2f",
				unitPrice, g.cfg.BlockDeviationPct, mean),
		}
	case deviation > g.cfg.WarnDeviationPct:
		return Verdict{
			Severity: SeverityWarn,
			Message: fmt.Sprintf("unit price €%.2f deviates more than %.0f%% from the historical average €%.2f",
				unitPrice, g.cfg.WarnDeviationPct, mean),
		}
	}
	return Verdict{Severity: SeverityNone}
}

func (g *Guard) absolute(unitPrice float64, unit Unit) Verdict {
	normalized, displayUnit := Normalize(unitPrice, unit)

	if ceiling, ok := g.cfg.Ceilings[displayUnit]; ok && normalized > ceiling {
		return Verdict{
			Severity: SeverityWarn,
			Message:  fmt.Sprintf("price €%.2f per %s looks unusually high", normalized, displayUnit),
		}
	}
	if floor, ok := g.cfg.Floors[displayUnit]; ok && normalized > 0 && normalized < floor {
		return Verdict{
			Severity: SeverityWarn,
			Message:  fmt.Sprintf("price €%.2f per %s looks unusually low", normalized, displayUnit),
		}
	}
	return Verdict{Severity: SeverityNone}
}
