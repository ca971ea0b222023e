package medication

import (
	"time"

	"go.uber.org/zap"
)

// SupplyStatus is the refill tier derived from supply counters.
type SupplyStatus string

const (
	SupplyGood   SupplyStatus = "good"
	SupplyMedium SupplyStatus = "medium"
	SupplyLow    SupplyStatus = "low"
)

// SupplyPercentage returns current/total supply as a percentage clamped to
// [0, 100]. A zero total reads as 0 (unknown or empty, not an error).
func SupplyPercentage(m *Medication) float64 {
	if m.TotalSupply <= 0 {
		return 0
	}
	pct := float64(m.CurrentSupply) / float64(m.TotalSupply) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Status tiers the supply percentage against the refill threshold. The
// threshold itself is inclusive of low, and an operator-set threshold above
// 50 still wins over the generic medium cutoff.
func Status(m *Medication) SupplyStatus {
	pct := SupplyPercentage(m)
	switch {
	case pct <= float64(m.RefillAt):
		return SupplyLow
	case pct <= 50:
		return SupplyMedium
	default:
		return SupplyGood
	}
}

// RecordRefill tops the supply back up to total and stamps the refill date.
// Persisted through a regular registry update, not a separate entity.
func (r *Registry) RecordRefill(id string) (*Medication, error) {
	med, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	med.CurrentSupply = med.TotalSupply
	med.LastRefillDate = &now

	updated, err := r.Update(*med)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Refill recorded",
		zap.String("medication_id", id),
		zap.Int("supply", updated.CurrentSupply),
	)
	return updated, nil
}
