// Package adherence derives progress and per-day dose status from registry
// and ledger state. Stateless; everything is recomputed on read.
package adherence

import (
	"time"

	"github.com/gmsas95/dosewise-cli/internal/ledger"
	"github.com/gmsas95/dosewise-cli/internal/medication"
)

// UnknownMedication labels dose events whose medication was deleted.
const UnknownMedication = "Unknown medication"

// DoseStatus is the per-medication outcome for a calendar day.
type DoseStatus string

const (
	StatusTaken   DoseStatus = "taken"
	StatusMissed  DoseStatus = "missed"
	StatusPending DoseStatus = "pending"
)

// DayProgress sums expected and taken doses across medications for one day.
type DayProgress struct {
	TotalExpected int `json:"total_expected"`
	TotalTaken    int `json:"total_taken"`
}

// Percentage returns taken/expected as a percentage; 0 when nothing is
// expected, never NaN.
func (p DayProgress) Percentage() float64 {
	if p.TotalExpected == 0 {
		return 0
	}
	return float64(p.TotalTaken) / float64(p.TotalExpected) * 100
}

// Calculator reads the registry and ledger; it persists nothing.
type Calculator struct {
	registry *medication.Registry
	ledger   *ledger.Ledger
}

// NewCalculator creates a new adherence calculator
func NewCalculator(reg *medication.Registry, led *ledger.Ledger) *Calculator {
	return &Calculator{registry: reg, ledger: led}
}

// ProgressForDay sums dose expectations and outcomes for every medication
// active on the given day.
func (c *Calculator) ProgressForDay(date time.Time) (DayProgress, error) {
	meds, err := c.registry.List()
	if err != nil {
		return DayProgress{}, err
	}

	var progress DayProgress
	for i := range meds {
		med := &meds[i]
		if !med.ActiveOn(date) {
			continue
		}

		events, err := c.ledger.ListForDay(med.ID, date)
		if err != nil {
			return DayProgress{}, err
		}
		taken := 0
		for _, e := range events {
			if e.Taken {
				taken++
			}
		}

		expected := len(med.Times)
		if expected == 0 {
			// As-needed: only counts once a dose was actually recorded,
			// and never pushes the day past 100%.
			if taken > 0 {
				progress.TotalExpected++
				progress.TotalTaken++
			}
			continue
		}

		if taken > expected {
			taken = expected
		}
		progress.TotalExpected += expected
		progress.TotalTaken += taken
	}
	return progress, nil
}

// StatusForMedicationOnDate reports taken, missed or pending for one
// medication and day. Days without a taken event read missed only once they
// are in the past.
func (c *Calculator) StatusForMedicationOnDate(medicationID string, date time.Time) (DoseStatus, error) {
	return c.statusOn(medicationID, date, time.Now())
}

func (c *Calculator) statusOn(medicationID string, date, now time.Time) (DoseStatus, error) {
	events, err := c.ledger.ListForDay(medicationID, date)
	if err != nil {
		return "", err
	}
	for _, e := range events {
		if e.Taken {
			return StatusTaken, nil
		}
	}
	if medication.DayOf(date).Before(medication.DayOf(now)) {
		return StatusMissed, nil
	}
	return StatusPending, nil
}

// MedicationLabel resolves a ledger reference to a display name. Dangling
// references resolve to UnknownMedication rather than an error.
func (c *Calculator) MedicationLabel(medicationID string) string {
	med, err := c.registry.Get(medicationID)
	if err != nil {
		return UnknownMedication
	}
	return med.Name
}
