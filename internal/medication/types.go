package medication

import (
	"time"

	apperrors "github.com/gmsas95/dosewise-cli/internal/errors"
)

// DurationOngoing marks a schedule with no end date.
const DurationOngoing = -1

// Medication is a tracked drug or supplement with its dosing schedule and
// supply counters. Mutated in place by edits and refill actions; the id is
// assigned at creation and never reused.
type Medication struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Dosage string `json:"dosage"`

	// Times holds the daily dose slots as HH:MM strings. Empty means
	// as-needed.
	Times []string `json:"times"`

	StartDate time.Time `json:"start_date"`
	// DurationDays is a positive day count, or DurationOngoing.
	DurationDays int `json:"duration_days"`

	ReminderEnabled bool `json:"reminder_enabled"`

	CurrentSupply  int        `json:"current_supply"`
	TotalSupply    int        `json:"total_supply"`
	RefillAt       int        `json:"refill_at"`
	RefillReminder bool       `json:"refill_reminder"`
	LastRefillDate *time.Time `json:"last_refill_date,omitempty"`

	Notes string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Guess is a best-effort medication record proposed by image recognition.
// Untrusted input; always re-validated by Registry.Add.
type Guess struct {
	Name       string  `json:"name"`
	Dosage     string  `json:"dosage"`
	Strength   string  `json:"strength,omitempty"`
	Form       string  `json:"form,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Validate checks the schema constraints enforced at Add/Update time.
func (m *Medication) Validate() error {
	if m.Name == "" {
		return apperrors.Validation("name must not be empty")
	}
	if m.Dosage == "" {
		return apperrors.Validation("dosage must not be empty")
	}
	seen := make(map[string]bool, len(m.Times))
	for _, slot := range m.Times {
		if _, _, err := ParseTimeOfDay(slot); err != nil {
			return err
		}
		if seen[slot] {
			return apperrors.Validation("duplicate dose time " + slot)
		}
		seen[slot] = true
	}
	if m.RefillAt < 0 || m.RefillAt > 100 {
		return apperrors.Validation("refill threshold must be between 0 and 100")
	}
	if m.CurrentSupply < 0 || m.TotalSupply < 0 {
		return apperrors.Validation("supply counts must not be negative")
	}
	if m.DurationDays != DurationOngoing && m.DurationDays <= 0 {
		return apperrors.Validation("duration must be a positive day count or ongoing")
	}
	return nil
}

// ParseTimeOfDay parses an HH:MM 24h slot into hour and minute.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	t, perr := time.Parse("15:04", s)
	if perr != nil {
		return 0, 0, apperrors.Validation("dose time must be HH:MM 24h, got " + s)
	}
	return t.Hour(), t.Minute(), nil
}

// ActiveOn reports whether the schedule window covers the given calendar
// day: [startDate, startDate+duration), or open-ended when ongoing.
func (m *Medication) ActiveOn(date time.Time) bool {
	day := DayOf(date)
	start := DayOf(m.StartDate)
	if day.Before(start) {
		return false
	}
	if m.DurationDays == DurationOngoing {
		return true
	}
	end := start.AddDate(0, 0, m.DurationDays)
	return day.Before(end)
}

// DayOf truncates a timestamp to local midnight.
func DayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// clone returns a snapshot safe to hand to callers.
func (m *Medication) clone() *Medication {
	c := *m
	if m.Times != nil {
		c.Times = append([]string(nil), m.Times...)
	}
	if m.LastRefillDate != nil {
		d := *m.LastRefillDate
		c.LastRefillDate = &d
	}
	return &c
}
