// Package ledger records dose events. Events are immutable and append-only;
// the only bulk operation is clearing all history.
package ledger

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/dosewise-cli/internal/errors"
	"github.com/gmsas95/dosewise-cli/internal/medication"
	"github.com/gmsas95/dosewise-cli/internal/store"
)

// DoseEvent is one recorded dose outcome. MedicationID is a weak reference;
// the medication may have been deleted since.
type DoseEvent struct {
	ID           string    `json:"id"`
	MedicationID string    `json:"medication_id"`
	Timestamp    time.Time `json:"timestamp"`
	Taken        bool      `json:"taken"`
}

// Filter narrows List results. Zero values mean no constraint.
type Filter struct {
	MedicationID string
	From         time.Time
	To           time.Time
}

// Ledger is the source of truth for adherence and history views.
type Ledger struct {
	store  *store.Store
	logger *zap.Logger
	mu     sync.Mutex
}

// New creates a new dose ledger
func New(st *store.Store, logger *zap.Logger) *Ledger {
	return &Ledger{store: st, logger: logger}
}

// Record appends a dose event. The medication id is not checked for
// existence: recording against a deleted medication is allowed and shows up
// as "unknown" on display.
func (l *Ledger) Record(medicationID string, taken bool, timestamp time.Time) (*DoseEvent, error) {
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	event := DoseEvent{
		ID:           uuid.NewString(),
		MedicationID: medicationID,
		Timestamp:    timestamp,
		Taken:        taken,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.load()
	if err != nil {
		return nil, err
	}
	events = append(events, event)
	if err := l.save(events); err != nil {
		return nil, err
	}

	l.logger.Info("Dose recorded",
		zap.String("medication_id", medicationID),
		zap.Bool("taken", taken),
	)
	return &event, nil
}

// List returns events matching the filter in ledger (insertion) order.
// Callers sort by timestamp descending for display.
func (l *Ledger) List(filter Filter) ([]DoseEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.load()
	if err != nil {
		return nil, err
	}

	out := make([]DoseEvent, 0, len(events))
	for _, e := range events {
		if filter.MedicationID != "" && e.MedicationID != filter.MedicationID {
			continue
		}
		if !filter.From.IsZero() && e.Timestamp.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !e.Timestamp.Before(filter.To) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// ListForDay returns events whose timestamp falls on the given calendar day.
func (l *Ledger) ListForDay(medicationID string, date time.Time) ([]DoseEvent, error) {
	day := medication.DayOf(date)
	return l.List(Filter{
		MedicationID: medicationID,
		From:         day,
		To:           day.AddDate(0, 0, 1),
	})
}

// ClearAll wipes the full dose history.
func (l *Ledger) ClearAll() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.save([]DoseEvent{}); err != nil {
		return err
	}
	l.logger.Info("Dose history cleared")
	return nil
}

func (l *Ledger) load() ([]DoseEvent, error) {
	raw, err := l.store.Get(store.KeyDoseEvents)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return []DoseEvent{}, nil
	}
	var events []DoseEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, apperrors.Persistence(err, "corrupt dose events collection")
	}
	return events, nil
}

func (l *Ledger) save(events []DoseEvent) error {
	raw, err := json.Marshal(events)
	if err != nil {
		return apperrors.Persistence(err, "failed to encode dose events")
	}
	return l.store.Put(store.KeyDoseEvents, raw)
}
