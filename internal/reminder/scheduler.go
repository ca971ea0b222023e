// Package reminder reconciles scheduled notifications against medication
// state. The scheduler is the sole owner of notification handles; nothing
// else schedules or cancels directly.
package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/gmsas95/dosewise-cli/internal/errors"
	"github.com/gmsas95/dosewise-cli/internal/medication"
	"github.com/gmsas95/dosewise-cli/internal/metrics"
	"github.com/gmsas95/dosewise-cli/internal/notify"
)

// State tags the reminder lifecycle of one medication id.
type State string

const (
	StateUnscheduled State = "unscheduled"
	StateScheduled   State = "scheduled"
	StateCancelled   State = "cancelled"
)

// entry is the per-medication bookkeeping: a tagged state plus explicit
// handle lists, so reconciliation stays provably idempotent.
type entry struct {
	state        State
	doseHandles  []notify.Handle
	refillHandle notify.Handle
}

func (e *entry) handles() []notify.Handle {
	out := append([]notify.Handle(nil), e.doseHandles...)
	if e.refillHandle != "" {
		out = append(out, e.refillHandle)
	}
	return out
}

// Scheduler keeps OS-level notifications consistent with medication state.
type Scheduler struct {
	notifier notify.Notifier
	logger   *zap.Logger

	// supplyCheckTime is the HH:MM slot for recurring refill checks.
	supplyCheckTime string

	mu      sync.Mutex
	entries map[string]*entry
	locks   map[string]*sync.Mutex
}

// NewScheduler creates a new reminder scheduler
func NewScheduler(notifier notify.Notifier, logger *zap.Logger, supplyCheckTime string) *Scheduler {
	if supplyCheckTime == "" {
		supplyCheckTime = "09:00"
	}
	return &Scheduler{
		notifier:        notifier,
		logger:          logger,
		supplyCheckTime: supplyCheckTime,
		entries:         make(map[string]*entry),
		locks:           make(map[string]*sync.Mutex),
	}
}

// SyncForMedication cancels every handle owned by the medication, then
// schedules the set its current state calls for: one recurring daily
// notification per dose slot when reminders are enabled, plus at most one
// refill entry. Syncs for the same id are strictly ordered; stale handles
// are always gone before new ones exist.
func (s *Scheduler) SyncForMedication(ctx context.Context, med *medication.Medication) error {
	lock := s.lockFor(med.ID)
	lock.Lock()
	defer lock.Unlock()

	hadHandles, err := s.cancelEntry(ctx, med.ID)
	if err != nil {
		metrics.SyncsTotal.WithLabelValues("error").Inc()
		return err
	}

	var schedErr error
	var doseHandles []notify.Handle
	var refillHandle notify.Handle

	if med.ReminderEnabled {
		end := scheduleEnd(med)
		for _, slot := range med.Times {
			handle, err := s.notifier.Schedule(ctx, notify.Request{
				Kind:         notify.KindDose,
				MedicationID: med.ID,
				Title:        med.Name,
				Body:         fmt.Sprintf("Time to take %s %s", med.Name, med.Dosage),
				Time:         slot,
				Start:        med.StartDate,
				End:          end,
			})
			if err != nil {
				schedErr = err
				s.logger.Warn("Failed to schedule dose reminder",
					zap.String("medication_id", med.ID),
					zap.String("slot", slot),
					zap.Error(err),
				)
				continue
			}
			doseHandles = append(doseHandles, handle)
		}
	}

	if med.RefillReminder {
		handle, err := s.scheduleRefill(ctx, med)
		if err != nil {
			schedErr = err
			s.logger.Warn("Failed to schedule refill reminder",
				zap.String("medication_id", med.ID),
				zap.Error(err),
			)
		} else {
			refillHandle = handle
		}
	}

	s.mu.Lock()
	e := s.entries[med.ID]
	e.doseHandles = doseHandles
	e.refillHandle = refillHandle
	total := len(e.handles())
	switch {
	case total > 0:
		e.state = StateScheduled
	case hadHandles || e.state == StateScheduled:
		e.state = StateCancelled
	default:
		e.state = StateUnscheduled
	}
	s.mu.Unlock()

	metrics.RemindersActive.Add(float64(total))

	if schedErr != nil {
		metrics.SyncsTotal.WithLabelValues("error").Inc()
		return apperrors.Scheduling(schedErr, "reminder sync incomplete for "+med.ID)
	}

	metrics.SyncsTotal.WithLabelValues("ok").Inc()
	s.logger.Info("Reminders reconciled",
		zap.String("medication_id", med.ID),
		zap.Int("dose_handles", len(doseHandles)),
		zap.Bool("refill_handle", refillHandle != ""),
	)
	return nil
}

// CancelForMedication cancels all handles for the id; called on delete.
func (s *Scheduler) CancelForMedication(ctx context.Context, medicationID string) error {
	lock := s.lockFor(medicationID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.cancelEntry(ctx, medicationID); err != nil {
		return err
	}

	s.mu.Lock()
	s.entries[medicationID].state = StateCancelled
	s.mu.Unlock()
	return nil
}

// CancelAll cancels everything; used by bulk clear.
func (s *Scheduler) CancelAll(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.CancelForMedication(ctx, id); err != nil {
			return err
		}
	}
	return s.notifier.CancelAll(ctx)
}

// StateFor returns the reminder lifecycle state for a medication id.
func (s *Scheduler) StateFor(medicationID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[medicationID]; ok {
		return e.state
	}
	return StateUnscheduled
}

// HandlesFor returns the live handles owned by a medication id.
func (s *Scheduler) HandlesFor(medicationID string) []notify.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[medicationID]; ok {
		return e.handles()
	}
	return nil
}

// ActiveHandleCount returns the total number of live handles.
func (s *Scheduler) ActiveHandleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, e := range s.entries {
		total += len(e.handles())
	}
	return total
}

// scheduleRefill books the single refill entry: an immediate one-shot when
// supply is already at or below the threshold, otherwise a recurring daily
// supply check. No depletion-date projection; there is no consumption-rate
// model to project from.
func (s *Scheduler) scheduleRefill(ctx context.Context, med *medication.Medication) (notify.Handle, error) {
	if medication.Status(med) == medication.SupplyLow {
		return s.notifier.Schedule(ctx, notify.Request{
			Kind:         notify.KindRefill,
			MedicationID: med.ID,
			Title:        med.Name,
			Body:         fmt.Sprintf("Supply of %s is low, time to refill", med.Name),
			Once:         true,
		})
	}
	return s.notifier.Schedule(ctx, notify.Request{
		Kind:         notify.KindRefill,
		MedicationID: med.ID,
		Title:        med.Name,
		Body:         fmt.Sprintf("Supply check for %s", med.Name),
		Time:         s.supplyCheckTime,
		Start:        med.StartDate,
	})
}

// cancelEntry cancels every handle owned by the id before anything new is
// scheduled, and reports whether any existed. On failure the entry keeps
// its handle lists so a retry cancels them again.
func (s *Scheduler) cancelEntry(ctx context.Context, medicationID string) (bool, error) {
	e := s.entryFor(medicationID)

	s.mu.Lock()
	handles := e.handles()
	s.mu.Unlock()

	for _, h := range handles {
		if err := s.notifier.Cancel(ctx, h); err != nil {
			return len(handles) > 0, apperrors.Scheduling(err, "failed to cancel stale reminder for "+medicationID)
		}
	}

	s.mu.Lock()
	e.doseHandles = nil
	e.refillHandle = ""
	s.mu.Unlock()

	metrics.RemindersActive.Sub(float64(len(handles)))
	return len(handles) > 0, nil
}

func (s *Scheduler) lockFor(medicationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[medicationID]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[medicationID] = l
	return l
}

func (s *Scheduler) entryFor(medicationID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[medicationID]; ok {
		return e
	}
	e := &entry{state: StateUnscheduled}
	s.entries[medicationID] = e
	return e
}

func scheduleEnd(med *medication.Medication) *time.Time {
	if med.DurationDays == medication.DurationOngoing {
		return nil
	}
	end := medication.DayOf(med.StartDate).AddDate(0, 0, med.DurationDays)
	return &end
}
