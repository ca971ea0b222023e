// Package app wires storage, registry, ledger, adherence, scheduler and
// notifier into one application object shared by the HTTP API and the CLI.
// Mutations go through App so every registry change is followed by a
// scheduler reconciliation; a scheduling failure never rolls the mutation
// back.
package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/dosewise-cli/internal/adherence"
	"github.com/gmsas95/dosewise-cli/internal/auth"
	"github.com/gmsas95/dosewise-cli/internal/config"
	apperrors "github.com/gmsas95/dosewise-cli/internal/errors"
	"github.com/gmsas95/dosewise-cli/internal/ledger"
	"github.com/gmsas95/dosewise-cli/internal/medication"
	"github.com/gmsas95/dosewise-cli/internal/metrics"
	"github.com/gmsas95/dosewise-cli/internal/notify"
	"github.com/gmsas95/dosewise-cli/internal/reminder"
	"github.com/gmsas95/dosewise-cli/internal/scan"
	"github.com/gmsas95/dosewise-cli/internal/store"
)

// App is the composition root.
type App struct {
	Config    *config.Config
	Store     *store.Store
	Registry  *medication.Registry
	Ledger    *ledger.Ledger
	Adherence *adherence.Calculator
	Scheduler *reminder.Scheduler
	Notifier  *notify.CronNotifier
	Auth      *auth.Manager
	Scan      *scan.Client
	Logger    *zap.Logger
}

// New builds the application from config. The notifier is created but not
// started; call Start once wiring is complete.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	st, err := store.New(cfg)
	if err != nil {
		return nil, err
	}

	registry := medication.NewRegistry(st, logger)
	led := ledger.New(st, logger)

	notifier := notify.NewCronNotifier(logger, st, func(d notify.Delivery) {
		metrics.NotificationsFired.WithLabelValues(string(d.Request.Kind)).Inc()

		// Recurring refill entries are supply checks: re-read the
		// medication and alert only when it is actually low.
		if d.Request.Kind == notify.KindRefill && !d.Request.Once {
			med, err := registry.Get(d.Request.MedicationID)
			if err != nil || medication.Status(med) != medication.SupplyLow {
				return
			}
			logger.Info("Refill alert",
				zap.String("medication_id", med.ID),
				zap.String("name", med.Name),
				zap.Int("supply", med.CurrentSupply),
			)
		}
	})
	scheduler := reminder.NewScheduler(notifier, logger, cfg.Reminders.SupplyCheckTime)

	a := &App{
		Config:    cfg,
		Store:     st,
		Registry:  registry,
		Ledger:    led,
		Adherence: adherence.NewCalculator(registry, led),
		Scheduler: scheduler,
		Notifier:  notifier,
		Auth:      auth.NewManager(st, logger),
		Scan:      scan.NewClient(cfg, logger),
		Logger:    logger,
	}
	return a, nil
}

// Start starts the notifier and reconciles reminders for every stored
// medication. Reconciliation failures are logged, not fatal; the registry
// stays usable with reminders degraded.
func (a *App) Start(ctx context.Context) error {
	if !a.Config.Reminders.Enabled {
		a.Logger.Info("Reminders disabled by config")
		return nil
	}

	a.Notifier.Start()

	meds, err := a.Registry.List()
	if err != nil {
		return err
	}
	for i := range meds {
		if err := a.Scheduler.SyncForMedication(ctx, &meds[i]); err != nil {
			a.Logger.Warn("Startup reminder reconciliation failed",
				zap.String("medication_id", meds[i].ID),
				zap.Error(err),
			)
		}
	}

	a.Logger.Info("Application started", zap.Int("medications", len(meds)))
	return nil
}

// Stop stops the notifier and closes storage.
func (a *App) Stop() error {
	a.Notifier.Stop()
	return a.Store.Close()
}

// AddMedication persists a new medication and schedules its reminders. The
// returned error may be a scheduling error while the medication was still
// saved; callers distinguish via the error code.
func (a *App) AddMedication(ctx context.Context, med medication.Medication) (*medication.Medication, error) {
	saved, err := a.Registry.Add(med)
	if err != nil {
		return nil, err
	}
	if err := a.Scheduler.SyncForMedication(ctx, saved); err != nil {
		return saved, err
	}
	return saved, nil
}

// UpdateMedication replaces a medication record and reconciles reminders so
// stale dose slots are cancelled before their replacements exist.
func (a *App) UpdateMedication(ctx context.Context, med medication.Medication) (*medication.Medication, error) {
	saved, err := a.Registry.Update(med)
	if err != nil {
		return nil, err
	}
	if err := a.Scheduler.SyncForMedication(ctx, saved); err != nil {
		return saved, err
	}
	return saved, nil
}

// RemoveMedication deletes the record and cancels its notifications. Dose
// history referencing the id is kept.
func (a *App) RemoveMedication(ctx context.Context, id string) error {
	if err := a.Registry.Remove(id); err != nil {
		return err
	}
	return a.Scheduler.CancelForMedication(ctx, id)
}

// RecordDose appends a dose event and, when taken, decrements the supply
// counter. A supply hitting the refill threshold re-syncs reminders so the
// low-supply one-shot fires.
func (a *App) RecordDose(ctx context.Context, medicationID string, taken bool, ts time.Time) (*ledger.DoseEvent, error) {
	event, err := a.Ledger.Record(medicationID, taken, ts)
	if err != nil {
		metrics.DosesRecorded.WithLabelValues("error").Inc()
		return nil, err
	}
	if taken {
		metrics.DosesRecorded.WithLabelValues("taken").Inc()
	} else {
		metrics.DosesRecorded.WithLabelValues("skipped").Inc()
	}

	if !taken {
		return event, nil
	}

	med, err := a.Registry.Get(medicationID)
	if err != nil {
		// Weak reference: the medication may be gone, the event stands.
		if apperrors.IsNotFound(err) {
			return event, nil
		}
		return event, err
	}

	if med.CurrentSupply > 0 {
		wasLow := medication.Status(med) == medication.SupplyLow
		med.CurrentSupply--
		updated, err := a.Registry.Update(*med)
		if err != nil {
			return event, err
		}
		if !wasLow && med.RefillReminder && medication.Status(updated) == medication.SupplyLow {
			if err := a.Scheduler.SyncForMedication(ctx, updated); err != nil {
				return event, err
			}
		}
	}
	return event, nil
}

// RecordRefill tops the supply back up and re-syncs so the low-supply
// one-shot is replaced by the recurring check.
func (a *App) RecordRefill(ctx context.Context, id string) (*medication.Medication, error) {
	med, err := a.Registry.RecordRefill(id)
	if err != nil {
		return nil, err
	}
	if err := a.Scheduler.SyncForMedication(ctx, med); err != nil {
		return med, err
	}
	return med, nil
}

// Reset wipes medications, dose history, the device PIN and all scheduled
// notifications.
func (a *App) Reset(ctx context.Context) error {
	if err := a.Scheduler.CancelAll(ctx); err != nil {
		return err
	}
	if err := a.Registry.ClearAll(); err != nil {
		return err
	}
	if err := a.Ledger.ClearAll(); err != nil {
		return err
	}
	if err := a.Auth.Clear(); err != nil {
		return err
	}
	a.Logger.Info("All data reset")
	return nil
}
