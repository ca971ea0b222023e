package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/dosewise-cli/internal/config"
	"github.com/gmsas95/dosewise-cli/internal/ledger"
	"github.com/gmsas95/dosewise-cli/internal/medication"
)

func setupTestApp(t *testing.T) *App {
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Storage.DataDir = dir
	cfg.Storage.BadgerPath = filepath.Join(dir, "badger")
	cfg.Storage.SQLitePath = filepath.Join(dir, "test.db")
	cfg.Reminders.Enabled = true
	cfg.Reminders.SupplyCheckTime = "09:00"

	a, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Stop() })
	return a
}

func testMedication() medication.Medication {
	return medication.Medication{
		Name:            "Aspirin",
		Dosage:          "100mg",
		Times:           []string{"09:00", "21:00"},
		StartDate:       time.Now(),
		DurationDays:    medication.DurationOngoing,
		ReminderEnabled: true,
		CurrentSupply:   100,
		TotalSupply:     100,
		RefillAt:        20,
	}
}

func TestAddMedication_SchedulesReminders(t *testing.T) {
	a := setupTestApp(t)
	ctx := context.Background()

	med, err := a.AddMedication(ctx, testMedication())
	require.NoError(t, err)
	require.NotEmpty(t, med.ID)

	assert.Len(t, a.Scheduler.HandlesFor(med.ID), 2)
	assert.Equal(t, 2, a.Notifier.Active())
}

func TestUpdateMedication_ReplacesReminders(t *testing.T) {
	a := setupTestApp(t)
	ctx := context.Background()

	med, err := a.AddMedication(ctx, testMedication())
	require.NoError(t, err)

	med.Times = []string{"08:00"}
	updated, err := a.UpdateMedication(ctx, *med)
	require.NoError(t, err)

	assert.Len(t, a.Scheduler.HandlesFor(updated.ID), 1)
	assert.Equal(t, 1, a.Notifier.Active())
}

func TestRemoveMedication_CancelsReminders(t *testing.T) {
	a := setupTestApp(t)
	ctx := context.Background()

	med, err := a.AddMedication(ctx, testMedication())
	require.NoError(t, err)

	require.NoError(t, a.RemoveMedication(ctx, med.ID))
	assert.Equal(t, 0, a.Notifier.Active())

	_, err = a.Registry.Get(med.ID)
	assert.Error(t, err)
}

func TestRecordDose_DecrementsSupply(t *testing.T) {
	a := setupTestApp(t)
	ctx := context.Background()

	med, err := a.AddMedication(ctx, testMedication())
	require.NoError(t, err)

	event, err := a.RecordDose(ctx, med.ID, true, time.Time{})
	require.NoError(t, err)
	assert.True(t, event.Taken)

	after, err := a.Registry.Get(med.ID)
	require.NoError(t, err)
	assert.Equal(t, 99, after.CurrentSupply)
}

func TestRecordDose_SkippedKeepsSupply(t *testing.T) {
	a := setupTestApp(t)
	ctx := context.Background()

	med, err := a.AddMedication(ctx, testMedication())
	require.NoError(t, err)

	_, err = a.RecordDose(ctx, med.ID, false, time.Time{})
	require.NoError(t, err)

	after, err := a.Registry.Get(med.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, after.CurrentSupply)
}

func TestRecordDose_UnknownMedicationStillRecorded(t *testing.T) {
	a := setupTestApp(t)

	event, err := a.RecordDose(context.Background(), "ghost-id", true, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "ghost-id", event.MedicationID)

	events, err := a.Ledger.List(ledger.Filter{MedicationID: "ghost-id"})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestRecordRefill_RestoresSupply(t *testing.T) {
	a := setupTestApp(t)
	ctx := context.Background()

	m := testMedication()
	m.CurrentSupply = 5
	m.RefillReminder = true
	med, err := a.AddMedication(ctx, m)
	require.NoError(t, err)

	refilled, err := a.RecordRefill(ctx, med.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, refilled.CurrentSupply)
	require.NotNil(t, refilled.LastRefillDate)
	assert.Equal(t, medication.SupplyGood, medication.Status(refilled))
}

func TestReset_WipesEverything(t *testing.T) {
	a := setupTestApp(t)
	ctx := context.Background()

	_, err := a.AddMedication(ctx, testMedication())
	require.NoError(t, err)
	_, err = a.RecordDose(ctx, "some-id", true, time.Time{})
	require.NoError(t, err)
	require.NoError(t, a.Auth.Set("1234"))

	require.NoError(t, a.Reset(ctx))

	meds, err := a.Registry.List()
	require.NoError(t, err)
	assert.Empty(t, meds)

	events, err := a.Ledger.List(ledger.Filter{})
	require.NoError(t, err)
	assert.Empty(t, events)

	set, err := a.Auth.IsSet()
	require.NoError(t, err)
	assert.False(t, set)

	assert.Equal(t, 0, a.Notifier.Active())
}

func TestStart_ReconcilesStoredMedications(t *testing.T) {
	a := setupTestApp(t)
	ctx := context.Background()

	// Persist directly through the registry so nothing is scheduled yet.
	_, err := a.Registry.Add(testMedication())
	require.NoError(t, err)
	require.Equal(t, 0, a.Notifier.Active())

	require.NoError(t, a.Start(ctx))
	assert.Equal(t, 2, a.Notifier.Active())
}
