package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/dosewise-cli/internal/errors"
	"github.com/gmsas95/dosewise-cli/internal/medication"
	"github.com/gmsas95/dosewise-cli/internal/notify"
)

// fakeNotifier records schedule and cancel calls, with optional per-slot
// failure injection.
type fakeNotifier struct {
	mu        sync.Mutex
	scheduled map[notify.Handle]notify.Request
	failTimes map[string]bool
	failAll   bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		scheduled: make(map[notify.Handle]notify.Request),
		failTimes: make(map[string]bool),
	}
}

func (f *fakeNotifier) Schedule(_ context.Context, req notify.Request) (notify.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll || f.failTimes[req.Time] {
		return "", errors.New("notification service unavailable")
	}
	h := notify.Handle(uuid.NewString())
	f.scheduled[h] = req
	return h, nil
}

func (f *fakeNotifier) Cancel(_ context.Context, handle notify.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.scheduled, handle)
	return nil
}

func (f *fakeNotifier) CancelAll(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = make(map[notify.Handle]notify.Request)
	return nil
}

func (f *fakeNotifier) live() []notify.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notify.Request, 0, len(f.scheduled))
	for _, req := range f.scheduled {
		out = append(out, req)
	}
	return out
}

func twiceDaily() *medication.Medication {
	return &medication.Medication{
		ID:              "med_aspirin",
		Name:            "Aspirin",
		Dosage:          "100mg",
		Times:           []string{"09:00", "21:00"},
		StartDate:       time.Now(),
		DurationDays:    medication.DurationOngoing,
		ReminderEnabled: true,
		CurrentSupply:   80,
		TotalSupply:     100,
		RefillAt:        20,
	}
}

func TestSyncForMedication_SchedulesPerSlot(t *testing.T) {
	fn := newFakeNotifier()
	s := NewScheduler(fn, zap.NewNop(), "09:00")

	med := twiceDaily()
	require.NoError(t, s.SyncForMedication(context.Background(), med))

	assert.Len(t, s.HandlesFor(med.ID), 2)
	assert.Equal(t, StateScheduled, s.StateFor(med.ID))

	live := fn.live()
	require.Len(t, live, 2)
	slots := []string{live[0].Time, live[1].Time}
	assert.ElementsMatch(t, []string{"09:00", "21:00"}, slots)
	for _, req := range live {
		assert.Equal(t, notify.KindDose, req.Kind)
		assert.Equal(t, med.ID, req.MedicationID)
	}
}

func TestSyncForMedication_Idempotent(t *testing.T) {
	fn := newFakeNotifier()
	s := NewScheduler(fn, zap.NewNop(), "09:00")

	med := twiceDaily()
	med.RefillReminder = true
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.SyncForMedication(ctx, med))
	}

	// Two dose handles plus exactly one refill handle, no matter how many
	// times sync runs.
	assert.Len(t, s.HandlesFor(med.ID), 3)
	assert.Len(t, fn.live(), 3)
}

func TestSyncForMedication_EditReplacesHandles(t *testing.T) {
	fn := newFakeNotifier()
	s := NewScheduler(fn, zap.NewNop(), "09:00")
	ctx := context.Background()

	med := twiceDaily()
	med.Times = []string{"09:00"}
	require.NoError(t, s.SyncForMedication(ctx, med))
	require.Len(t, s.HandlesFor(med.ID), 1)

	med.Times = []string{"09:00", "21:00"}
	require.NoError(t, s.SyncForMedication(ctx, med))

	// The stale 09:00 handle must be gone, not joined by the new pair.
	assert.Len(t, s.HandlesFor(med.ID), 2)
	assert.Len(t, fn.live(), 2)
}

func TestSyncForMedication_RemindersDisabled(t *testing.T) {
	fn := newFakeNotifier()
	s := NewScheduler(fn, zap.NewNop(), "09:00")
	ctx := context.Background()

	med := twiceDaily()
	require.NoError(t, s.SyncForMedication(ctx, med))
	require.Equal(t, StateScheduled, s.StateFor(med.ID))

	med.ReminderEnabled = false
	require.NoError(t, s.SyncForMedication(ctx, med))

	assert.Empty(t, s.HandlesFor(med.ID))
	assert.Empty(t, fn.live())
	assert.Equal(t, StateCancelled, s.StateFor(med.ID))
}

func TestSyncForMedication_RefillOneShotWhenLow(t *testing.T) {
	fn := newFakeNotifier()
	s := NewScheduler(fn, zap.NewNop(), "09:00")

	med := twiceDaily()
	med.ReminderEnabled = false
	med.RefillReminder = true
	med.CurrentSupply = 10 // 10% of 100, at or below the 20 threshold

	require.NoError(t, s.SyncForMedication(context.Background(), med))

	live := fn.live()
	require.Len(t, live, 1)
	assert.Equal(t, notify.KindRefill, live[0].Kind)
	assert.True(t, live[0].Once)
}

func TestSyncForMedication_RefillRecurringWhenNotLow(t *testing.T) {
	fn := newFakeNotifier()
	s := NewScheduler(fn, zap.NewNop(), "07:30")

	med := twiceDaily()
	med.ReminderEnabled = false
	med.RefillReminder = true

	require.NoError(t, s.SyncForMedication(context.Background(), med))

	live := fn.live()
	require.Len(t, live, 1)
	assert.Equal(t, notify.KindRefill, live[0].Kind)
	assert.False(t, live[0].Once)
	assert.Equal(t, "07:30", live[0].Time)
}

func TestSyncForMedication_PartialFailure(t *testing.T) {
	fn := newFakeNotifier()
	fn.failTimes["21:00"] = true
	s := NewScheduler(fn, zap.NewNop(), "09:00")

	med := twiceDaily()
	err := s.SyncForMedication(context.Background(), med)
	require.Error(t, err)
	assert.True(t, apperrors.IsScheduling(err))

	// The slot that did schedule survives; no rollback.
	assert.Len(t, s.HandlesFor(med.ID), 1)

	// A retry after the service recovers converges on the full set.
	fn.mu.Lock()
	fn.failTimes["21:00"] = false
	fn.mu.Unlock()
	require.NoError(t, s.SyncForMedication(context.Background(), med))
	assert.Len(t, s.HandlesFor(med.ID), 2)
	assert.Len(t, fn.live(), 2)
}

func TestSyncForMedication_ConcurrentSyncsSameID(t *testing.T) {
	fn := newFakeNotifier()
	s := NewScheduler(fn, zap.NewNop(), "09:00")
	ctx := context.Background()

	slotSets := [][]string{
		{"08:00"},
		{"09:00", "21:00"},
		{"07:00", "13:00", "19:00"},
	}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			med := twiceDaily()
			med.Times = slotSets[n%len(slotSets)]
			assert.NoError(t, s.SyncForMedication(ctx, med))
		}(i)
	}
	wg.Wait()

	// Syncs are serialized per id, so the surviving handles must match
	// exactly one of the slot sets with nothing mixed in or leaked.
	handles := s.HandlesFor("med_aspirin")
	live := fn.live()
	require.Len(t, live, len(handles))

	slots := make([]string, 0, len(live))
	for _, req := range live {
		assert.Equal(t, notify.KindDose, req.Kind)
		slots = append(slots, req.Time)
	}

	matched := false
	for _, set := range slotSets {
		if len(set) != len(slots) {
			continue
		}
		assert.ElementsMatch(t, set, slots)
		matched = true
		break
	}
	assert.True(t, matched, "live slots %v must match one input set", slots)
	assert.Equal(t, StateScheduled, s.StateFor("med_aspirin"))
}

func TestCancelForMedication(t *testing.T) {
	fn := newFakeNotifier()
	s := NewScheduler(fn, zap.NewNop(), "09:00")
	ctx := context.Background()

	med := twiceDaily()
	require.NoError(t, s.SyncForMedication(ctx, med))

	require.NoError(t, s.CancelForMedication(ctx, med.ID))
	assert.Empty(t, s.HandlesFor(med.ID))
	assert.Empty(t, fn.live())
	assert.Equal(t, StateCancelled, s.StateFor(med.ID))

	// Cancelling an id that never scheduled is a no-op.
	require.NoError(t, s.CancelForMedication(ctx, "never_seen"))
}

func TestCancelAll(t *testing.T) {
	fn := newFakeNotifier()
	s := NewScheduler(fn, zap.NewNop(), "09:00")
	ctx := context.Background()

	first := twiceDaily()
	second := twiceDaily()
	second.ID = "med_metformin"
	second.Name = "Metformin"

	require.NoError(t, s.SyncForMedication(ctx, first))
	require.NoError(t, s.SyncForMedication(ctx, second))
	require.Equal(t, 4, s.ActiveHandleCount())

	require.NoError(t, s.CancelAll(ctx))
	assert.Equal(t, 0, s.ActiveHandleCount())
	assert.Empty(t, fn.live())
}

func TestStateFor_Unscheduled(t *testing.T) {
	s := NewScheduler(newFakeNotifier(), zap.NewNop(), "09:00")
	assert.Equal(t, StateUnscheduled, s.StateFor("unknown"))
}

func TestSyncForMedication_WithCronNotifier(t *testing.T) {
	n := notify.NewCronNotifier(zap.NewNop(), nil, nil)
	s := NewScheduler(n, zap.NewNop(), "09:00")

	med := twiceDaily()
	med.RefillReminder = true
	ctx := context.Background()

	require.NoError(t, s.SyncForMedication(ctx, med))
	assert.Equal(t, 3, n.Active())

	require.NoError(t, s.SyncForMedication(ctx, med))
	assert.Equal(t, 3, n.Active())

	require.NoError(t, s.CancelForMedication(ctx, med.ID))
	assert.Equal(t, 0, n.Active())
}
