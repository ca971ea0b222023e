package notify

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/dosewise-cli/internal/config"
	apperrors "github.com/gmsas95/dosewise-cli/internal/errors"
	"github.com/gmsas95/dosewise-cli/internal/store"
)

func setupTestStore(t *testing.T) *store.Store {
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Storage.DataDir = dir
	cfg.Storage.BadgerPath = filepath.Join(dir, "badger")
	cfg.Storage.SQLitePath = filepath.Join(dir, "test.db")

	st, err := store.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestCronNotifier_ScheduleRecurring(t *testing.T) {
	n := NewCronNotifier(zap.NewNop(), nil, nil)

	handle, err := n.Schedule(context.Background(), Request{
		Kind:         KindDose,
		MedicationID: "med_1",
		Time:         "09:00",
		Start:        time.Now(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, handle)
	assert.Equal(t, 1, n.Active())
}

func TestCronNotifier_InvalidTime(t *testing.T) {
	n := NewCronNotifier(zap.NewNop(), nil, nil)

	for _, bad := range []string{"", "noon", "25:00", "09:75"} {
		_, err := n.Schedule(context.Background(), Request{
			Kind: KindDose,
			Time: bad,
		})
		assert.True(t, apperrors.IsScheduling(err), "expected scheduling error for %q", bad)
	}
	assert.Equal(t, 0, n.Active())
}

func TestCronNotifier_Cancel(t *testing.T) {
	n := NewCronNotifier(zap.NewNop(), nil, nil)
	ctx := context.Background()

	handle, err := n.Schedule(ctx, Request{Kind: KindDose, Time: "08:00", Start: time.Now()})
	require.NoError(t, err)

	require.NoError(t, n.Cancel(ctx, handle))
	assert.Equal(t, 0, n.Active())

	// Unknown handles cancel as a no-op.
	require.NoError(t, n.Cancel(ctx, Handle("ghost")))
}

func TestCronNotifier_CancelAll(t *testing.T) {
	n := NewCronNotifier(zap.NewNop(), nil, nil)
	ctx := context.Background()

	for _, slot := range []string{"08:00", "12:00", "20:00"} {
		_, err := n.Schedule(ctx, Request{Kind: KindDose, Time: slot, Start: time.Now()})
		require.NoError(t, err)
	}
	require.Equal(t, 3, n.Active())

	require.NoError(t, n.CancelAll(ctx))
	assert.Equal(t, 0, n.Active())
}

func TestCronNotifier_OneShotFiresCallback(t *testing.T) {
	var mu sync.Mutex
	var fired []Delivery
	n := NewCronNotifier(zap.NewNop(), nil, func(d Delivery) {
		mu.Lock()
		fired = append(fired, d)
		mu.Unlock()
	})

	_, err := n.Schedule(context.Background(), Request{
		Kind:         KindRefill,
		MedicationID: "med_1",
		Title:        "Refill Aspirin",
		Once:         true,
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, 5*time.Second, 50*time.Millisecond)

	mu.Lock()
	assert.Equal(t, KindRefill, fired[0].Request.Kind)
	mu.Unlock()

	// One-shots are spent after firing.
	assert.Equal(t, 0, n.Active())
}

func TestCronNotifier_AuditTrail(t *testing.T) {
	st := setupTestStore(t)
	n := NewCronNotifier(zap.NewNop(), st, nil)
	ctx := context.Background()

	handle, err := n.Schedule(ctx, Request{
		Kind:         KindDose,
		MedicationID: "med_1",
		Time:         "09:00",
		Start:        time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, n.Cancel(ctx, handle))

	rows, err := st.ListDeliveries("med_1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	events := []string{rows[0].Event, rows[1].Event}
	assert.Contains(t, events, store.DeliveryScheduled)
	assert.Contains(t, events, store.DeliveryCancelled)
}

func TestCronNotifier_ContextCancelled(t *testing.T) {
	n := NewCronNotifier(zap.NewNop(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := n.Schedule(ctx, Request{Kind: KindDose, Time: "09:00"})
	assert.True(t, apperrors.IsScheduling(err))
}

func TestCronNotifier_StartStop(t *testing.T) {
	n := NewCronNotifier(zap.NewNop(), nil, nil)
	n.Start()
	n.Start() // idempotent
	n.Stop()
	n.Stop()
}
