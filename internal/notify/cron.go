package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/dosewise-cli/internal/errors"
	"github.com/gmsas95/dosewise-cli/internal/store"
)

// oneShotDelay is how soon a Once request fires after scheduling.
const oneShotDelay = time.Second

// CronNotifier implements Notifier on a cron runner. Recurring requests
// become daily cron entries; one-shots use a timer. Firing means logging,
// appending a delivery audit row and invoking the callback.
type CronNotifier struct {
	cron     *cron.Cron
	logger   *zap.Logger
	store    *store.Store
	callback Callback

	mu      sync.Mutex
	running bool
	entries map[Handle]cron.EntryID
	timers  map[Handle]*time.Timer
	reqs    map[Handle]Request
}

// NewCronNotifier creates a cron-backed notifier. The store may be nil to
// skip delivery auditing; the callback may be nil.
func NewCronNotifier(logger *zap.Logger, st *store.Store, callback Callback) *CronNotifier {
	return &CronNotifier{
		cron:     cron.New(),
		logger:   logger,
		store:    st,
		callback: callback,
		entries:  make(map[Handle]cron.EntryID),
		timers:   make(map[Handle]*time.Timer),
		reqs:     make(map[Handle]Request),
	}
}

// Start starts the cron runner
func (n *CronNotifier) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return
	}
	n.running = true
	n.cron.Start()
	n.logger.Info("Notifier started")
}

// Stop stops the cron runner and drops pending one-shot timers.
func (n *CronNotifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.running {
		return
	}
	n.running = false
	for _, timer := range n.timers {
		timer.Stop()
	}
	n.cron.Stop()
	n.logger.Info("Notifier stopped")
}

// Schedule registers a notification and returns its handle.
func (n *CronNotifier) Schedule(ctx context.Context, req Request) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.Scheduling(err, "schedule aborted")
	}

	handle := Handle(uuid.NewString())

	if req.Once {
		n.mu.Lock()
		n.reqs[handle] = req
		n.timers[handle] = time.AfterFunc(oneShotDelay, func() {
			n.fire(handle)
		})
		n.mu.Unlock()
		n.audit(handle, req, store.DeliveryScheduled)
		return handle, nil
	}

	var hour, minute int
	if _, err := fmt.Sscanf(req.Time, "%d:%d", &hour, &minute); err != nil {
		return "", apperrors.Scheduling(err, "invalid time of day: "+req.Time)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return "", apperrors.Scheduling(nil, "invalid time of day: "+req.Time)
	}

	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	entryID, err := n.cron.AddFunc(spec, func() {
		if !n.inWindow(handle, time.Now()) {
			return
		}
		n.fire(handle)
	})
	if err != nil {
		return "", apperrors.Scheduling(err, "failed to add cron entry")
	}

	n.mu.Lock()
	n.entries[handle] = entryID
	n.reqs[handle] = req
	n.mu.Unlock()

	n.logger.Debug("Notification scheduled",
		zap.String("handle", string(handle)),
		zap.String("medication_id", req.MedicationID),
		zap.String("kind", string(req.Kind)),
		zap.String("time", req.Time),
	)
	n.audit(handle, req, store.DeliveryScheduled)
	return handle, nil
}

// Cancel removes one scheduled notification. Cancelling an unknown handle
// is a no-op.
func (n *CronNotifier) Cancel(ctx context.Context, handle Handle) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Scheduling(err, "cancel aborted")
	}

	n.mu.Lock()
	req, known := n.reqs[handle]
	if entryID, ok := n.entries[handle]; ok {
		n.cron.Remove(entryID)
		delete(n.entries, handle)
	}
	if timer, ok := n.timers[handle]; ok {
		timer.Stop()
		delete(n.timers, handle)
	}
	delete(n.reqs, handle)
	n.mu.Unlock()

	if known {
		n.audit(handle, req, store.DeliveryCancelled)
	}
	return nil
}

// CancelAll removes every scheduled notification.
func (n *CronNotifier) CancelAll(ctx context.Context) error {
	n.mu.Lock()
	handles := make([]Handle, 0, len(n.reqs))
	for h := range n.reqs {
		handles = append(handles, h)
	}
	n.mu.Unlock()

	for _, h := range handles {
		if err := n.Cancel(ctx, h); err != nil {
			return err
		}
	}
	return nil
}

// Active returns the number of live handles.
func (n *CronNotifier) Active() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.reqs)
}

func (n *CronNotifier) inWindow(handle Handle, now time.Time) bool {
	n.mu.Lock()
	req, ok := n.reqs[handle]
	n.mu.Unlock()
	if !ok {
		return false
	}
	day := dayOf(now)
	if day.Before(dayOf(req.Start)) {
		return false
	}
	if req.End != nil && !day.Before(dayOf(*req.End)) {
		return false
	}
	return true
}

func (n *CronNotifier) fire(handle Handle) {
	n.mu.Lock()
	req, ok := n.reqs[handle]
	if ok && req.Once {
		// One-shots are spent once fired.
		delete(n.timers, handle)
		delete(n.reqs, handle)
	}
	n.mu.Unlock()
	if !ok {
		return
	}

	n.logger.Info("Notification fired",
		zap.String("handle", string(handle)),
		zap.String("medication_id", req.MedicationID),
		zap.String("kind", string(req.Kind)),
		zap.String("title", req.Title),
	)
	n.audit(handle, req, store.DeliveryFired)

	if n.callback != nil {
		n.callback(Delivery{Handle: handle, Request: req, At: time.Now()})
	}
}

func (n *CronNotifier) audit(handle Handle, req Request, event string) {
	if n.store == nil {
		return
	}
	err := n.store.RecordDelivery(&store.ReminderDelivery{
		MedicationID: req.MedicationID,
		Handle:       string(handle),
		Kind:         string(req.Kind),
		Event:        event,
		Title:        req.Title,
		Body:         req.Body,
	})
	if err != nil {
		n.logger.Warn("Failed to record delivery audit", zap.Error(err))
	}
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
