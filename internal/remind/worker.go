// Package remind contains the scheduling engine: reminder extraction, the
// pending-reminder queue, the resync cadence and the single wake-timer.
package remind

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"

	"remindd/internal/caldav"
	"remindd/internal/config"
	appLog "remindd/internal/log"
	"remindd/internal/model"
	"remindd/internal/notify"
)

// Gateway is the calendar access the worker consumes.
type Gateway interface {
	Calendars(ctx context.Context) ([]caldav.Calendar, error)
	Search(ctx context.Context, cals []caldav.Calendar, start, end time.Time) ([]model.Event, error)
}

// Status is a point-in-time snapshot of the worker, safe to read from other
// goroutines (the status web server polls it).
type Status struct {
	LastSync     time.Time  `json:"last_sync"`
	NextSync     time.Time  `json:"next_sync"`
	Pending      int        `json:"pending"`
	NextReminder *time.Time `json:"next_reminder,omitempty"`
	Dispatched   uint64     `json:"dispatched"`
}

// Worker owns the pending-reminder queue, the resync cadence and the single
// wake-timer.
//
// All queue and timer state is mutated exclusively from the Run goroutine:
// the sync handler and the dispatch handler run non-interleaved by
// construction (one select loop), so no lock guards them. Only the Status
// snapshot is shared.
type Worker struct {
	cfg      *config.Config
	gateway  Gateway
	sink     notify.Notifier
	clk      clock.Clock
	loc      *time.Location
	schedule cron.Schedule

	// Owned by the Run goroutine.
	calendars   []caldav.Calendar
	calsFetched bool
	queue       []model.Reminder
	wakeTimer   *clock.Timer
	wakeC       <-chan time.Time
	lastSync    time.Time
	nextSync    time.Time
	dispatched  uint64

	statusMu sync.RWMutex
	status   Status
}

// New builds a worker. The sync cadence is a cron schedule: SYNC_CRON when
// configured, otherwise a constant delay of SYNC_INTERVAL_IN_SEC so the next
// cycle always lands at now + interval.
func New(cfg *config.Config, gw Gateway, sink notify.Notifier) (*Worker, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var schedule cron.Schedule
	if cfg.SyncCron != "" {
		schedule, err = cron.ParseStandard(cfg.SyncCron)
		if err != nil {
			return nil, fmt.Errorf("invalid SYNC_CRON %q: %w", cfg.SyncCron, err)
		}
	} else {
		schedule = cron.Every(cfg.SyncInterval())
	}

	return &Worker{
		cfg:      cfg,
		gateway:  gw,
		sink:     sink,
		clk:      clock.New(),
		loc:      loc,
		schedule: schedule,
	}, nil
}

// Run executes the worker loop until ctx is cancelled: an immediate first
// sync, then whichever deadline (next sync or next reminder) elapses first.
// This is a blocking call.
func (w *Worker) Run(ctx context.Context) error {
	appLog.Info("worker started",
		"sync_interval_sec", w.cfg.SyncIntervalSec,
		"window_days", w.cfg.WindowDays,
		"timezone", w.loc.String(),
	)

	// First sync runs immediately; the timer then carries the cadence.
	syncTimer := w.clk.Timer(w.runSync(ctx))
	defer func() { syncTimer.Stop() }()

	for {
		select {
		case <-ctx.Done():
			if w.wakeTimer != nil {
				w.wakeTimer.Stop()
				w.wakeTimer = nil
				w.wakeC = nil
			}
			return ctx.Err()

		case <-syncTimer.C:
			next := w.runSync(ctx)
			// A fresh timer per cycle; a stale tick on a replaced channel is
			// simply never read.
			syncTimer = w.clk.Timer(next)

		case <-w.wakeC:
			// The timer that just fired is no longer outstanding.
			w.wakeTimer = nil
			w.wakeC = nil
			w.dispatchDue(ctx)
		}
	}
}

// runSync performs one sync cycle and returns the delay until the next one.
// The next deadline is fixed before any network work, so no failure path can
// silently kill the cadence.
func (w *Worker) runSync(ctx context.Context) time.Duration {
	now := w.now()
	nextAt := w.schedule.Next(now)
	next := nextAt.Sub(now)
	if next <= 0 {
		next = w.cfg.SyncInterval()
		nextAt = now.Add(next)
	}

	appLog.Info("syncing")

	changed, err := w.syncOnce(ctx, now)
	switch {
	case err != nil:
		// Transient: keep the previous queue and its timer, next cycle runs
		// on schedule regardless.
		appLog.Error("sync cycle failed", err)
	case changed:
		w.rescheduleWake()
	}

	w.lastSync = now
	w.nextSync = nextAt
	w.publishStatus()
	return next
}

// syncOnce fetches the calendar list (once per process), queries events in
// the configured window, extracts reminders and swaps the queue when the
// fresh list differs by value from the held one.
func (w *Worker) syncOnce(ctx context.Context, now time.Time) (bool, error) {
	if !w.calsFetched {
		cals, err := w.gateway.Calendars(ctx)
		if err != nil {
			return false, fmt.Errorf("fetching calendar list: %w", err)
		}
		w.calendars = cals
		w.calsFetched = true
		appLog.Info("calendar list fetched", "count", len(cals))
	}

	subscribed := w.subscribed()
	events, err := w.gateway.Search(ctx, subscribed, now, now.Add(w.cfg.Window()))
	if err != nil {
		return false, fmt.Errorf("searching events: %w", err)
	}

	fresh := Extract(events, now)
	if model.RemindersEqual(fresh, w.queue) {
		appLog.Debug("reminders unchanged", "pending", len(w.queue))
		return false, nil
	}

	appLog.Info("reminder queue replaced", "pending", len(fresh), "was", len(w.queue))
	w.queue = fresh
	return true, nil
}

// subscribed filters the cached calendar list to the configured
// subscription set.
func (w *Worker) subscribed() []caldav.Calendar {
	wanted := make(map[string]bool, len(w.cfg.CalendarIDs))
	for _, id := range w.cfg.CalendarIDs {
		wanted[id] = true
	}
	out := make([]caldav.Calendar, 0, len(wanted))
	for _, cal := range w.calendars {
		if wanted[cal.ID] {
			out = append(out, cal)
		}
	}
	return out
}

// rescheduleWake is the single mutation point for the wake-timer: it always
// cancels any outstanding timer first, then arms one for the queue head, or
// none when the queue is empty. At most one timer is ever outstanding.
func (w *Worker) rescheduleWake() {
	if w.wakeTimer != nil {
		// Stopping an already-fired timer is a benign no-op.
		w.wakeTimer.Stop()
		w.wakeTimer = nil
		w.wakeC = nil
	}

	if len(w.queue) == 0 {
		appLog.Debug("queue empty; wake timer disarmed")
		return
	}

	d := w.queue[0].FireAt.Sub(w.now())
	if d < 0 {
		d = 0
	}
	w.wakeTimer = w.clk.Timer(d)
	w.wakeC = w.wakeTimer.C
	appLog.Debug("wake timer armed", "fire_at", w.queue[0].FireAt.Format(time.RFC3339), "in", d)
}

// dispatchDue drains every reminder whose fire instant has elapsed, sending
// one notification per reminder, then re-arms the wake-timer for the next
// remaining reminder. Delivery is at-most-once: a failed send is logged and
// the reminder stays dispatched.
func (w *Worker) dispatchDue(ctx context.Context) {
	for len(w.queue) > 0 && !w.queue[0].FireAt.After(w.now()) {
		r := w.queue[0]
		w.queue = w.queue[1:]

		appLog.Info("sending reminder", "event", r.Summary, "fire_at", r.FireAt.Format(time.RFC3339))
		if err := w.sink.Send(ctx, r.Message()); err != nil {
			appLog.Error("reminder delivery failed", err, "event", r.Summary)
		}
		w.dispatched++

		if ctx.Err() != nil {
			// Cancelled mid-drain: popped items stay removed, the rest stay
			// queued for the next timer.
			break
		}
	}

	w.rescheduleWake()
	w.publishStatus()
}

// RunOnce performs a single sync cycle and returns the extracted queue
// without arming any timer. Used by the -once flag.
func (w *Worker) RunOnce(ctx context.Context) ([]model.Reminder, error) {
	_, err := w.syncOnce(ctx, w.now())
	return w.queue, err
}

// Status returns the latest published snapshot.
func (w *Worker) Status() Status {
	w.statusMu.RLock()
	defer w.statusMu.RUnlock()
	return w.status
}

func (w *Worker) publishStatus() {
	s := Status{
		LastSync:   w.lastSync,
		NextSync:   w.nextSync,
		Pending:    len(w.queue),
		Dispatched: w.dispatched,
	}
	if len(w.queue) > 0 {
		next := w.queue[0].FireAt
		s.NextReminder = &next
	}

	w.statusMu.Lock()
	w.status = s
	w.statusMu.Unlock()
}

func (w *Worker) now() time.Time {
	return w.clk.Now().In(w.loc)
}
