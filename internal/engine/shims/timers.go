package shims

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/infrastructure/monitoring"
)

// minInterval keeps a zero-delay interval from spinning the lane
const minInterval = time.Millisecond

type timer struct {
	id     int
	delay  time.Duration
	repeat bool
	task   *time.Timer
}

// Timers backs setTimeout and setInterval. Firing posts a fire call onto
// the lane; a repeating timer re-arms only after that call has run, so a
// slow script never accumulates a backlog of fires.
type Timers struct {
	lane    Lane
	metrics *monitoring.Metrics

	mu      sync.Mutex
	next    int
	active  map[int]*timer
	stopped bool
}

// NewTimers creates the timer shim
func NewTimers(lane Lane, metrics *monitoring.Metrics) *Timers {
	return &Timers{
		lane:    lane,
		metrics: metrics,
		active:  make(map[int]*timer),
	}
}

// Request schedules a timer and returns its id. delay is milliseconds as a
// string; negative, NaN, and infinite values clamp to zero.
func (t *Timers) Request(delay string, repeat bool) int {
	d := parseDelay(delay)
	if repeat && d < minInterval {
		d = minInterval
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return 0
	}

	t.next++
	tm := &timer{id: t.next, delay: d, repeat: repeat}
	t.active[tm.id] = tm
	tm.task = time.AfterFunc(d, func() { t.fire(tm) })
	t.metrics.SetTimersActive(len(t.active))
	return tm.id
}

// Clear cancels a timer. Unknown ids are ignored.
func (t *Timers) Clear(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tm, ok := t.active[id]; ok {
		tm.task.Stop()
		delete(t.active, id)
		t.metrics.SetTimersActive(len(t.active))
	}
}

// Active returns the number of scheduled timers
func (t *Timers) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// CancelAll stops every timer and rejects further requests
func (t *Timers) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for id, tm := range t.active {
		tm.task.Stop()
		delete(t.active, id)
	}
	t.metrics.SetTimersActive(0)
}

func (t *Timers) fire(tm *timer) {
	t.mu.Lock()
	if t.active[tm.id] != tm {
		t.mu.Unlock()
		return
	}
	if !tm.repeat {
		delete(t.active, tm.id)
		t.metrics.SetTimersActive(len(t.active))
	}
	t.mu.Unlock()

	var after func()
	if tm.repeat {
		after = func() { t.rearm(tm) }
	}
	if !t.lane.Invoke(hookTimerFire, []any{tm.id}, after) {
		t.Clear(tm.id)
	}
}

func (t *Timers) rearm(tm *timer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.active[tm.id] != tm {
		return
	}
	tm.task = time.AfterFunc(tm.delay, func() { t.fire(tm) })
}

func parseDelay(raw string) time.Duration {
	ms, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(ms) || math.IsInf(ms, 0) || ms < 0 {
		return 0
	}
	// Browsers treat delays past int32 milliseconds as zero
	if ms > math.MaxInt32 {
		return 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}
