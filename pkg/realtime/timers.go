package realtime

import (
	"sort"
	"sync"
	"time"
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler creates timers. Rooms take one so tests can drive time by hand.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemScheduler schedules on the runtime clock.
type SystemScheduler struct{}

// AfterFunc wraps time.AfterFunc.
func (SystemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Timers keeps at most one pending timer per kind. Scheduling a kind that is
// already pending stops the old timer first.
//
// Timers is guarded by the owner's lock: every method must be called with
// lock held, and fire callbacks run with lock held. A callback whose timer
// was replaced or cancelled after it started firing is discarded.
type Timers struct {
	sched   Scheduler
	lock    sync.Locker
	pending map[string]timerEntry
	gen     uint64
}

type timerEntry struct {
	timer Timer
	gen   uint64
}

// NewTimers returns an empty timer set bound to lock.
func NewTimers(sched Scheduler, lock sync.Locker) *Timers {
	if sched == nil {
		sched = SystemScheduler{}
	}
	return &Timers{
		sched:   sched,
		lock:    lock,
		pending: make(map[string]timerEntry),
	}
}

// Schedule runs fire after d under the owner's lock, replacing any pending
// timer of the same kind.
func (t *Timers) Schedule(kind string, d time.Duration, fire func()) {
	t.Cancel(kind)
	t.gen++
	gen := t.gen
	timer := t.sched.AfterFunc(d, func() {
		t.lock.Lock()
		defer t.lock.Unlock()
		entry, ok := t.pending[kind]
		if !ok || entry.gen != gen {
			return
		}
		delete(t.pending, kind)
		fire()
	})
	t.pending[kind] = timerEntry{timer: timer, gen: gen}
}

// Cancel stops the pending timer of kind. It reports whether one was pending.
func (t *Timers) Cancel(kind string) bool {
	entry, ok := t.pending[kind]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(t.pending, kind)
	return true
}

// Kinds lists the pending timer kinds in sorted order.
func (t *Timers) Kinds() []string {
	kinds := make([]string, 0, len(t.pending))
	for kind := range t.pending {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// StopAll cancels every pending timer.
func (t *Timers) StopAll() {
	for kind := range t.pending {
		t.Cancel(kind)
	}
}

// ManualScheduler is a Scheduler whose timers only fire when told to.
type ManualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	s     *ManualScheduler
	d     time.Duration
	f     func()
	done  bool
	order int
}

// AfterFunc records f; it runs when Fire or FireAll reaches it.
func (m *ManualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt := &manualTimer{s: m, d: d, f: f, order: len(m.timers)}
	m.timers = append(m.timers, mt)
	return mt
}

func (mt *manualTimer) Stop() bool {
	mt.s.mu.Lock()
	defer mt.s.mu.Unlock()
	if mt.done {
		return false
	}
	mt.done = true
	return true
}

// Pending returns the durations of timers that have neither fired nor been
// stopped, in scheduling order.
func (m *ManualScheduler) Pending() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Duration
	for _, mt := range m.timers {
		if !mt.done {
			out = append(out, mt.d)
		}
	}
	return out
}

// Fire runs the earliest scheduled live timer with duration d. It reports
// whether one was found.
func (m *ManualScheduler) Fire(d time.Duration) bool {
	m.mu.Lock()
	var next *manualTimer
	for _, mt := range m.timers {
		if !mt.done && mt.d == d {
			next = mt
			break
		}
	}
	if next != nil {
		next.done = true
	}
	m.mu.Unlock()
	if next == nil {
		return false
	}
	next.f()
	return true
}

// FireAll runs live timers in scheduling order, including ones scheduled by
// the callbacks themselves, until none remain or limit callbacks have run.
func (m *ManualScheduler) FireAll(limit int) int {
	fired := 0
	for fired < limit {
		m.mu.Lock()
		var next *manualTimer
		for _, mt := range m.timers {
			if !mt.done {
				next = mt
				break
			}
		}
		if next != nil {
			next.done = true
		}
		m.mu.Unlock()
		if next == nil {
			break
		}
		next.f()
		fired++
	}
	return fired
}
