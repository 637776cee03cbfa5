package app

import (
	"time"

	"quiz-match-service/internal/clock"
)

const (
	timerWaiting   = "waiting"
	timerAdvance   = "advance"
	timerQuestion  = "question"
	timerRetention = "retention"
	timerGrace     = "grace:"
)

type timerEntry struct {
	gen   uint64
	timer clock.Timer
}

// timerSet owns every scheduled task of a room. Each task has a name and a generation; a callback
// only runs if its generation is still current when it fires, so rescheduling or cancelling a name
// also invalidates a callback that is already racing for the room lock.
type timerSet struct {
	clock   clock.Clock
	seq     uint64
	entries map[string]timerEntry
}

func newTimerSet(c clock.Clock) *timerSet {
	return &timerSet{clock: c, entries: make(map[string]timerEntry)}
}

func (t *timerSet) schedule(name string, d time.Duration, fire func(gen uint64)) {
	t.cancel(name)
	t.seq++
	gen := t.seq
	t.entries[name] = timerEntry{gen: gen, timer: t.clock.AfterFunc(d, func() { fire(gen) })}
}

// claim consumes the entry if gen is current.
func (t *timerSet) claim(name string, gen uint64) bool {
	e, ok := t.entries[name]
	if !ok || e.gen != gen {
		return false
	}
	delete(t.entries, name)
	return true
}

func (t *timerSet) cancel(name string) {
	if e, ok := t.entries[name]; ok {
		e.timer.Stop()
		delete(t.entries, name)
	}
}

func (t *timerSet) cancelAll() {
	for name := range t.entries {
		t.cancel(name)
	}
}
