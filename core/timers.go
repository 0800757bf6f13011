package recorder

import (
	"time"

	"github.com/jonboulle/clockwork"
)

type timerKind int

const (
	minSpeechTimer timerKind = iota
	silenceTimer
	finalizationTimer

	timerKindCount
)

func (k timerKind) String() string {
	switch k {
	case minSpeechTimer:
		return "min_speech_duration"
	case silenceTimer:
		return "silence_timeout"
	case finalizationTimer:
		return "finalization_timeout"
	default:
		return "unknown"
	}
}

// timerFired is posted by a countdown when it runs out.
type timerFired struct {
	kind       timerKind
	generation uint64
	at         time.Time
}

// timerSet owns one cancelable countdown per kind. Only the recorder loop
// calls its methods; countdowns report back through onFire.
//
// Every start and cancel bumps the kind's generation, so a countdown that fired
// while the loop was busy cancelling it is recognised as stale by accept.
type timerSet struct {
	clock  clockwork.Clock
	onFire func(timerFired)

	handles     [timerKindCount]clockwork.Timer
	generations [timerKindCount]uint64
}

func newTimerSet(clock clockwork.Clock, onFire func(timerFired)) *timerSet {
	return &timerSet{clock: clock, onFire: onFire}
}

// start replaces any live countdown of kind with a new one of duration d.
func (t *timerSet) start(kind timerKind, d time.Duration) {
	t.cancel(kind)

	generation := t.generations[kind]
	clock, onFire := t.clock, t.onFire
	t.handles[kind] = clock.AfterFunc(d, func() {
		onFire(timerFired{kind: kind, generation: generation, at: clock.Now()})
	})
}

func (t *timerSet) cancel(kind timerKind) {
	if handle := t.handles[kind]; handle != nil {
		handle.Stop()
		t.handles[kind] = nil
	}
	t.generations[kind]++
}

func (t *timerSet) cancelAll() {
	for kind := range timerKindCount {
		t.cancel(kind)
	}
}

// accept reports whether fired belongs to the live countdown of its kind, and
// if so retires it.
func (t *timerSet) accept(fired timerFired) bool {
	if fired.kind < 0 || fired.kind >= timerKindCount {
		return false
	}
	if t.handles[fired.kind] == nil || t.generations[fired.kind] != fired.generation {
		return false
	}

	t.handles[fired.kind] = nil
	t.generations[fired.kind]++
	return true
}

func (t *timerSet) pending(kind timerKind) bool {
	return t.handles[kind] != nil
}
