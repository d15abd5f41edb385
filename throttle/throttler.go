package throttle

import (
	"strings"
	"sync"
	"time"

	"github.com/casualjim/parley/provider"
)

// DefaultImmediateThreshold is the interval below which interval-batched
// delivery flushes every delta synchronously. Short intervals read as
// "instant" settings; batching them would only add latency.
const DefaultImmediateThreshold = 50 * time.Millisecond

// Delta is one unit of provider output routed through the throttler.
type Delta struct {
	Channel provider.Channel
	Text    string
}

// Flush carries everything buffered since the previous flush, concatenated
// per channel in arrival order.
type Flush struct {
	Main      string
	Auxiliary string
}

// Empty reports whether the flush carries no text.
func (f Flush) Empty() bool { return f.Main == "" && f.Auxiliary == "" }

// FlushFunc receives throttled output. It is never called after Abort
// returns, and never concurrently with itself.
type FlushFunc func(Flush)

// Throttler buffers deltas and re-emits them through a FlushFunc at the
// cadence its policy dictates.
type Throttler struct {
	sched     Scheduler
	flush     FlushFunc
	immediate bool

	// deliver serializes FlushFunc calls. Close and Abort acquire it
	// before settling so they cannot overtake a scheduled flush that is
	// already past the closed check. Lock order: deliver before mu.
	deliver sync.Mutex

	mu     sync.Mutex
	main   strings.Builder
	aux    strings.Builder
	closed bool
}

// NewFrameSync returns a throttler that flushes at most once per frame
// tick of the scheduler, plus a final flush of any remainder on Close.
func NewFrameSync(sched Scheduler, flush FlushFunc) *Throttler {
	return &Throttler{sched: sched, flush: flush}
}

// NewIntervalBatched returns a throttler that accumulates deltas and
// flushes once the interval has elapsed since the previous flush. An
// interval below threshold switches to immediate per-delta delivery; a
// threshold of zero or less uses DefaultImmediateThreshold.
func NewIntervalBatched(interval, threshold time.Duration, flush FlushFunc) *Throttler {
	if threshold <= 0 {
		threshold = DefaultImmediateThreshold
	}
	return &Throttler{
		sched:     NewTimerScheduler(interval),
		flush:     flush,
		immediate: interval < threshold,
	}
}

// Push adds one delta. Depending on policy it either flushes synchronously
// or schedules a future flush. Pushing after Close or Abort is a no-op.
func (t *Throttler) Push(d Delta) {
	if t.immediate {
		t.deliver.Lock()
		defer t.deliver.Unlock()
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	switch d.Channel {
	case provider.ChannelAuxiliary:
		t.aux.WriteString(d.Text)
	default:
		t.main.WriteString(d.Text)
	}

	if t.immediate {
		out := t.takeLocked()
		t.mu.Unlock()
		if !out.Empty() {
			t.flush(out)
		}
		return
	}
	t.mu.Unlock()

	t.sched.ScheduleNextFlush(t.flushNow)
}

// Close stops scheduling and synchronously flushes any buffered
// remainder. The stream is done; nothing may be pushed afterwards.
func (t *Throttler) Close() {
	t.sched.Cancel()

	t.deliver.Lock()
	defer t.deliver.Unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	out := t.takeLocked()
	t.mu.Unlock()

	if !out.Empty() {
		t.flush(out)
	}
}

// Abort stops scheduling and discards anything buffered but not yet
// flushed. Used when the underlying stream is canceled: flushing into a
// torn-down UI is worse than losing the tail that was never shown.
func (t *Throttler) Abort() {
	t.sched.Cancel()

	t.deliver.Lock()
	defer t.deliver.Unlock()

	t.mu.Lock()
	t.closed = true
	t.main.Reset()
	t.aux.Reset()
	t.mu.Unlock()
}

func (t *Throttler) flushNow() {
	t.deliver.Lock()
	defer t.deliver.Unlock()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	out := t.takeLocked()
	t.mu.Unlock()

	if !out.Empty() {
		t.flush(out)
	}
}

func (t *Throttler) takeLocked() Flush {
	out := Flush{Main: t.main.String(), Auxiliary: t.aux.String()}
	t.main.Reset()
	t.aux.Reset()
	return out
}
