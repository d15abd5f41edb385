package throttle

import (
	"sync"
	"time"
)

// Scheduler arranges a single future flush callback. It is the seam
// between throttling policy and host timing: a fixed-rate timer here, a
// display-refresh callback in a GUI host. Implementations must guarantee
// that no callback runs after Cancel returns and that at most one
// callback is outstanding at a time.
type Scheduler interface {
	// ScheduleNextFlush arranges for fn to run once, later. Calling it
	// while a callback is already pending is a no-op.
	ScheduleNextFlush(fn func())
	// Cancel stops any pending callback and rejects future scheduling.
	Cancel()
}

// TimerScheduler fires a pending flush a fixed delay after it was
// scheduled.
type TimerScheduler struct {
	delay time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	canceled bool
}

// NewTimerScheduler returns a scheduler firing after the given delay.
func NewTimerScheduler(delay time.Duration) *TimerScheduler {
	return &TimerScheduler{delay: delay}
}

func (s *TimerScheduler) ScheduleNextFlush(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canceled || s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		s.timer = nil
		canceled := s.canceled
		s.mu.Unlock()
		if !canceled {
			fn()
		}
	})
}

func (s *TimerScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canceled = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// DefaultFramePeriod approximates a 60 Hz display refresh.
const DefaultFramePeriod = 16670 * time.Microsecond

// FrameScheduler emulates display-refresh callbacks: flushes land on frame
// boundaries measured from construction, so at most one flush can occur
// per frame tick no matter how often scheduling is requested.
type FrameScheduler struct {
	period time.Duration
	epoch  time.Time

	mu       sync.Mutex
	timer    *time.Timer
	canceled bool
}

// NewFrameScheduler returns a frame scheduler with the given frame period.
// A zero or negative period uses DefaultFramePeriod.
func NewFrameScheduler(period time.Duration) *FrameScheduler {
	if period <= 0 {
		period = DefaultFramePeriod
	}
	return &FrameScheduler{period: period, epoch: time.Now()}
}

func (s *FrameScheduler) ScheduleNextFlush(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canceled || s.timer != nil {
		return
	}

	// Delay to the next frame boundary.
	elapsed := time.Since(s.epoch)
	wait := s.period - elapsed%s.period

	s.timer = time.AfterFunc(wait, func() {
		s.mu.Lock()
		s.timer = nil
		canceled := s.canceled
		s.mu.Unlock()
		if !canceled {
			fn()
		}
	})
}

func (s *FrameScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canceled = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
