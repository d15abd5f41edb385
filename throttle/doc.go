// Package throttle decouples the arrival cadence of provider deltas from
// the update cadence of a renderer. Providers can emit hundreds of tiny
// fragments per second; repainting on every one of them overwhelms a UI
// without looking any more live. The throttler buffers fragments and
// re-emits them at a bounded rate while never reordering or dropping text:
// the concatenation of everything flushed equals the concatenation of
// everything pushed, per channel, in order.
//
// Two delivery policies exist. Frame-synchronized delivery flushes at most
// once per display frame. Interval-batched delivery flushes each delta
// immediately when the configured interval is below the immediate
// threshold, and otherwise accumulates and flushes once the interval has
// elapsed since the previous flush. Both flush any remainder when the
// stream ends, and neither flushes again after an abort.
package throttle
