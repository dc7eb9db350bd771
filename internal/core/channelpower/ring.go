// Package channelpower implements the per-channel last-signal ring
// described in spec §4.1. It has exactly one writer and one reader, both
// the event loop thread, so it carries no locking — mirroring the
// single-mutator shards in the teacher's device registry, minus the
// sync.RWMutex that registry needs for its concurrent writers.
package channelpower

import "time"

// ChannelMax bounds the channel index space (§4.1: index 0 unused,
// 1..CHANNEL_MAX-1 valid).
const ChannelMax = 165

type sample struct {
	lastTime time.Time
	signal   int
	seen     bool
}

// Ring is the fixed-size channel power ring.
type Ring struct {
	samples [ChannelMax]sample
	decay   time.Duration
}

// New creates a Ring that considers a sample stale after decay has elapsed.
func New(decay time.Duration) *Ring {
	return &Ring{decay: decay}
}

// Record writes the latest signal sample for channel ch, if ch is in range.
// Out-of-range channels (0 or >= ChannelMax) are silently ignored, matching
// §4.1 ("index 0 unused").
func (r *Ring) Record(ch int, now time.Time, signal int) {
	if ch <= 0 || ch >= ChannelMax {
		return
	}
	r.samples[ch] = sample{lastTime: now, signal: signal, seen: true}
}

// Read returns the signal for channel ch if it is fresh as of now, or -1 if
// the sample is stale or absent (§4.1 readout rule).
func (r *Ring) Read(ch int, now time.Time) int {
	if ch <= 0 || ch >= ChannelMax {
		return -1
	}
	s := r.samples[ch]
	if !s.seen || now.Sub(s.lastTime) >= r.decay {
		return -1
	}
	return s.signal
}

// Vector returns the full decayed readout for channels 1..ChannelMax-1, in
// order, for the *INFO broadcast (§4.5 step 6).
func (r *Ring) Vector(now time.Time) []int {
	out := make([]int, 0, ChannelMax-1)
	for ch := 1; ch < ChannelMax; ch++ {
		out = append(out, r.Read(ch, now))
	}
	return out
}
