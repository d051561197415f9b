package encoder

import (
	"sync/atomic"
	"time"
)

// Stats tracks runtime statistics
type Stats struct {
	framesIn      atomic.Uint64
	packetsOut    atomic.Uint64
	droppedFrames atomic.Uint64
	drainedFrames atomic.Uint64
	bytesEncoded  atomic.Uint64
	keyframes     atomic.Uint64
	encodeNanos   atomic.Int64
	lastKeyframe  atomic.Value // stores time.Time
}

func (s *Stats) frameIn() { s.framesIn.Add(1) }
func (s *Stats) dropped() { s.droppedFrames.Add(1) }
func (s *Stats) drained() { s.drainedFrames.Add(1) }
func (s *Stats) encodeTime(d time.Duration) { s.encodeNanos.Add(int64(d)) }

func (s *Stats) packetOut(n int, keyframe bool) {
	s.packetsOut.Add(1)
	s.bytesEncoded.Add(uint64(n))
	if keyframe {
		s.keyframes.Add(1)
		s.lastKeyframe.Store(time.Now())
	}
}

// Snapshot returns a copy of current stats
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		FramesIn:      s.framesIn.Load(),
		PacketsOut:    s.packetsOut.Load(),
		DroppedFrames: s.droppedFrames.Load(),
		DrainedFrames: s.drainedFrames.Load(),
		BytesEncoded:  s.bytesEncoded.Load(),
		Keyframes:     s.keyframes.Load(),
		EncodeTime:    time.Duration(s.encodeNanos.Load()),
	}
	if v := s.lastKeyframe.Load(); v != nil {
		snap.LastKeyframe = v.(time.Time)
	}
	return snap
}

// StatsSnapshot is a point-in-time copy of stats
type StatsSnapshot struct {
	FramesIn      uint64 // accepted by Submit
	PacketsOut    uint64
	DroppedFrames uint64 // backend failures
	DrainedFrames uint64 // returned unprocessed at shutdown
	BytesEncoded  uint64
	Keyframes     uint64
	QueueDepth    int
	EncodeTime    time.Duration // total time spent in the backend
	LastKeyframe  time.Time
}

// CalculateFPS calculates output FPS over duration
func (s *StatsSnapshot) CalculateFPS(duration time.Duration) float64 {
	if duration <= 0 {
		return 0
	}
	return float64(s.PacketsOut) / duration.Seconds()
}

// CalculateBitRate calculates current bitrate in kbps
func (s *StatsSnapshot) CalculateBitRate(duration time.Duration) float64 {
	if duration <= 0 {
		return 0
	}
	return float64(s.BytesEncoded*8) / duration.Seconds() / 1000
}

// CalculateDropRate calculates frame drop percentage
func (s *StatsSnapshot) CalculateDropRate() float64 {
	if s.FramesIn == 0 {
		return 0
	}
	return float64(s.DroppedFrames) / float64(s.FramesIn) * 100
}

// AverageEncodeTime is the mean backend time per processed frame.
func (s *StatsSnapshot) AverageEncodeTime() time.Duration {
	n := s.PacketsOut + s.DroppedFrames
	if n == 0 {
		return 0
	}
	return s.EncodeTime / time.Duration(n)
}
