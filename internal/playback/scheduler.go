// Package playback schedules decoded model audio back to back on a sample
// clock and renders it to a speaker.
package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-console/internal/audio"
	"github.com/lexiqai/voice-console/internal/observability"
)

// Tap observes every rendered block.
type Tap interface {
	Write(samples []float32)
}

type item struct {
	start   int64
	samples []float32
	stopped bool
}

func (it *item) end() int64 { return it.start + int64(len(it.samples)) }

// Scheduler places incoming chunks at the end of the previous one so playback
// is gapless. Its clock only advances as audio is rendered.
type Scheduler struct {
	mu        sync.Mutex
	rate      int
	clock     int64 // samples rendered so far
	nextStart int64
	primed    bool
	items     []*item

	tap    Tap
	logger zerolog.Logger
}

// NewScheduler creates a scheduler for the 24 kHz output clock. tap may be nil.
func NewScheduler(tap Tap, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		rate:   audio.OutputSampleRate,
		tap:    tap,
		logger: logger.With().Str("component", "playback").Logger(),
	}
}

// Enqueue decodes an inbound audio payload and schedules it at the current
// end of the queue, or now if the queue has fallen behind. It returns the
// scheduled start time. A payload that fails to decode leaves the scheduler
// untouched.
func (s *Scheduler) Enqueue(pkt audio.Packet) (time.Duration, error) {
	samples, err := audio.DecodePCM16(pkt.Data)
	if err != nil {
		observability.RecordDecodeFailure()
		return 0, fmt.Errorf("decode playback payload: %w", err)
	}
	if rate := audio.ParseRate(pkt.MIMEType, s.rate); rate != s.rate {
		samples = audio.Resample(samples, rate, s.rate)
	}
	if len(samples) == 0 {
		return s.Now(), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nextStart < s.clock {
		if s.primed {
			observability.RecordPlaybackStall()
			s.logger.Debug().
				Dur("behind", s.toDuration(s.clock-s.nextStart)).
				Msg("Playback queue ran dry, rescheduling at now")
		}
		s.nextStart = s.clock
	}

	it := &item{start: s.nextStart, samples: samples}
	s.items = append(s.items, it)
	s.nextStart = it.end()
	s.primed = true
	observability.RecordAudioBytes("received", len(pkt.Data))

	return s.toDuration(it.start), nil
}

// Flush stops everything scheduled and resets the queue end to now. It
// returns how many chunks were dropped.
func (s *Scheduler) Flush() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.items)
	for _, it := range s.items {
		it.stopped = true
	}
	s.items = nil
	s.nextStart = s.clock
	s.primed = false
	return n
}

// Render mixes the next n samples, advances the clock and releases chunks
// that finished playing.
func (s *Scheduler) Render(n int) []float32 {
	out := make([]float32, n)

	s.mu.Lock()
	from, to := s.clock, s.clock+int64(n)
	kept := s.items[:0]
	for _, it := range s.items {
		if it.stopped {
			continue
		}
		lo, hi := max(it.start, from), min(it.end(), to)
		for i := lo; i < hi; i++ {
			out[i-from] += it.samples[i-it.start]
		}
		if it.end() > to {
			kept = append(kept, it)
		}
	}
	for i := len(kept); i < len(s.items); i++ {
		s.items[i] = nil
	}
	s.items = kept
	s.clock = to
	s.mu.Unlock()

	if s.tap != nil {
		s.tap.Write(out)
	}
	return out
}

// Now is the playback clock.
func (s *Scheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toDuration(s.clock)
}

// NextStart is where the next chunk will be placed if the queue has not
// fallen behind.
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toDuration(s.nextStart)
}

// Scheduled returns the start times of chunks still queued or playing.
func (s *Scheduler) Scheduled() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	starts := make([]time.Duration, len(s.items))
	for i, it := range s.items {
		starts[i] = s.toDuration(it.start)
	}
	return starts
}

// Pending reports whether any audio is queued or playing.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items) > 0
}

// SampleRate is the rate of the rendered signal.
func (s *Scheduler) SampleRate() int { return s.rate }

func (s *Scheduler) toDuration(samples int64) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(s.rate)
}
