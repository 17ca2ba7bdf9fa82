package playback

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-console/internal/audio"
)

// Speaker consumes little-endian PCM16 mono at the output rate.
type Speaker interface {
	Write(pcm []byte) error
	// Reset drops audio already handed to the device.
	Reset() error
	Close() error
}

// Output opens a speaker for one connection.
type Output interface {
	Open(ctx context.Context) (Speaker, error)
}

// Player pulls rendered audio from a Scheduler on a fixed period and writes
// it to a Speaker.
type Player struct {
	sched   *Scheduler
	speaker Speaker
	period  time.Duration
	logger  zerolog.Logger

	// mu keeps a rendered block and its speaker write on one side of a Flush.
	mu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewPlayer creates a player. period defaults to 20ms.
func NewPlayer(sched *Scheduler, speaker Speaker, period time.Duration, logger zerolog.Logger) *Player {
	if period <= 0 {
		period = 20 * time.Millisecond
	}
	return &Player{
		sched:   sched,
		speaker: speaker,
		period:  period,
		logger:  logger.With().Str("component", "player").Logger(),
		done:    make(chan struct{}),
	}
}

// Start launches the render loop.
func (p *Player) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	go p.run(ctx)
}

func (p *Player) run(ctx context.Context) {
	defer close(p.done)

	block := int(int64(p.sched.SampleRate()) * int64(p.period) / int64(time.Second))
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(block)
		}
	}
}

func (p *Player) tick(block int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	samples := p.sched.Render(block)
	pkt := audio.FramePCM16(samples, p.sched.SampleRate())
	if err := p.speaker.Write(pkt.Data); err != nil {
		p.logger.Warn().Err(err).Msg("Speaker write failed")
	}
}

// Flush drops all scheduled audio and whatever the speaker has buffered. No
// audio rendered before the flush reaches the speaker after it.
func (p *Player) Flush() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.sched.Flush()
	if err := p.speaker.Reset(); err != nil {
		p.logger.Warn().Err(err).Msg("Speaker reset failed")
	}
	return n
}

// Stop ends the render loop and closes the speaker. Safe to call repeatedly.
func (p *Player) Stop() {
	p.once.Do(func() {
		if p.cancel != nil {
			p.cancel()
			<-p.done
		}
		p.sched.Flush()
		if err := p.speaker.Close(); err != nil {
			p.logger.Debug().Err(err).Msg("Speaker close failed")
		}
	})
}
