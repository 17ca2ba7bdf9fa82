// Package capture turns microphone audio into wire packets for the live
// session.
package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-console/internal/audio"
	"github.com/lexiqai/voice-console/internal/observability"
	"github.com/lexiqai/voice-console/internal/resilience"
)

// FrameSize is the number of samples delivered per capture callback.
const FrameSize = 4096

// Sink receives every unmuted packet.
type Sink func(ctx context.Context, pkt audio.Packet) error

// Tap observes raw frames before the mute check.
type Tap interface {
	Write(samples []float32)
}

// PipelineConfig wires a Pipeline.
type PipelineConfig struct {
	Stream    Stream
	Sink      Sink
	Tap       Tap
	Muted     func() bool
	Breaker   *resilience.CircuitBreaker
	FrameSize int
	Logger    zerolog.Logger
}

// Pipeline reads a capture stream, regroups it into fixed frames and sends
// each unmuted frame as 16 kHz PCM.
type Pipeline struct {
	stream    Stream
	sink      Sink
	tap       Tap
	muted     func() bool
	breaker   *resilience.CircuitBreaker
	frameSize int
	logger    zerolog.Logger

	ring   *audio.RingBuffer
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewPipeline creates a pipeline. Call Start to begin reading.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	frameSize := cfg.FrameSize
	if frameSize <= 0 {
		frameSize = FrameSize
	}
	muted := cfg.Muted
	if muted == nil {
		muted = func() bool { return false }
	}
	return &Pipeline{
		stream:    cfg.Stream,
		sink:      cfg.Sink,
		tap:       cfg.Tap,
		muted:     muted,
		breaker:   cfg.Breaker,
		frameSize: frameSize,
		logger:    cfg.Logger.With().Str("component", "capture").Logger(),
		ring:      audio.NewRingBuffer(frameSize*4 + 1),
		done:      make(chan struct{}),
	}
}

// Start launches the reader goroutine.
func (p *Pipeline) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	go p.run(ctx)
}

// Stop halts the pipeline and closes the stream. Safe to call repeatedly and
// before Start.
func (p *Pipeline) Stop() {
	p.once.Do(func() {
		if p.cancel == nil {
			close(p.done)
			p.stream.Close()
			return
		}
		p.cancel()
		p.stream.Close()
		<-p.done

		if n := p.ring.Available(); n > 0 {
			p.logger.Debug().Int("samples", n).Msg("Discarding partial capture frame")
			p.ring.Clear()
		}
		if p.breaker != nil {
			state, requests, failures, rate := p.breaker.GetStats()
			p.logger.Debug().
				Str("breaker_state", state.String()).
				Int64("requests", requests).
				Int64("failures", failures).
				Float64("failure_rate", rate).
				Msg("Capture stopped")
		}
	})
}

// Done is closed once the reader goroutine has exited.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

func (p *Pipeline) run(ctx context.Context) {
	defer close(p.done)

	buf := make([]byte, p.frameSize*4)
	var carry []byte
	frame := make([]float32, p.frameSize)
	samples := make([]float32, 0, p.frameSize)

	for {
		n, err := p.stream.Read(buf)
		if n > 0 {
			data := buf[:n]
			if len(carry) > 0 {
				data = append(carry, data...)
				carry = nil
			}
			whole := len(data) &^ 3
			if whole < len(data) {
				carry = append([]byte(nil), data[whole:]...)
			}
			samples = decodeF32(samples[:0], data[:whole])
			for len(samples) > 0 {
				w := p.ring.Write(samples)
				samples = samples[w:]
				for p.ring.ReadFrame(frame) {
					p.processFrame(ctx, frame)
				}
				if w == 0 {
					break
				}
			}
		}
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				p.logger.Warn().Err(err).Msg("Capture stream read failed")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (p *Pipeline) processFrame(ctx context.Context, frame []float32) {
	if p.tap != nil {
		p.tap.Write(frame)
	}
	if p.muted() || ctx.Err() != nil {
		return
	}

	resampled := audio.Resample(frame, p.stream.SampleRate(), audio.InputSampleRate)
	pkt := audio.FramePCM16(resampled, audio.InputSampleRate)

	send := func() error { return p.sink(ctx, pkt) }
	var err error
	if p.breaker != nil {
		err = p.breaker.Call(send)
	} else {
		err = send()
	}
	if err != nil {
		observability.RecordSendFailure("audio")
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			p.logger.Debug().Err(err).Msg("Dropped audio frame")
			if p.breaker != nil && p.breaker.GetState() == resilience.StateOpen {
				p.logger.Warn().Err(err).Msg("Audio sends suspended")
			}
		}
		return
	}
	observability.RecordAudioBytes("sent", len(pkt.Data))
}

func decodeF32(dst []float32, data []byte) []float32 {
	for i := 0; i+4 <= len(data); i += 4 {
		dst = append(dst, math.Float32frombits(binary.LittleEndian.Uint32(data[i:])))
	}
	return dst
}
