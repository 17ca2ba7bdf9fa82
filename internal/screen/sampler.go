// Package screen samples a shared screen into low-rate JPEG stills for the
// live session.
package screen

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"github.com/lexiqai/voice-console/internal/observability"
)

const (
	DefaultInterval = time.Second
	DefaultWidth    = 800
	DefaultQuality  = 70

	// JPEGMIMEType is the media type of every sampled frame.
	JPEGMIMEType = "image/jpeg"
)

// Sink receives encoded frames.
type Sink func(ctx context.Context, mimeType string, data []byte) error

// SamplerConfig wires a Sampler.
type SamplerConfig struct {
	Interval time.Duration
	Width    int
	Quality  int
	Sink     Sink
	// OnEnd runs once after the sampler stops for any reason.
	OnEnd  func()
	Logger zerolog.Logger
}

// Sampler keeps the newest frame of a Stream and emits it at most once per
// interval.
type Sampler struct {
	stream   Stream
	interval time.Duration
	width    int
	quality  int
	sink     Sink
	onEnd    func()
	logger   zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewSampler creates a sampler over stream. Zero config values take the
// defaults.
func NewSampler(stream Stream, cfg SamplerConfig) *Sampler {
	s := &Sampler{
		stream:   stream,
		interval: cfg.Interval,
		width:    cfg.Width,
		quality:  cfg.Quality,
		sink:     cfg.Sink,
		onEnd:    cfg.OnEnd,
		logger:   cfg.Logger.With().Str("component", "screen").Logger(),
		done:     make(chan struct{}),
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.width <= 0 {
		s.width = DefaultWidth
	}
	if s.quality <= 0 {
		s.quality = DefaultQuality
	}
	return s
}

// Start launches the sampling loop.
func (s *Sampler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
}

// Stop ends sampling and releases the stream. Safe to call repeatedly.
func (s *Sampler) Stop() {
	s.once.Do(func() {
		if s.cancel == nil {
			s.stream.Close()
			close(s.done)
			return
		}
		s.cancel()
	})
	<-s.done
}

// Done is closed after the sampler has released its stream.
func (s *Sampler) Done() <-chan struct{} {
	return s.done
}

func (s *Sampler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		s.stream.Close()
		close(s.done)
		if s.onEnd != nil {
			s.onEnd()
		}
	}()

	var latest image.Image
	frames := s.stream.Frames()
	for {
		select {
		case <-ctx.Done():
			return
		case img, ok := <-frames:
			if !ok {
				s.logger.Info().Msg("Screen stream ended")
				return
			}
			latest = img
		case <-ticker.C:
			if latest == nil {
				continue
			}
			data, err := EncodeFrame(latest, s.width, s.quality)
			if err != nil {
				s.logger.Warn().Err(err).Msg("Failed to encode screen frame")
				continue
			}
			if err := s.sink(ctx, JPEGMIMEType, data); err != nil {
				observability.RecordSendFailure("image")
				s.logger.Debug().Err(err).Msg("Dropped screen frame")
				continue
			}
			observability.RecordScreenFrame()
		}
	}
}

// Downscale resizes img to the given width, preserving its aspect ratio.
func Downscale(img image.Image, width int) *image.RGBA {
	b := img.Bounds()
	height := 1
	if b.Dx() > 0 {
		height = max(1, b.Dy()*width/b.Dx())
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// EncodeFrame downscales img and encodes it as JPEG.
func EncodeFrame(img image.Image, width, quality int) ([]byte, error) {
	quality = min(max(quality, 1), 100)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Downscale(img, width), &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
