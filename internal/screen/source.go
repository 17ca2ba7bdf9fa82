package screen

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

var (
	// ErrPermissionDenied means the platform refused screen capture.
	ErrPermissionDenied = errors.New("screen capture permission denied")
	// ErrUnavailable means no screen capture backend could be started.
	ErrUnavailable = errors.New("screen capture unavailable")
)

// Stream delivers captured frames until it ends or is closed. The frames
// channel is closed when the stream ends.
type Stream interface {
	Frames() <-chan image.Image
	Close() error
}

// Source opens a screen capture stream.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// FFmpegSource grabs the desktop with ffmpeg and decodes the PNG frames it
// writes to stdout.
type FFmpegSource struct {
	// FPS is the capture rate; the sampler still emits at its own interval.
	FPS    int
	Format string
	Input  string
}

// NewFFmpegSource creates a source using the per-OS default grabber when
// format or input is empty.
func NewFFmpegSource(format, input string) *FFmpegSource {
	return &FFmpegSource{FPS: 2, Format: format, Input: input}
}

func (s *FFmpegSource) args(goos string) ([]string, error) {
	format, input := s.Format, s.Input
	if format == "" || input == "" {
		var defFormat, defInput string
		switch goos {
		case "linux":
			defFormat, defInput = "x11grab", ":0.0"
		case "darwin":
			defFormat, defInput = "avfoundation", "1:none"
		default:
			return nil, fmt.Errorf("%w: screen capture is not implemented for %s", ErrUnavailable, goos)
		}
		if format == "" {
			format = defFormat
		}
		if input == "" {
			input = defInput
		}
	}
	fps := s.FPS
	if fps <= 0 {
		fps = 2
	}
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", format, "-framerate", strconv.Itoa(fps), "-i", input,
		"-f", "image2pipe", "-vcodec", "png", "-",
	}, nil
}

// Open starts the grabber.
func (s *FFmpegSource) Open(ctx context.Context) (Stream, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found in PATH", ErrUnavailable)
	}
	args, err := s.args(runtime.GOOS)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: open ffmpeg stdout: %v", ErrUnavailable, err)
	}
	var stderr strings.Builder
	cmd.Stderr = &lockedWriter{w: &stderr}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start ffmpeg: %v", ErrUnavailable, err)
	}

	r := bufio.NewReaderSize(stdout, 256*1024)
	if _, err := r.Peek(8); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		if strings.Contains(strings.ToLower(stderr.String()), "permission") {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := ctx.Err(); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}

	st := newPipeStream(r, func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	return st, nil
}

// pipeStream decodes consecutive PNG images from a reader.
type pipeStream struct {
	frames chan image.Image
	done   chan struct{}
	once   sync.Once
	kill   func()
}

func newPipeStream(r io.Reader, kill func()) *pipeStream {
	s := &pipeStream{
		frames: make(chan image.Image, 1),
		done:   make(chan struct{}),
		kill:   kill,
	}
	go s.decode(r)
	return s
}

func (s *pipeStream) decode(r io.Reader) {
	defer close(s.frames)
	for {
		img, err := png.Decode(r)
		if err != nil {
			return
		}
		select {
		case s.frames <- img:
		case <-s.done:
			return
		default:
			// Replace a frame nobody picked up yet.
			select {
			case <-s.frames:
			default:
			}
			select {
			case s.frames <- img:
			case <-s.done:
				return
			}
		}
	}
}

func (s *pipeStream) Frames() <-chan image.Image { return s.frames }

func (s *pipeStream) Close() error {
	s.once.Do(func() {
		close(s.done)
		if s.kill != nil {
			s.kill()
		}
	})
	return nil
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
