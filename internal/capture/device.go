package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// ErrPermissionDenied means the operating system refused access to the
	// microphone.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceUnavailable means no capture device could be opened.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
)

// Stream is an open capture device producing little-endian float32 mono
// samples.
type Stream interface {
	io.ReadCloser
	SampleRate() int
}

// Device opens capture streams. Each connection opens its own stream.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// FFmpegDevice captures the default microphone through an ffmpeg child
// process.
type FFmpegDevice struct {
	SampleRate int
	// Format and Input override the per-OS ffmpeg input (pulse/default on
	// linux, avfoundation/:0 on darwin).
	Format string
	Input  string
	// StartTimeout bounds the wait for the first samples.
	StartTimeout time.Duration
}

// NewFFmpegDevice creates a device capturing at sampleRate.
func NewFFmpegDevice(sampleRate int, format, input string) *FFmpegDevice {
	return &FFmpegDevice{
		SampleRate:   sampleRate,
		Format:       format,
		Input:        input,
		StartTimeout: 3 * time.Second,
	}
}

// Open starts ffmpeg and waits until it produces audio, so that permission
// problems surface here rather than mid-session.
func (d *FFmpegDevice) Open(ctx context.Context) (Stream, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found in PATH", ErrDeviceUnavailable)
	}
	args, err := d.args(runtime.GOOS)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: open ffmpeg stdout: %v", ErrDeviceUnavailable, err)
	}
	stderr := &syncBuffer{}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start ffmpeg: %v", ErrDeviceUnavailable, err)
	}

	s := &ffmpegStream{cmd: cmd, r: bufio.NewReaderSize(stdout, 64*1024), rate: d.SampleRate}

	ready := make(chan error, 1)
	go func() {
		_, err := s.r.Peek(4)
		ready <- err
	}()

	timeout := d.StartTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-ready:
		if err != nil {
			s.Close()
			return nil, classify(stderr.String(), err)
		}
		return s, nil
	case <-timer.C:
		s.Close()
		return nil, fmt.Errorf("%w: no audio within %s", ErrDeviceUnavailable, timeout)
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}
}

func (d *FFmpegDevice) args(goos string) ([]string, error) {
	format, input := d.Format, d.Input
	if format == "" || input == "" {
		switch goos {
		case "darwin":
			format, input = "avfoundation", ":0"
		case "linux":
			format, input = "pulse", "default"
		default:
			return nil, fmt.Errorf("%w: microphone capture is not implemented for %s", ErrDeviceUnavailable, goos)
		}
		if d.Format != "" {
			format = d.Format
		}
		if d.Input != "" {
			input = d.Input
		}
	}
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", format, "-i", input,
		"-ac", "1", "-ar", strconv.Itoa(d.SampleRate),
		"-f", "f32le", "-",
	}, nil
}

var permissionMarkers = []string{
	"permission denied",
	"not authorized",
	"access denied",
	"operation not permitted",
}

func classify(stderr string, cause error) error {
	msg := strings.ToLower(stderr)
	for _, marker := range permissionMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, strings.TrimSpace(stderr))
		}
	}
	if msg = strings.TrimSpace(stderr); msg != "" {
		return fmt.Errorf("%w: %s", ErrDeviceUnavailable, msg)
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, cause)
}

type ffmpegStream struct {
	cmd  *exec.Cmd
	r    *bufio.Reader
	rate int
	once sync.Once
}

func (s *ffmpegStream) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *ffmpegStream) SampleRate() int { return s.rate }

func (s *ffmpegStream) Close() error {
	s.once.Do(func() {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
			_ = s.cmd.Wait()
		}
	})
	return nil
}

// syncBuffer collects ffmpeg's stderr while the process is still writing.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
