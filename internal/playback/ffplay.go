package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/lexiqai/voice-console/internal/audio"
)

// ErrSpeakerUnavailable means no playback process could be started.
var ErrSpeakerUnavailable = errors.New("speaker unavailable")

// FFplayOutput plays audio through an ffplay child process.
type FFplayOutput struct {
	SampleRate int
}

// NewFFplayOutput creates an output for the 24 kHz model voice.
func NewFFplayOutput() *FFplayOutput {
	return &FFplayOutput{SampleRate: audio.OutputSampleRate}
}

// Open starts ffplay reading PCM16 from stdin.
func (o *FFplayOutput) Open(ctx context.Context) (Speaker, error) {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, fmt.Errorf("%w: ffplay not found in PATH", ErrSpeakerUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &ffplaySpeaker{rate: o.SampleRate}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.startLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

type ffplaySpeaker struct {
	mu    sync.Mutex
	rate  int
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func (s *ffplaySpeaker) startLocked() error {
	s.cmd = exec.Command("ffplay",
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(s.rate),
		"-ac", "1",
		"-i", "pipe:0",
	)
	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: open ffplay stdin: %v", ErrSpeakerUnavailable, err)
	}
	s.cmd.Stdout = io.Discard
	s.cmd.Stderr = io.Discard
	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("%w: start ffplay: %v", ErrSpeakerUnavailable, err)
	}
	s.stdin = stdin
	return nil
}

func (s *ffplaySpeaker) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stdin == nil {
		return errors.New("ffplay is not running")
	}
	_, err := s.stdin.Write(pcm)
	return err
}

// Reset restarts ffplay, discarding anything it buffered.
func (s *ffplaySpeaker) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killLocked()
	return s.startLocked()
}

func (s *ffplaySpeaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killLocked()
	return nil
}

func (s *ffplaySpeaker) killLocked() {
	if s.stdin != nil {
		_ = s.stdin.Close()
		s.stdin = nil
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	s.cmd = nil
}
