package audio

import (
	"math"
	"testing"
)

func TestResample_SameRateIsIdentity(t *testing.T) {
	frame := []float32{0.1, -0.2, 0.3, -0.4}

	out := Resample(frame, InputSampleRate, InputSampleRate)
	if len(out) != len(frame) {
		t.Fatalf("Expected length %d, got %d", len(frame), len(out))
	}
	if &out[0] != &frame[0] {
		t.Error("Expected same-rate resample to return the input slice")
	}
}

func TestResample_Lengths(t *testing.T) {
	frame := make([]float32, 100)
	for i := range frame {
		frame[i] = float32(i) / 100
	}

	if got := len(Resample(frame, 8000, 16000)); got != 200 {
		t.Errorf("Expected upsampled length 200, got %d", got)
	}
	if got := len(Resample(frame, 16000, 8000)); got != 50 {
		t.Errorf("Expected downsampled length 50, got %d", got)
	}

	capture := make([]float32, 4096)
	if got := len(Resample(capture, 48000, InputSampleRate)); got != 1365 {
		t.Errorf("Expected 48k->16k length 1365, got %d", got)
	}
}

func TestResample_Interpolates(t *testing.T) {
	frame := []float32{0, 1}

	out := Resample(frame, 1000, 2000)
	if len(out) != 4 {
		t.Fatalf("Expected 4 samples, got %d", len(out))
	}
	if out[0] != 0 {
		t.Errorf("Expected first sample 0, got %f", out[0])
	}
	if math.Abs(float64(out[1])-0.5) > 1e-6 {
		t.Errorf("Expected midpoint 0.5, got %f", out[1])
	}
}

func TestResample_ConstantSignal(t *testing.T) {
	frame := make([]float32, 480)
	for i := range frame {
		frame[i] = 0.25
	}

	for _, s := range Resample(frame, 48000, InputSampleRate) {
		if math.Abs(float64(s)-0.25) > 1e-6 {
			t.Fatalf("Expected constant 0.25, got %f", s)
		}
	}
}

func TestResample_Empty(t *testing.T) {
	if out := Resample(nil, 48000, 16000); len(out) != 0 {
		t.Errorf("Expected empty output, got %d samples", len(out))
	}
}
