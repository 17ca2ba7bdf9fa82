package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// InputSampleRate is the rate the live service expects for microphone audio.
	InputSampleRate = 16000
	// OutputSampleRate is the rate of synthesized audio coming back.
	OutputSampleRate = 24000
)

// ErrInvalidPCM is returned when an inbound payload is not 16-bit PCM.
var ErrInvalidPCM = errors.New("invalid pcm payload")

// Packet is a media payload exchanged with the live service.
type Packet struct {
	MIMEType string
	Data     []byte
}

// PCMMIMEType returns the media type tag for raw 16-bit PCM at rate.
func PCMMIMEType(rate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}

// FramePCM16 packs float samples into little-endian int16 PCM. Samples outside
// [-1, 1] are clamped.
func FramePCM16(samples []float32, rate int) Packet {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(floatToInt16(s)))
	}
	return Packet{MIMEType: PCMMIMEType(rate), Data: data}
}

func floatToInt16(s float32) int16 {
	if math.IsNaN(float64(s)) {
		return 0
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 0x8000)
	}
	return int16(s * 0x7FFF)
}

// DecodePCM16 unpacks little-endian int16 PCM into float samples in [-1, 1).
func DecodePCM16(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidPCM)
	}
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("%w: odd length %d", ErrInvalidPCM, len(data))
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(v) / 32768.0
	}
	return samples, nil
}

// ParseRate extracts the rate= parameter from a PCM media type such as
// "audio/pcm;rate=24000". fallback is returned when it is absent or malformed.
func ParseRate(mimeType string, fallback int) int {
	for _, param := range strings.Split(mimeType, ";")[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(key, "rate") {
			continue
		}
		rate, err := strconv.Atoi(value)
		if err != nil || rate <= 0 {
			return fallback
		}
		return rate
	}
	return fallback
}

// IsAudio reports whether mimeType names an audio payload.
func IsAudio(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "audio/")
}
