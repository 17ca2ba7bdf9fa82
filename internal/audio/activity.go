package audio

// Activity samples the capture and playback analysers and merges them into a
// single vector for level visualisation.
type Activity struct {
	Capture  *Analyser
	Playback *Analyser

	captureBins  []byte
	playbackBins []byte
}

// NewActivity pairs the two analysis taps.
func NewActivity(capture, playback *Analyser) *Activity {
	return &Activity{
		Capture:      capture,
		Playback:     playback,
		captureBins:  make([]byte, FrequencyBins),
		playbackBins: make([]byte, FrequencyBins),
	}
}

// Snapshot returns the per-bin maximum of both taps. A nil tap counts as
// silence. Not safe for concurrent use; one display ticker owns it.
func (a *Activity) Snapshot() []byte {
	clear(a.captureBins)
	clear(a.playbackBins)
	if a.Capture != nil {
		a.Capture.ByteFrequencyData(a.captureBins)
	}
	if a.Playback != nil {
		a.Playback.ByteFrequencyData(a.playbackBins)
	}
	return MergeMax(make([]byte, FrequencyBins), a.captureBins, a.playbackBins)
}

// MergeMax writes max(a[i], b[i]) into dst and returns it.
func MergeMax(dst, a, b []byte) []byte {
	for i := range dst {
		var va, vb byte
		if i < len(a) {
			va = a[i]
		}
		if i < len(b) {
			vb = b[i]
		}
		if va > vb {
			dst[i] = va
		} else {
			dst[i] = vb
		}
	}
	return dst
}
