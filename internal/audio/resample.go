package audio

// Resample converts one frame of mono samples from fromRate to toRate using
// linear interpolation. When the rates match the input slice is returned as-is.
// No state is carried between frames.
func Resample(frame []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(frame) == 0 {
		return frame
	}

	ratio := float64(toRate) / float64(fromRate)
	outputLength := int(float64(len(frame)) * ratio)
	output := make([]float32, outputLength)

	last := len(frame) - 1
	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		if idx0 > last {
			idx0 = last
		}
		idx1 := idx0 + 1
		if idx1 > last {
			idx1 = last
		}

		fraction := float32(srcPos - float64(idx0))
		output[i] = frame[idx0]*(1-fraction) + frame[idx1]*fraction
	}

	return output
}
