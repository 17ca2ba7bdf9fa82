package audio

import (
	"sync"
)

// RingBuffer is a thread-safe ring buffer of mono samples. The capture path
// uses it to regroup device reads into fixed-size frames.
type RingBuffer struct {
	buffer []float32
	size   int
	read   int
	write  int
	mu     sync.RWMutex
}

// NewRingBuffer creates a ring buffer holding up to size-1 samples.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		buffer: make([]float32, size),
		size:   size,
	}
}

// Write appends samples and returns how many fit.
func (rb *RingBuffer) Write(samples []float32) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for _, s := range samples {
		if (rb.write+1)%rb.size == rb.read {
			break
		}
		rb.buffer[rb.write] = s
		rb.write = (rb.write + 1) % rb.size
		written++
	}
	return written
}

// Read copies up to len(dst) samples out of the buffer.
func (rb *RingBuffer) Read(dst []float32) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.readLocked(dst)
}

// ReadFrame fills dst only if a whole frame is buffered.
func (rb *RingBuffer) ReadFrame(dst []float32) bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.availableLocked() < len(dst) {
		return false
	}
	rb.readLocked(dst)
	return true
}

func (rb *RingBuffer) readLocked(dst []float32) int {
	read := 0
	for i := range dst {
		if rb.read == rb.write {
			break
		}
		dst[i] = rb.buffer[rb.read]
		rb.read = (rb.read + 1) % rb.size
		read++
	}
	return read
}

// Available returns the number of samples ready to read.
func (rb *RingBuffer) Available() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.availableLocked()
}

func (rb *RingBuffer) availableLocked() int {
	if rb.write >= rb.read {
		return rb.write - rb.read
	}
	return rb.size - rb.read + rb.write
}

// Clear drops everything buffered.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.read = 0
	rb.write = 0
}
