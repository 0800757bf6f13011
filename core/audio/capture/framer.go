// Package capture holds the device independent half of a frame source:
// slicing raw samples into fixed-duration frames and delivering them to the
// current subscriber.
package capture

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/koscakluka/ema-recorder/core/audio"
	"github.com/koscakluka/ema-recorder/core/audio/pcm"
)

// Framer slices interleaved float32 samples into frames of a fixed duration.
// Writes may come from a device thread; the subscriber is called on that
// same thread.
type Framer struct {
	mu             sync.Mutex
	onFrame        func(audio.Frame)
	subscriptionID int

	// frameSamples is the number of interleaved samples in one frame.
	frameSamples int
	gain         float64
	threshold    float64

	pending  []float32
	sequence int64
}

func NewFramer() *Framer {
	return &Framer{gain: 1, threshold: -50}
}

// Configure sets the frame geometry and drops any partial frame.
func (f *Framer) Configure(format audio.Format, config audio.SourceConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.frameSamples = format.FrameBytes(config.TimeSliceMs) / audio.BytesPerSample
	f.gain = config.InputGain
	if f.gain <= 0 {
		f.gain = 1
	}
	f.threshold = config.SpeechThreshold
	f.pending = f.pending[:0]
}

// Subscribe replaces the current subscriber. After the returned func returns
// onFrame is never called again.
func (f *Framer) Subscribe(onFrame func(audio.Frame)) (unsubscribe func()) {
	f.mu.Lock()
	f.subscriptionID++
	id := f.subscriptionID
	f.onFrame = onFrame
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		// A later Subscribe owns the slot now.
		if f.subscriptionID == id {
			f.onFrame = nil
		}
	}
}

// Reset drops the partial frame, so the next session starts on a frame
// boundary.
func (f *Framer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = f.pending[:0]
}

// WriteBytes accepts little-endian float32 samples, the layout miniaudio
// hands out for FormatF32.
func (f *Framer) WriteBytes(p []byte) {
	samples := make([]float32, len(p)/audio.BytesPerSample)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[i*audio.BytesPerSample:]))
	}
	f.Write(samples)
}

// Write appends samples and emits every frame that is complete.
func (f *Framer) Write(samples []float32) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.frameSamples <= 0 {
		return
	}

	for _, s := range samples {
		f.pending = append(f.pending, clamp(float32(f.gain)*s))
	}

	for len(f.pending) >= f.frameSamples {
		frame := f.pending[:f.frameSamples]
		f.emitLocked(frame)
		f.pending = append(f.pending[:0], f.pending[f.frameSamples:]...)
	}
}

func (f *Framer) emitLocked(samples []float32) {
	f.sequence++
	if f.onFrame == nil {
		return
	}

	level := audio.LevelDB(samples)
	f.onFrame(audio.Frame{
		SequenceID:        f.sequence,
		Payload:           pcm.Encode(samples),
		SpeechProbability: audio.LevelProbability(level, f.threshold),
		Level:             level,
	})
}

func clamp(s float32) float32 {
	return max(-1, min(1, s))
}
