package audio

import (
	"context"
	"fmt"
	"math"
)

// SilenceLevel is the level reported for digital silence.
const SilenceLevel = -160.0

// Frame is one fixed-size slice of captured audio.
//
// Payload holds little-endian float32 PCM interleaved by channel.
// SpeechProbability is in [0, 1]; Level is the frame loudness in dBFS.
type Frame struct {
	SequenceID        int64
	Payload           []byte
	SpeechProbability float64
	Level             float64
}

// Validate reports whether the frame can be buffered.
func (f Frame) Validate() error {
	if len(f.Payload) == 0 {
		return fmt.Errorf("frame %d: empty payload", f.SequenceID)
	}
	if len(f.Payload)%BytesPerSample != 0 {
		return fmt.Errorf("frame %d: payload of %d bytes is not float32 aligned", f.SequenceID, len(f.Payload))
	}
	if math.IsNaN(f.SpeechProbability) || f.SpeechProbability < 0 || f.SpeechProbability > 1 {
		return fmt.Errorf("frame %d: speech probability %v outside [0,1]", f.SequenceID, f.SpeechProbability)
	}
	if math.IsNaN(f.Level) {
		return fmt.Errorf("frame %d: level is NaN", f.SequenceID)
	}
	return nil
}

// SourceConfig is what a frame source needs to know about the session before
// capture starts.
type SourceConfig struct {
	Format           Format
	TimeSliceMs      int
	InputGain        float64
	// SpeechThreshold is the level in dBFS sources without a voice activity
	// model use to derive a speech probability.
	SpeechThreshold  float64
	NoiseReduction   bool
	EchoCancellation bool
}

// FrameSource produces frames for the recorder.
//
// At most one subscription is active at a time; subscribing again replaces
// the previous callback. The callback must not be invoked after the returned
// unsubscribe func returns.
type FrameSource interface {
	Init(config SourceConfig) error
	Start(ctx context.Context) (Format, error)
	Stop() error
	Subscribe(onFrame func(Frame)) (unsubscribe func())
}
