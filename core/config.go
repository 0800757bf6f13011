package recorder

import (
	"errors"
	"fmt"
	"time"

	"github.com/koscakluka/ema-recorder/core/audio"
)

type DetectionMethod string

const (
	VolumeThreshold        DetectionMethod = "volume_threshold"
	VoiceActivityDetection DetectionMethod = "voice_activity_detection"
)

type DetectionParams struct {
	// Threshold is the level in dB above which a frame counts as speech when
	// detecting by volume.
	Threshold float64 `yaml:"threshold"`
	// SpeechProbability is the probability above which a frame counts as
	// speech when detecting voice activity.
	SpeechProbability float64 `yaml:"speech_probability"`
}

type Features struct {
	Normalization    bool `yaml:"normalization"`
	NoiseReduction   bool `yaml:"noise_reduction"`
	EchoCancellation bool `yaml:"echo_cancellation"`
	InputGain        bool `yaml:"input_gain"`
}

// Config is fixed for the lifetime of a Recorder.
type Config struct {
	DetectionMethod DetectionMethod `yaml:"detection_method"`
	DetectionParams DetectionParams `yaml:"detection_params"`

	// ContinuousRecording disables segmentation: every frame between start
	// and stop ends up in a single utterance.
	ContinuousRecording bool `yaml:"continuous_recording"`
	// OnlyRecordOnSpeaking ties the recording flag to confirmed speech.
	// Without it the whole session is treated as one utterance.
	OnlyRecordOnSpeaking bool `yaml:"only_record_on_speaking"`

	SilenceTimeout        time.Duration `yaml:"silence_timeout"`
	MinimumSpeechDuration time.Duration `yaml:"minimum_speech_duration"`
	TimeSlice             time.Duration `yaml:"time_slice"`
	// IntroOutroChunkCount is the number of frames kept before an onset and
	// after confirmed silence.
	IntroOutroChunkCount int `yaml:"intro_outro_chunk_count"`

	Features  Features     `yaml:"features"`
	InputGain float64      `yaml:"input_gain"`
	Format    audio.Format `yaml:"format"`
}

func DefaultConfig() Config {
	return Config{
		DetectionMethod: VoiceActivityDetection,
		DetectionParams: DetectionParams{
			Threshold:         -50,
			SpeechProbability: 0.75,
		},
		ContinuousRecording:   false,
		OnlyRecordOnSpeaking:  true,
		SilenceTimeout:        400 * time.Millisecond,
		MinimumSpeechDuration: 200 * time.Millisecond,
		TimeSlice:             400 * time.Millisecond,
		IntroOutroChunkCount:  1,
		Features: Features{
			Normalization:    true,
			NoiseReduction:   true,
			EchoCancellation: true,
			InputGain:        true,
		},
		InputGain: 0.8,
		Format:    audio.GetDefaultFormat(),
	}
}

func (c Config) Validate() error {
	var errs []error

	switch c.DetectionMethod {
	case VolumeThreshold, VoiceActivityDetection:
	default:
		errs = append(errs, fmt.Errorf("detection_method must be %q or %q, got %q", VolumeThreshold, VoiceActivityDetection, c.DetectionMethod))
	}
	if c.DetectionParams.SpeechProbability <= 0 || c.DetectionParams.SpeechProbability >= 1 {
		errs = append(errs, fmt.Errorf("detection_params.speech_probability must be in (0, 1), got %v", c.DetectionParams.SpeechProbability))
	}
	if c.DetectionParams.Threshold > 0 {
		errs = append(errs, fmt.Errorf("detection_params.threshold is in dBFS and must not be positive, got %v", c.DetectionParams.Threshold))
	}
	if c.SilenceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("silence_timeout must be positive, got %v", c.SilenceTimeout))
	}
	if c.MinimumSpeechDuration <= 0 {
		errs = append(errs, fmt.Errorf("minimum_speech_duration must be positive, got %v", c.MinimumSpeechDuration))
	}
	if c.TimeSlice <= 0 {
		errs = append(errs, fmt.Errorf("time_slice must be positive, got %v", c.TimeSlice))
	}
	if c.IntroOutroChunkCount < 0 {
		errs = append(errs, fmt.Errorf("intro_outro_chunk_count must not be negative, got %d", c.IntroOutroChunkCount))
	}
	if c.InputGain <= 0 {
		errs = append(errs, fmt.Errorf("input_gain must be positive, got %v", c.InputGain))
	}
	if c.Format.IsZero() {
		errs = append(errs, fmt.Errorf("format needs channels and sample_rate, got %+v", c.Format))
	}

	return errors.Join(errs...)
}

// gain is applied by the source and used as the normalization target.
func (c Config) gain() float64 {
	if c.Features.InputGain {
		return c.InputGain
	}
	return 1
}

func (c Config) sourceConfig() audio.SourceConfig {
	return audio.SourceConfig{
		Format:           c.Format,
		TimeSliceMs:      int(c.TimeSlice / time.Millisecond),
		InputGain:        c.gain(),
		SpeechThreshold:  c.DetectionParams.Threshold,
		NoiseReduction:   c.Features.NoiseReduction,
		EchoCancellation: c.Features.EchoCancellation,
	}
}

// finalizationTimeout bounds how long the post-roll waits for frames that may
// never come.
func (c Config) finalizationTimeout() time.Duration {
	return 2 * c.TimeSlice
}

func (c Config) isSpeech(frame audio.Frame) bool {
	if c.DetectionMethod == VolumeThreshold {
		return frame.Level > c.DetectionParams.Threshold
	}
	return frame.SpeechProbability > c.DetectionParams.SpeechProbability
}
