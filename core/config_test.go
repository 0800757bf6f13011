package recorder

import (
	"strings"
	"testing"
	"time"

	"github.com/koscakluka/ema-recorder/core/audio"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got %v", err)
	}
}

func TestConfigValidateReportsEveryProblem(t *testing.T) {
	config := DefaultConfig()
	config.DetectionMethod = "loudness"
	config.DetectionParams.SpeechProbability = 1
	config.SilenceTimeout = 0
	config.IntroOutroChunkCount = -1
	config.Format = audio.Format{}

	err := config.Validate()
	if err == nil {
		t.Fatalf("expected validation to fail")
	}

	for _, field := range []string{"detection_method", "speech_probability", "silence_timeout", "intro_outro_chunk_count", "format"} {
		if !strings.Contains(err.Error(), field) {
			t.Fatalf("expected error to mention %s, got %v", field, err)
		}
	}
	if strings.Contains(err.Error(), "time_slice") {
		t.Fatalf("expected valid time_slice not to be reported, got %v", err)
	}
}

func TestConfigIsSpeechByDetectionMethod(t *testing.T) {
	config := DefaultConfig()
	loudButUnlikely := audio.Frame{Level: -10, SpeechProbability: 0.2}
	quietButLikely := audio.Frame{Level: -70, SpeechProbability: 0.9}

	if config.isSpeech(loudButUnlikely) || !config.isSpeech(quietButLikely) {
		t.Fatalf("expected voice activity detection to follow speech probability")
	}

	config.DetectionMethod = VolumeThreshold
	if !config.isSpeech(loudButUnlikely) || config.isSpeech(quietButLikely) {
		t.Fatalf("expected volume threshold detection to follow level")
	}
}

func TestConfigGainDependsOnFeature(t *testing.T) {
	config := DefaultConfig()
	if got := config.gain(); got != 0.8 {
		t.Fatalf("expected configured gain 0.8, got %v", got)
	}

	config.Features.InputGain = false
	if got := config.gain(); got != 1 {
		t.Fatalf("expected unity gain with the feature off, got %v", got)
	}
}

func TestConfigSourceConfig(t *testing.T) {
	config := DefaultConfig()
	config.TimeSlice = 250 * time.Millisecond
	config.Features.EchoCancellation = false

	source := config.sourceConfig()
	if source.TimeSliceMs != 250 {
		t.Fatalf("expected 250ms slices, got %d", source.TimeSliceMs)
	}
	if source.EchoCancellation || !source.NoiseReduction {
		t.Fatalf("expected features to carry over, got %+v", source)
	}
	if config.finalizationTimeout() != 500*time.Millisecond {
		t.Fatalf("expected finalization timeout of two slices, got %v", config.finalizationTimeout())
	}
}
