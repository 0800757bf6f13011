package recorder

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/koscakluka/ema-recorder/core/audio"
	"github.com/koscakluka/ema-recorder/core/utterance"
	"github.com/spf13/afero"
)

type RecorderOption func(*Recorder)

// UtteranceEncoder turns finished utterances into persisted artifacts.
// *utterance.Encoder is the default implementation.
type UtteranceEncoder interface {
	Prepare(format audio.Format) error
	Encode(ctx context.Context, format audio.Format, payloads [][]byte) (utterance.Descriptor, error)
	Close() error
}

func WithFrameSource(source audio.FrameSource) RecorderOption {
	return func(r *Recorder) { r.input.Set(source) }
}

// WithUtteranceEncoder replaces the default encoder entirely. The stream
// encoder, filesystem and cache directory options are ignored when it is set.
func WithUtteranceEncoder(encoder UtteranceEncoder) RecorderOption {
	return func(r *Recorder) { r.encoder = encoder }
}

// WithStreamEncoder selects the compressor used by the default encoder.
// MP3 is used when it is not set.
func WithStreamEncoder(factory utterance.EncoderFactory) RecorderOption {
	return func(r *Recorder) { r.newStreamEncoder = factory }
}

func WithFilesystem(fs afero.Fs) RecorderOption {
	return func(r *Recorder) { r.fs = fs }
}

// WithCacheDir sets the directory artifacts are written to.
func WithCacheDir(dir string) RecorderOption {
	return func(r *Recorder) { r.cacheDir = dir }
}

func WithClock(clock clockwork.Clock) RecorderOption {
	return func(r *Recorder) { r.clock = clock }
}

func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = logger }
}

// WithRecordingCallback registers a callback for recording flag changes.
func WithRecordingCallback(callback func(recording bool)) RecorderOption {
	return func(r *Recorder) { r.callbacks.onRecording = callback }
}

// WithSpeakingCallback registers a callback for confirmed speech starts and
// ends. Bursts shorter than the minimum speech duration are never reported.
func WithSpeakingCallback(callback func(speaking bool)) RecorderOption {
	return func(r *Recorder) { r.callbacks.onSpeaking = callback }
}

func WithSpeakingDurationCallback(callback func(duration time.Duration)) RecorderOption {
	return func(r *Recorder) { r.callbacks.onSpeakingDuration = callback }
}

// WithLongestSilenceCallback registers a callback that fires whenever a
// silence window longer than any before it ends.
func WithLongestSilenceCallback(callback func(duration time.Duration)) RecorderOption {
	return func(r *Recorder) { r.callbacks.onLongestSilence = callback }
}

// WithDataBlobCallback registers a callback for persisted utterances. Each
// utterance is reported exactly once, with isFinal set.
func WithDataBlobCallback(callback func(descriptor utterance.Descriptor, isFinal bool)) RecorderOption {
	return func(r *Recorder) { r.callbacks.onDataBlob = callback }
}

// WithFailureCallback registers a callback for errors that happen away from
// any caller, like a failed encode or a broken segmenter.
func WithFailureCallback(callback func(err error, fatal bool)) RecorderOption {
	return func(r *Recorder) { r.callbacks.onFailure = callback }
}
