// Package recorder cuts a live stream of audio frames into utterances.
//
// A Recorder decides where speech starts and ends, keeps a little audio on
// either side of it, and hands every finished utterance to an encoder that
// persists it. Callers follow progress through events.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/koscakluka/ema-recorder/core/audio"
	"github.com/koscakluka/ema-recorder/core/codecs/shine"
	"github.com/koscakluka/ema-recorder/core/events"
	"github.com/koscakluka/ema-recorder/core/utterance"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type Recorder struct {
	cfg Config

	input            *frameInput
	encoder          UtteranceEncoder
	newStreamEncoder utterance.EncoderFactory
	fs               afero.Fs
	cacheDir         string
	clock            clockwork.Clock
	logger           *slog.Logger
	callbacks        callbacks

	bus      *eventBus
	inbox    *mailbox[loopEvent]
	jobs     *mailbox[encodeJob]
	workers  *errgroup.Group
	loopDone chan struct{}

	cleanupOnce sync.Once
	cleanupErr  error

	framesDropped       metric.Int64Counter
	utterancesFinalized metric.Int64Counter

	// Everything below belongs to the loop goroutine.

	state    SpeakingState
	buffer   *chunkBuffer
	timers   *timerSet
	trailing int
	// speaking is true between the speaking(true) and speaking(false) events.
	speaking  bool
	recording bool
	// stopRequested marks a caller stop that waits for the post-roll.
	stopRequested bool
	// internalStop marks the recording flag to be cleared once the current
	// utterance is finalized.
	internalStop bool
	session      uint64
	format       audio.Format

	speakingSince  time.Time
	silenceSince   time.Time
	longestSilence time.Duration

	fatalErr error
	closed   bool
}

type encodeJob struct {
	format   audio.Format
	frames   []audio.Frame
	queuedAt time.Time
}

// Status is a point in time view of the recorder.
type Status struct {
	State     SpeakingState
	Recording bool
	Speaking  bool
	Capturing bool
	Format    audio.Format
}

func NewRecorder(config Config, opts ...RecorderOption) (*Recorder, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recorder config: %w", err)
	}

	r := &Recorder{
		cfg:              config,
		input:            newFrameInput(nil),
		newStreamEncoder: shine.New,
		fs:               afero.NewOsFs(),
		cacheDir:         defaultCacheDir(),
		clock:            clockwork.NewRealClock(),
		logger:           logger,
		inbox:            newMailbox[loopEvent](),
		jobs:             newMailbox[encodeJob](),
		loopDone:         make(chan struct{}),
		buffer:           newChunkBuffer(config.IntroOutroChunkCount),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.encoder == nil {
		encoderOpts := []utterance.Option{utterance.WithLogger(r.logger)}
		if config.Features.Normalization {
			encoderOpts = append(encoderOpts, utterance.WithNormalization(config.gain()))
		}
		r.encoder = utterance.NewEncoder(r.fs, r.cacheDir, r.newStreamEncoder, encoderOpts...)
	}

	r.timers = newTimerSet(r.clock, func(fired timerFired) { r.post(fired) })
	r.bus = newEventBus(r.logger)
	if !r.callbacks.empty() {
		r.bus.subscribe(newCallbackSubscriber(r.callbacks))
	}

	r.framesDropped, _ = meter.Int64Counter("recorder.frames_dropped",
		metric.WithDescription("Frames dropped because they could not be buffered"))
	r.utterancesFinalized, _ = meter.Int64Counter("recorder.utterances_finalized",
		metric.WithDescription("Utterances handed to the encoder"))

	workers, ctx := errgroup.WithContext(context.Background())
	workers.Go(func() error { return panicSafeNamedWorker("segmentation", r.runLoop)(ctx) })
	workers.Go(func() error { return panicSafeNamedWorker("utterance encoding", r.runEncoder)(ctx) })
	workers.Go(func() error { return panicSafeNamedWorker("event dispatch", r.bus.run)(ctx) })
	r.workers = workers

	return r, nil
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "ema-recorder")
	}
	return filepath.Join(os.TempDir(), "ema-recorder")
}

// Subscribe registers fn for every event published after the call. Events
// are delivered in order on a dedicated goroutine. fn must not call Cleanup.
func (r *Recorder) Subscribe(fn func(events.Event)) (unsubscribe func()) {
	return r.bus.subscribe(fn)
}

// StartRecording starts capture and sets the recording flag. It does nothing
// if the recorder is already recording.
func (r *Recorder) StartRecording(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "start recording")
	defer span.End()

	if err := r.do(ctx, "start recording", r.startRecording); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// StopRecording stops capture. If speech is being recorded the stop waits for
// the post-roll so the tail of the utterance is kept. Stopping a recorder that
// is not capturing does nothing.
func (r *Recorder) StopRecording(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "stop recording")
	defer span.End()

	if err := r.do(ctx, "stop recording", r.stopRecording); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (r *Recorder) Status(ctx context.Context) (Status, error) {
	var status Status
	err := r.do(ctx, "status", func(context.Context) error {
		status = Status{
			State:     r.state,
			Recording: r.recording,
			Speaking:  r.speaking,
			Capturing: r.input.IsCapturing(),
			Format:    r.format,
		}
		return r.usable()
	})
	return status, err
}

// Cleanup stops capture, cancels every countdown, waits for queued utterances
// to be encoded and releases the encoder. The recorder can not be used
// afterwards.
func (r *Recorder) Cleanup() error {
	r.cleanupOnce.Do(func() {
		err := r.do(context.Background(), "cleanup", func(context.Context) error {
			if r.closed {
				return nil
			}
			err := r.teardown(r.clock.Now())
			r.closed = true
			r.inbox.close()
			return err
		})
		if errors.Is(err, ErrClosed) {
			err = nil
		}

		workerErr := r.workers.Wait()
		encoderErr := r.encoder.Close()
		if encoderErr != nil {
			encoderErr = fmt.Errorf("failed to close encoder: %w", encoderErr)
		}
		r.cleanupErr = errors.Join(err, workerErr, encoderErr)
	})
	return r.cleanupErr
}

func (r *Recorder) usable() error {
	if r.closed {
		return ErrClosed
	}
	return r.fatalErr
}

func (r *Recorder) startRecording(ctx context.Context) error {
	if err := r.usable(); err != nil {
		return err
	}
	if r.recording {
		return nil
	}

	at := r.clock.Now()
	openedSession := false
	if !r.input.IsCapturing() {
		r.resetSegmentation()
		r.session++
		session := r.session
		format, err := r.input.Open(ctx, r.cfg.sourceConfig(), func(frame audio.Frame) {
			r.post(frameArrived{frame: frame, session: session, at: r.clock.Now()})
		})
		if err != nil {
			return err
		}

		if err := r.encoder.Prepare(format); err != nil {
			if closeErr := r.input.Close(); closeErr != nil {
				r.logger.Warn("failed to release frame source", "error", closeErr)
			}
			return fmt.Errorf("failed to prepare encoder: %w", err)
		}
		if format != r.format {
			r.logger.Info("capture format negotiated", "channels", format.Channels, "sample_rate", format.SampleRate)
		}
		r.format = format
		openedSession = true
	}

	r.setRecording(true, at)
	if !openedSession {
		return nil
	}

	switch {
	case r.cfg.ContinuousRecording:
		r.setState(Speaking)
		r.setSpeaking(true, at)
	case !r.cfg.OnlyRecordOnSpeaking:
		r.processSpeech(true, at)
	}
	return nil
}

func (r *Recorder) stopRecording(context.Context) error {
	if err := r.usable(); err != nil {
		return err
	}
	if !r.input.IsCapturing() {
		return nil
	}

	at := r.clock.Now()
	if r.shouldDeferStop() {
		r.stopRequested = true
		if r.state == GettingFinalChunks {
			return nil
		}

		r.timers.cancel(minSpeechTimer)
		r.timers.cancel(silenceTimer)
		r.collectTrailingFrames(at)
		return nil
	}

	var frames []audio.Frame
	if !r.cfg.OnlyRecordOnSpeaking {
		frames = r.buffer.takeAndClear()
	}
	err := r.teardown(at)
	if len(frames) > 0 {
		r.submit(frames, at)
	}
	return err
}

func (r *Recorder) shouldDeferStop() bool {
	if !r.recording || r.buffer.utteranceLen() == 0 {
		return false
	}
	return r.cfg.ContinuousRecording || !r.cfg.OnlyRecordOnSpeaking || r.speaking || r.state == GettingFinalChunks
}

// teardown ends the capture session and returns the segmenter to its
// initial state.
func (r *Recorder) teardown(at time.Time) error {
	r.timers.cancelAll()
	err := r.input.Close()

	if r.speaking {
		r.setSpeaking(false, at)
	}
	if r.recording {
		r.setRecording(false, at)
	}
	r.resetSegmentation()

	return err
}

func (r *Recorder) resetSegmentation() {
	r.state = NoSpeech
	r.buffer.reset()
	r.trailing = 0
	r.stopRequested = false
	r.internalStop = false
	r.speakingSince = time.Time{}
	r.silenceSince = time.Time{}
}

func (r *Recorder) fail(err error, at time.Time) {
	r.fatalErr = err
	r.logger.Error("speech segmenter stopped", "error", err)

	r.timers.cancelAll()
	if closeErr := r.input.Close(); closeErr != nil {
		r.logger.Warn("failed to release frame source", "error", closeErr)
	}
	r.buffer.reset()
	r.bus.publish(events.NewRecorderFailed(err, true, at))
}

// report publishes an error nobody is waiting for.
func (r *Recorder) report(err error, at time.Time) {
	r.logger.Error("recorder error", "error", err)
	r.bus.publish(events.NewRecorderFailed(err, false, at))
}

func (r *Recorder) submit(frames []audio.Frame, at time.Time) {
	r.utterancesFinalized.Add(context.Background(), 1)
	r.logger.Debug("utterance finalized", "frames", len(frames), "at", at)
	r.jobs.push(encodeJob{format: r.format, frames: frames, queuedAt: time.Now()})
}

func (r *Recorder) runEncoder(ctx context.Context) error {
	defer r.bus.close()

	r.jobs.consume(ctx, func(job encodeJob) { r.encodeUtterance(ctx, job) })
	return nil
}

func (r *Recorder) encodeUtterance(ctx context.Context, job encodeJob) {
	ctx, span := tracer.Start(ctx, "finalize utterance")
	defer span.End()

	queuedTime := time.Since(job.queuedAt).Seconds()
	span.AddEvent("taken out of queue", trace.WithAttributes(attribute.Float64("utterance.queued_time", queuedTime)))
	span.SetAttributes(attribute.Int("utterance.frames", len(job.frames)))

	descriptor, err := r.encoder.Encode(ctx, job.format, framePayloads(job.frames))
	if err != nil {
		err = fmt.Errorf("failed to persist utterance of %d frames: %w", len(job.frames), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.report(err, r.clock.Now())
		return
	}

	r.bus.publish(events.NewDataBlob(descriptor, r.clock.Now()))
}
