package recorder

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/koscakluka/ema-recorder/core/audio"
	"github.com/koscakluka/ema-recorder/core/audio/pcm"
	"github.com/koscakluka/ema-recorder/core/events"
	"github.com/koscakluka/ema-recorder/core/utterance"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type tester interface {
	Helper()
	Fatalf(format string, args ...any)
}

// testClock fires countdowns only from advance, one at a time and in deadline
// order, so every countdown is processed by the loop before time moves on.
type testClock struct {
	clockwork.FakeClock

	mu     sync.Mutex
	timers []*testTimer
}

func newTestClock() *testClock {
	return &testClock{FakeClock: clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))}
}

func (c *testClock) AfterFunc(d time.Duration, f func()) clockwork.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	timer := &testTimer{clock: c, deadline: c.Now().Add(d), fn: f, active: true}
	c.timers = append(c.timers, timer)
	return timer
}

func (c *testClock) advance(d time.Duration, settle func()) {
	target := c.Now().Add(d)
	for {
		timer := c.popDue(target)
		if timer == nil {
			break
		}
		if now := c.Now(); timer.deadline.After(now) {
			c.FakeClock.Advance(timer.deadline.Sub(now))
		}
		timer.fn()
		settle()
	}

	if now := c.Now(); target.After(now) {
		c.FakeClock.Advance(target.Sub(now))
	}
}

func (c *testClock) popDue(target time.Time) *testTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due *testTimer
	for _, timer := range c.timers {
		if !timer.active || timer.deadline.After(target) {
			continue
		}
		if due == nil || timer.deadline.Before(due.deadline) {
			due = timer
		}
	}
	if due != nil {
		due.active = false
	}
	return due
}

func (c *testClock) activeTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	active := 0
	for _, timer := range c.timers {
		if timer.active {
			active++
		}
	}
	return active
}

type testTimer struct {
	clock    *testClock
	deadline time.Time
	fn       func()
	active   bool
}

func (t *testTimer) Chan() <-chan time.Time { return nil }

func (t *testTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	wasActive := t.active
	t.deadline = t.clock.Now().Add(d)
	t.active = true
	return wasActive
}

func (t *testTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	wasActive := t.active
	t.active = false
	return wasActive
}

type testFrameSource struct {
	mu      sync.Mutex
	onFrame func(audio.Frame)

	format     audio.Format
	startErr   error
	stopErr    error
	initCalls  int
	startCalls int
	stopCalls  int
}

func newTestFrameSource() *testFrameSource {
	return &testFrameSource{format: audio.Format{Channels: 1, SampleRate: 16000}}
}

func (s *testFrameSource) Init(audio.SourceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initCalls++
	return nil
}

func (s *testFrameSource) Start(context.Context) (audio.Format, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startCalls++
	if s.startErr != nil {
		return audio.Format{}, s.startErr
	}
	return s.format, nil
}

func (s *testFrameSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCalls++
	return s.stopErr
}

func (s *testFrameSource) Subscribe(onFrame func(audio.Frame)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFrame = onFrame
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.onFrame = nil
	}
}

func (s *testFrameSource) subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onFrame != nil
}

func (s *testFrameSource) calls() (initCalls, startCalls, stopCalls int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initCalls, s.startCalls, s.stopCalls
}

// emit delivers frame synchronously, the way a capture callback would.
func (s *testFrameSource) emit(frame audio.Frame) {
	s.mu.Lock()
	onFrame := s.onFrame
	s.mu.Unlock()

	if onFrame != nil {
		onFrame(frame)
	}
}

// testUtteranceEncoder records the sequence ids of every utterance it is
// given instead of writing files.
type testUtteranceEncoder struct {
	mu         sync.Mutex
	prepared   []audio.Format
	utterances [][]int64
	failures   int
	closed     bool
}

func (e *testUtteranceEncoder) Prepare(format audio.Format) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prepared = append(e.prepared, format)
	return nil
}

func (e *testUtteranceEncoder) Encode(_ context.Context, _ audio.Format, payloads [][]byte) (utterance.Descriptor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.failures > 0 {
		e.failures--
		return utterance.Descriptor{}, errors.New("disk full")
	}

	ids := make([]int64, 0, len(payloads))
	for _, payload := range payloads {
		ids = append(ids, payloadSequence(payload))
	}
	e.utterances = append(e.utterances, ids)

	return utterance.Descriptor{
		FileRef:  "file:///cache/utterance.mp3",
		Name:     "utterance.mp3",
		MimeType: "audio/mp3",
		ByteSize: int64(len(ids)),
		Source:   utterance.SourceBlob,
		Frames:   len(ids),
	}, nil
}

func (e *testUtteranceEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *testUtteranceEncoder) encoded() [][]int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]int64(nil), e.utterances...)
}

func testPayload(sequenceID int64) []byte {
	return pcm.Encode([]float32{float32(sequenceID)})
}

func payloadSequence(payload []byte) int64 {
	return int64(math.Float32frombits(binary.LittleEndian.Uint32(payload)))
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) record(event events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) snapshot() []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]events.Event(nil), l.events...)
}

func (l *eventLog) speaking(value bool) int {
	count := 0
	for _, event := range l.snapshot() {
		if typedEvent, ok := event.(events.SpeakingChanged); ok && typedEvent.Speaking == value {
			count++
		}
	}
	return count
}

func (l *eventLog) recording(value bool) int {
	count := 0
	for _, event := range l.snapshot() {
		if typedEvent, ok := event.(events.RecordingChanged); ok && typedEvent.Recording == value {
			count++
		}
	}
	return count
}

func (l *eventLog) dataBlobs() []events.DataBlob {
	var blobs []events.DataBlob
	for _, event := range l.snapshot() {
		if typedEvent, ok := event.(events.DataBlob); ok {
			blobs = append(blobs, typedEvent)
		}
	}
	return blobs
}

func (l *eventLog) failures() []events.RecorderFailed {
	var failures []events.RecorderFailed
	for _, event := range l.snapshot() {
		if typedEvent, ok := event.(events.RecorderFailed); ok {
			failures = append(failures, typedEvent)
		}
	}
	return failures
}

func (l *eventLog) kinds() []events.Kind {
	var kinds []events.Kind
	for _, event := range l.snapshot() {
		kinds = append(kinds, event.Kind())
	}
	return kinds
}

type harness struct {
	t        tester
	clock    *testClock
	source   *testFrameSource
	encoder  *testUtteranceEncoder
	recorder *Recorder
	log      *eventLog

	spacing time.Duration
	nextSeq int64
}

// newHarness builds a recorder on a fake clock. Frames are 80ms apart, so a
// countdown due at the same instant as a frame fires before it.
func newHarness(t tester, config Config) *harness {
	t.Helper()

	h := &harness{
		t:       t,
		clock:   newTestClock(),
		source:  newTestFrameSource(),
		encoder: &testUtteranceEncoder{},
		log:     &eventLog{},
		spacing: 80 * time.Millisecond,
		nextSeq: 1,
	}

	recorder, err := NewRecorder(config,
		WithFrameSource(h.source),
		WithUtteranceEncoder(h.encoder),
		WithClock(h.clock),
		WithLogger(discardLogger),
	)
	if err != nil {
		t.Fatalf("expected recorder, got %v", err)
	}
	recorder.Subscribe(h.log.record)
	h.recorder = recorder
	return h
}

func scenarioConfig() Config {
	config := DefaultConfig()
	config.MinimumSpeechDuration = 200 * time.Millisecond
	config.SilenceTimeout = 400 * time.Millisecond
	config.IntroOutroChunkCount = 1
	config.OnlyRecordOnSpeaking = true
	return config
}

func (h *harness) start() {
	h.t.Helper()
	if err := h.recorder.StartRecording(context.Background()); err != nil {
		h.t.Fatalf("expected start recording to succeed, got %v", err)
	}
}

func (h *harness) stop() {
	h.t.Helper()
	if err := h.recorder.StopRecording(context.Background()); err != nil {
		h.t.Fatalf("expected stop recording to succeed, got %v", err)
	}
}

// sync waits until the loop has processed everything posted so far.
func (h *harness) sync() {
	h.t.Helper()
	if err := h.recorder.do(context.Background(), "sync", func(context.Context) error { return nil }); err != nil {
		h.t.Fatalf("expected recorder loop to be running, got %v", err)
	}
}

func (h *harness) advance(d time.Duration) {
	h.clock.advance(d, h.sync)
}

func (h *harness) emit(frame audio.Frame) {
	h.advance(h.spacing)
	h.source.emit(frame)
	h.sync()
}

// frames delivers one frame per probability and returns their sequence ids.
func (h *harness) frames(probabilities ...float64) []int64 {
	ids := make([]int64, 0, len(probabilities))
	for _, probability := range probabilities {
		id := h.nextSeq
		h.nextSeq++
		h.emit(audio.Frame{SequenceID: id, Payload: testPayload(id), SpeechProbability: probability, Level: audio.SilenceLevel})
		ids = append(ids, id)
	}
	return ids
}

func (h *harness) state() SpeakingState {
	h.t.Helper()
	var state SpeakingState
	if err := h.recorder.do(context.Background(), "state", func(context.Context) error {
		state = h.recorder.state
		return nil
	}); err != nil {
		h.t.Fatalf("expected recorder loop to be running, got %v", err)
	}
	return state
}

// finish cleans the recorder up, which also waits until every event has been
// delivered.
func (h *harness) finish() {
	h.t.Helper()
	if err := h.recorder.Cleanup(); err != nil {
		h.t.Fatalf("expected cleanup to succeed, got %v", err)
	}
}

func waitFor(t tester, condition func() bool, format string, args ...any) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf(format, args...)
}
