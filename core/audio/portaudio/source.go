// Package portaudio captures frames from the default input device through
// PortAudio.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-recorder/core/audio"
	"github.com/koscakluka/ema-recorder/core/audio/capture"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

var logger = otelslog.NewLogger("github.com/koscakluka/ema-recorder/core/audio/portaudio")

// Source is an audio.FrameSource reading the default PortAudio input stream
// on its own goroutine.
type Source struct {
	bufferSize int
	stream     *portaudio.Stream
	in         []float32
	format     audio.Format

	framer *capture.Framer

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSource initialises PortAudio. bufferSize is the number of frames read
// per call and bounds capture latency.
func NewSource(bufferSize int) (*Source, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	return &Source{bufferSize: bufferSize, framer: capture.NewFramer()}, nil
}

func (s *Source) Init(config audio.SourceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return nil
	}

	format := config.Format
	if format.IsZero() {
		format = audio.GetDefaultFormat()
	}

	in := make([]float32, s.bufferSize*format.Channels)
	stream, err := portaudio.OpenDefaultStream(format.Channels, 0, float64(format.SampleRate), s.bufferSize, in)
	if err != nil {
		return fmt.Errorf("failed to open PortAudio stream: %w", err)
	}

	s.stream = stream
	s.in = in
	s.format = format
	s.framer.Configure(format, config)
	return nil
}

func (s *Source) Subscribe(onFrame func(audio.Frame)) (unsubscribe func()) {
	return s.framer.Subscribe(onFrame)
}

func (s *Source) Start(ctx context.Context) (audio.Format, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return audio.Format{}, fmt.Errorf("stream not initialized")
	} else if s.done != nil {
		return s.format, nil
	}

	s.framer.Reset()
	if err := s.stream.Start(); err != nil {
		return audio.Format{}, fmt.Errorf("failed to start PortAudio stream: %w", err)
	}

	// Capture outlives the call that started it.
	readCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.read(readCtx, s.done)

	return s.format, nil
}

func (s *Source) read(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				logger.Debug("input overflowed, samples were lost")
			} else {
				logger.Error("failed to read from PortAudio stream", "error", err)
				return
			}
		}
		s.framer.Write(s.in)
	}
}

func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil

	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop PortAudio stream: %w", err)
	}
	return nil
}

// Close stops capture and terminates PortAudio.
func (s *Source) Close() error {
	err := s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != nil {
		err = errors.Join(err, s.stream.Close())
		s.stream = nil
	}
	return errors.Join(err, portaudio.Terminate())
}
