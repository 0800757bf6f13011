package recorder

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-recorder/core/audio"
)

// frameInput wraps the configured frame source. It is driven from the
// recorder loop only.
type frameInput struct {
	// source is the capture backend frames are subscribed from.
	source audio.FrameSource

	// initialized reports whether source.Init already ran.
	initialized bool
	// capturing reports whether source was started and not yet stopped.
	capturing bool

	unsubscribe func()
	format      audio.Format
}

func newFrameInput(source audio.FrameSource) *frameInput {
	input := &frameInput{}
	input.Set(source)
	return input
}

func (in *frameInput) Set(source audio.FrameSource) {
	in.source = source
	in.initialized = false
	in.capturing = false
	in.unsubscribe = nil
}

func (in *frameInput) IsConfigured() bool { return in != nil && in.source != nil }
func (in *frameInput) IsCapturing() bool  { return in != nil && in.capturing }

// Format is the format negotiated by the last successful Open.
func (in *frameInput) Format() audio.Format { return in.format }

// Open subscribes onFrame and starts capture. The subscription is dropped
// again if the source fails to start.
func (in *frameInput) Open(ctx context.Context, config audio.SourceConfig, onFrame func(audio.Frame)) (audio.Format, error) {
	if !in.IsConfigured() {
		return audio.Format{}, ErrNoFrameSource
	}
	if in.capturing {
		return in.format, nil
	}

	if !in.initialized {
		if err := in.source.Init(config); err != nil {
			return audio.Format{}, fmt.Errorf("failed to initialise frame source: %w", err)
		}
		in.initialized = true
	}

	in.unsubscribe = in.source.Subscribe(onFrame)
	format, err := in.source.Start(ctx)
	if err != nil {
		in.dropSubscription()
		return audio.Format{}, fmt.Errorf("failed to start frame source: %w", err)
	}

	if format.IsZero() {
		format = config.Format
	}
	in.format = format
	in.capturing = true
	return format, nil
}

// Close unsubscribes and stops capture. It is safe to call repeatedly.
func (in *frameInput) Close() error {
	if in == nil {
		return nil
	}

	in.dropSubscription()
	if !in.capturing {
		return nil
	}

	in.capturing = false
	if err := in.source.Stop(); err != nil {
		return fmt.Errorf("failed to stop frame source: %w", err)
	}
	return nil
}

func (in *frameInput) dropSubscription() {
	if in.unsubscribe != nil {
		in.unsubscribe()
		in.unsubscribe = nil
	}
}
