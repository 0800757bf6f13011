package recorder

import (
	"time"

	"github.com/koscakluka/ema-recorder/core/events"
	"github.com/koscakluka/ema-recorder/core/utterance"
)

type callbacks struct {
	onRecording        func(recording bool)
	onSpeaking         func(speaking bool)
	onSpeakingDuration func(duration time.Duration)
	onLongestSilence   func(duration time.Duration)
	onDataBlob         func(descriptor utterance.Descriptor, isFinal bool)
	onFailure          func(err error, fatal bool)
}

func (c callbacks) empty() bool {
	return c.onRecording == nil && c.onSpeaking == nil && c.onSpeakingDuration == nil &&
		c.onLongestSilence == nil && c.onDataBlob == nil && c.onFailure == nil
}

func newCallbackSubscriber(c callbacks) func(events.Event) {
	return func(event events.Event) {
		switch typedEvent := event.(type) {
		case events.RecordingChanged:
			if c.onRecording != nil {
				c.onRecording(typedEvent.Recording)
			}
		case events.SpeakingChanged:
			if c.onSpeaking != nil {
				c.onSpeaking(typedEvent.Speaking)
			}
		case events.SpeakingDurationMeasured:
			if c.onSpeakingDuration != nil {
				c.onSpeakingDuration(typedEvent.Duration)
			}
		case events.LongestSilenceUpdated:
			if c.onLongestSilence != nil {
				c.onLongestSilence(typedEvent.Duration)
			}
		case events.DataBlob:
			if c.onDataBlob != nil {
				c.onDataBlob(typedEvent.Descriptor, typedEvent.IsFinal)
			}
		case events.RecorderFailed:
			if c.onFailure != nil {
				c.onFailure(typedEvent.Err, typedEvent.Fatal)
			}
		}
	}
}
