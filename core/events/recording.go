package events

import "time"

const (
	// KindRecordingChanged identifies recording flag changes.
	KindRecordingChanged Kind = "recorder.recording"
	// KindSpeakingChanged identifies confirmed speech start and end.
	KindSpeakingChanged Kind = "speech.speaking"
	// KindSpeakingDurationMeasured identifies the length of the latest
	// speaking stretch.
	KindSpeakingDurationMeasured Kind = "speech.most_recent_speaking_duration"
	// KindLongestSilenceUpdated identifies a new longest silence window.
	KindLongestSilenceUpdated Kind = "speech.longest_silence_duration"
)

// RecordingChanged reports the recorder's recording flag.
type RecordingChanged struct {
	Base
	Recording bool
}

// NewRecordingChanged creates a recording flag event.
func NewRecordingChanged(recording bool, at time.Time) RecordingChanged {
	return RecordingChanged{Base: NewBaseAt(KindRecordingChanged, at), Recording: recording}
}

// SpeakingChanged reports confirmed speech activity.
type SpeakingChanged struct {
	Base
	Speaking bool
}

// NewSpeakingChanged creates a speaking state event.
func NewSpeakingChanged(speaking bool, at time.Time) SpeakingChanged {
	return SpeakingChanged{Base: NewBaseAt(KindSpeakingChanged, at), Speaking: speaking}
}

// SpeakingDurationMeasured carries the duration of the most recent speaking
// stretch, measured from the first speech frame to the first non-speech frame.
type SpeakingDurationMeasured struct {
	Base
	Duration time.Duration
}

// NewSpeakingDurationMeasured creates a speaking duration event.
func NewSpeakingDurationMeasured(duration time.Duration, at time.Time) SpeakingDurationMeasured {
	return SpeakingDurationMeasured{Base: NewBaseAt(KindSpeakingDurationMeasured, at), Duration: duration}
}

// LongestSilenceUpdated carries a new maximum silence window.
type LongestSilenceUpdated struct {
	Base
	Duration time.Duration
}

// NewLongestSilenceUpdated creates a longest silence event.
func NewLongestSilenceUpdated(duration time.Duration, at time.Time) LongestSilenceUpdated {
	return LongestSilenceUpdated{Base: NewBaseAt(KindLongestSilenceUpdated, at), Duration: duration}
}
