package recorder

// SpeakingState decides where an incoming frame is buffered.
type SpeakingState int

const (
	NoSpeech SpeakingState = iota
	WaitingForMinDuration
	Speaking
	WaitingForSilenceTimeout
	GettingFinalChunks
)

func (s SpeakingState) String() string {
	switch s {
	case NoSpeech:
		return "no_speech"
	case WaitingForMinDuration:
		return "waiting_for_min_duration"
	case Speaking:
		return "speaking"
	case WaitingForSilenceTimeout:
		return "waiting_for_silence_timeout"
	case GettingFinalChunks:
		return "getting_final_chunks"
	default:
		return "unknown"
	}
}
