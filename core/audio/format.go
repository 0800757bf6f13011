package audio

const (
	DefaultSampleRate = 48000
	DefaultChannels   = 1

	// BytesPerSample is the width of one float32 sample in a frame payload.
	BytesPerSample = 4
)

func GetDefaultFormat() Format {
	return Format{Channels: DefaultChannels, SampleRate: DefaultSampleRate}
}

// Format is the sample format negotiated with a capture device. Two formats
// are equal exactly when an encoder built for one can be reused for the other.
type Format struct {
	Channels   int `yaml:"channels"`
	SampleRate int `yaml:"sample_rate"`
}

func (f Format) IsZero() bool {
	return f.Channels == 0 || f.SampleRate == 0
}

// FrameBytes returns the payload size of a frame spanning the given number of
// milliseconds.
func (f Format) FrameBytes(milliseconds int) int {
	return f.SampleRate * milliseconds / 1000 * f.Channels * BytesPerSample
}
