// Package shine adapts the pure-Go shine MP3 encoder to the utterance
// pipeline.
package shine

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/braheezy/shine-mp3/pkg/mp3"
	"github.com/koscakluka/ema-recorder/core/audio"
	"github.com/koscakluka/ema-recorder/core/utterance"
)

const mimeType = "audio/mp3"

var supportedSampleRates = []int{8000, 11025, 12000, 16000, 22050, 24000, 32000, 44100, 48000}

type Encoder struct {
	format audio.Format
	mp3    *mp3.Encoder
}

// New is a utterance.EncoderFactory.
func New(format audio.Format) (utterance.StreamEncoder, error) {
	if format.Channels < 1 || format.Channels > 2 {
		return nil, fmt.Errorf("mp3 supports 1 or 2 channels, got %d", format.Channels)
	}
	if !slices.Contains(supportedSampleRates, format.SampleRate) {
		return nil, fmt.Errorf("mp3 does not support a sample rate of %d Hz", format.SampleRate)
	}

	return &Encoder{
		format: format,
		mp3:    mp3.NewEncoder(format.SampleRate, format.Channels),
	}, nil
}

func (e *Encoder) Encode(samples []int16) ([]byte, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	var out bytes.Buffer
	if err := e.mp3.Write(&out, samples); err != nil {
		return nil, fmt.Errorf("failed to write mp3 frames: %w", err)
	}
	return out.Bytes(), nil
}

// Flush is a no-op: shine pads and emits the final granule inside Write.
func (e *Encoder) Flush() ([]byte, error) { return nil, nil }

func (e *Encoder) MimeType() string  { return mimeType }
func (e *Encoder) Extension() string { return "mp3" }
