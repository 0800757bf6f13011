// Package wav writes utterances as 16-bit PCM WAV files.
package wav

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/koscakluka/ema-recorder/core/audio"
	"github.com/koscakluka/ema-recorder/core/utterance"
	"github.com/spf13/afero/mem"
)

const (
	mimeType  = "audio/wav"
	bitDepth  = 16
	formatPCM = 1
)

// Encoder buffers samples until Flush, since the RIFF header needs the final
// data size.
type Encoder struct {
	format  audio.Format
	pending []int
}

// New is a utterance.EncoderFactory.
func New(format audio.Format) (utterance.StreamEncoder, error) {
	if format.IsZero() {
		return nil, fmt.Errorf("wav needs a sample rate and channel count, got %+v", format)
	}
	return &Encoder{format: format}, nil
}

func (e *Encoder) Encode(samples []int16) ([]byte, error) {
	for _, s := range samples {
		e.pending = append(e.pending, int(s))
	}
	return nil, nil
}

func (e *Encoder) Flush() ([]byte, error) {
	if len(e.pending) == 0 {
		return nil, nil
	}
	defer func() { e.pending = e.pending[:0] }()

	file := mem.NewFileHandle(mem.CreateFile("utterance.wav"))
	encoder := wav.NewEncoder(file, e.format.SampleRate, bitDepth, e.format.Channels, formatPCM)
	if err := encoder.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: e.format.Channels, SampleRate: e.format.SampleRate},
		Data:           e.pending,
		SourceBitDepth: bitDepth,
	}); err != nil {
		return nil, fmt.Errorf("failed to write wav samples: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish wav header: %w", err)
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind wav buffer: %w", err)
	}
	return io.ReadAll(file)
}

func (e *Encoder) MimeType() string  { return mimeType }
func (e *Encoder) Extension() string { return "wav" }
