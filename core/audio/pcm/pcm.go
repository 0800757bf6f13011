// Package pcm converts captured float32 frame payloads into the integer PCM
// the encoders consume.
package pcm

import (
	"encoding/binary"
	"fmt"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/koscakluka/ema-recorder/core/audio"
)

// Concat joins frame payloads in order into one float32 buffer tagged with
// the given format.
func Concat(format audio.Format, payloads [][]byte) (*goaudio.Float32Buffer, error) {
	total := 0
	for i, payload := range payloads {
		if len(payload)%audio.BytesPerSample != 0 {
			return nil, fmt.Errorf("payload %d: %d bytes is not float32 aligned", i, len(payload))
		}
		total += len(payload) / audio.BytesPerSample
	}

	data := make([]float32, 0, total)
	for _, payload := range payloads {
		for i := 0; i < len(payload); i += audio.BytesPerSample {
			data = append(data, math.Float32frombits(binary.LittleEndian.Uint32(payload[i:])))
		}
	}

	return &goaudio.Float32Buffer{
		Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		Data:           data,
		SourceBitDepth: 32,
	}, nil
}

// Encode is the inverse of Concat for a single payload.
func Encode(samples []float32) []byte {
	payload := make([]byte, len(samples)*audio.BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(payload[i*audio.BytesPerSample:], math.Float32bits(s))
	}
	return payload
}

// Codec is the default numeric facility: peak normalization and float to
// 16-bit conversion.
type Codec struct{}

// Normalize scales the buffer in place so that its peak magnitude equals
// gain. Silent buffers are returned untouched.
func (Codec) Normalize(buf *goaudio.Float32Buffer, gain float64) *goaudio.Float32Buffer {
	if buf == nil || gain <= 0 {
		return buf
	}

	var peak float64
	for _, s := range buf.Data {
		peak = math.Max(peak, math.Abs(float64(s)))
	}
	if peak == 0 {
		return buf
	}

	scale := float32(gain / peak)
	for i := range buf.Data {
		buf.Data[i] *= scale
	}
	return buf
}

// FloatToInt16 converts [-1, 1] floats to signed 16-bit samples, clipping
// anything outside that range.
func (Codec) FloatToInt16(buf *goaudio.Float32Buffer) []int16 {
	if buf == nil {
		return nil
	}

	out := make([]int16, len(buf.Data))
	for i, s := range buf.Data {
		v := math.Max(-1, math.Min(1, float64(s)))
		if v < 0 {
			out[i] = int16(v * 32768)
		} else {
			out[i] = int16(v * 32767)
		}
	}
	return out
}
