package pcm

import (
	"math"
	"testing"

	"github.com/koscakluka/ema-recorder/core/audio"
)

func TestConcatPreservesPayloadOrder(t *testing.T) {
	buf, err := Concat(audio.GetDefaultFormat(), [][]byte{
		Encode([]float32{0.1, 0.2}),
		Encode([]float32{0.3}),
	})
	if err != nil {
		t.Fatalf("expected concat to succeed, got %v", err)
	}

	want := []float32{0.1, 0.2, 0.3}
	if len(buf.Data) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(buf.Data))
	}
	for i := range want {
		if buf.Data[i] != want[i] {
			t.Fatalf("expected sample %d to be %v, got %v", i, want[i], buf.Data[i])
		}
	}
	if buf.Format.SampleRate != audio.DefaultSampleRate {
		t.Fatalf("expected sample rate %d, got %d", audio.DefaultSampleRate, buf.Format.SampleRate)
	}
}

func TestConcatRejectsUnalignedPayload(t *testing.T) {
	if _, err := Concat(audio.GetDefaultFormat(), [][]byte{{1, 2, 3}}); err == nil {
		t.Fatalf("expected unaligned payload to be rejected")
	}
}

func TestNormalizeScalesPeakToGain(t *testing.T) {
	buf, _ := Concat(audio.GetDefaultFormat(), [][]byte{Encode([]float32{0.25, -0.5, 0.1})})

	Codec{}.Normalize(buf, 0.8)

	if got := math.Abs(float64(buf.Data[1])); math.Abs(got-0.8) > 1e-6 {
		t.Fatalf("expected peak to be 0.8, got %v", got)
	}
	if got := float64(buf.Data[0]); math.Abs(got-0.4) > 1e-6 {
		t.Fatalf("expected first sample to scale to 0.4, got %v", got)
	}
}

func TestNormalizeLeavesSilenceUntouched(t *testing.T) {
	buf, _ := Concat(audio.GetDefaultFormat(), [][]byte{Encode([]float32{0, 0})})

	Codec{}.Normalize(buf, 0.8)

	for i, s := range buf.Data {
		if s != 0 {
			t.Fatalf("expected sample %d to stay silent, got %v", i, s)
		}
	}
}

func TestFloatToInt16ClipsOutOfRange(t *testing.T) {
	buf, _ := Concat(audio.GetDefaultFormat(), [][]byte{Encode([]float32{2, -2, 0, 1, -1})})

	got := Codec{}.FloatToInt16(buf)

	want := []int16{32767, -32768, 0, 32767, -32768}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected sample %d to be %d, got %d", i, want[i], got[i])
		}
	}
}
