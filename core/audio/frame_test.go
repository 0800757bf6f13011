package audio

import (
	"math"
	"testing"
)

func TestFrameValidate(t *testing.T) {
	valid := Frame{SequenceID: 1, Payload: make([]byte, 8), SpeechProbability: 0.4, Level: -30}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid frame, got %v", err)
	}

	cases := map[string]Frame{
		"empty payload":         {SequenceID: 2, SpeechProbability: 0.4},
		"unaligned payload":     {SequenceID: 3, Payload: make([]byte, 6)},
		"probability above one": {SequenceID: 4, Payload: make([]byte, 4), SpeechProbability: 1.5},
		"negative probability":  {SequenceID: 5, Payload: make([]byte, 4), SpeechProbability: -0.1},
		"nan probability":       {SequenceID: 6, Payload: make([]byte, 4), SpeechProbability: math.NaN()},
		"nan level":             {SequenceID: 7, Payload: make([]byte, 4), Level: math.NaN()},
	}
	for name, frame := range cases {
		if err := frame.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestFormatFrameBytes(t *testing.T) {
	format := Format{Channels: 2, SampleRate: 16000}
	if got := format.FrameBytes(400); got != 16000*400/1000*2*BytesPerSample {
		t.Fatalf("unexpected frame size %d", got)
	}
	if !(Format{SampleRate: 16000}).IsZero() {
		t.Fatalf("expected format without channels to be zero")
	}
}
