package recorder

import (
	"slices"

	"github.com/koscakluka/ema-recorder/core/audio"
)

// chunkBuffer keeps the frames of the utterance in progress.
//
// preRoll is a ring of the newest frames seen while nobody was speaking, so an
// onset is never clipped. holdBack collects frames while silence is being
// confirmed; they are merged back if speech resumes and mostly discarded if it
// does not.
type chunkBuffer struct {
	preRollCapacity int

	preRoll   []audio.Frame
	utterance []audio.Frame
	holdBack  []audio.Frame
}

func newChunkBuffer(introOutroChunkCount int) *chunkBuffer {
	return &chunkBuffer{preRollCapacity: max(introOutroChunkCount, 0) + 1}
}

func (b *chunkBuffer) pushPreRoll(frame audio.Frame) {
	if len(b.preRoll) >= b.preRollCapacity {
		b.preRoll = slices.Delete(b.preRoll, 0, len(b.preRoll)-b.preRollCapacity+1)
	}
	b.preRoll = append(b.preRoll, frame)
}

func (b *chunkBuffer) append(frame audio.Frame) {
	b.utterance = append(b.utterance, frame)
}

func (b *chunkBuffer) hold(frame audio.Frame) {
	b.holdBack = append(b.holdBack, frame)
}

// drainHoldBack moves up to n of the oldest held back frames into the
// utterance and returns how many were moved.
func (b *chunkBuffer) drainHoldBack(n int) int {
	n = min(max(n, 0), len(b.holdBack))
	b.utterance = append(b.utterance, b.holdBack[:n]...)
	b.holdBack = slices.Delete(b.holdBack, 0, n)
	return n
}

func (b *chunkBuffer) mergeHoldBack() {
	b.drainHoldBack(len(b.holdBack))
}

func (b *chunkBuffer) discardHoldBack() {
	b.holdBack = nil
}

// promotePreRoll puts the pre-roll ring in front of the utterance.
func (b *chunkBuffer) promotePreRoll() {
	if len(b.preRoll) == 0 {
		return
	}
	b.utterance = append(b.preRoll, b.utterance...)
	b.preRoll = nil
}

// demoteUtterance turns an unconfirmed utterance back into pre-roll, keeping
// only the newest frames that fit.
func (b *chunkBuffer) demoteUtterance() {
	frames := append(b.preRoll, b.utterance...)
	if len(frames) > b.preRollCapacity {
		frames = frames[len(frames)-b.preRollCapacity:]
	}
	b.preRoll = slices.Clone(frames)
	b.utterance = nil
}

// takeAndClear hands the utterance over and leaves the buffer ready for the
// next one.
func (b *chunkBuffer) takeAndClear() []audio.Frame {
	frames := b.utterance
	b.utterance = nil
	b.holdBack = nil
	return frames
}

func (b *chunkBuffer) reset() {
	b.preRoll = nil
	b.utterance = nil
	b.holdBack = nil
}

func (b *chunkBuffer) preRollLen() int   { return len(b.preRoll) }
func (b *chunkBuffer) utteranceLen() int { return len(b.utterance) }
func (b *chunkBuffer) holdBackLen() int  { return len(b.holdBack) }
