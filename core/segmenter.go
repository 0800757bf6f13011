package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/koscakluka/ema-recorder/core/events"
)

func (r *Recorder) onFrame(arrived frameArrived) {
	if r.closed || r.fatalErr != nil || arrived.session != r.session || !r.input.IsCapturing() {
		return
	}

	frame := arrived.frame
	if err := frame.Validate(); err != nil {
		r.framesDropped.Add(context.Background(), 1)
		r.logger.Warn("dropping frame", "error", fmt.Errorf("%w: %w", ErrMalformedFrame, err))
		return
	}

	if !r.cfg.ContinuousRecording {
		r.processSpeech(r.cfg.isSpeech(frame), arrived.at)
	}

	if err := r.routeFrame(arrived); err != nil {
		r.fail(err, arrived.at)
	}
}

func (r *Recorder) processSpeech(isSpeaking bool, at time.Time) {
	if isSpeaking {
		if r.speakingSince.IsZero() {
			r.speakingSince = at
		}

		switch r.state {
		case NoSpeech:
			r.timers.start(minSpeechTimer, r.cfg.MinimumSpeechDuration)
			r.buffer.promotePreRoll()
			r.setState(WaitingForMinDuration)
		case WaitingForSilenceTimeout:
			r.timers.cancel(silenceTimer)
			r.buffer.mergeHoldBack()
			r.updateLongestSilence(at)
			r.silenceSince = time.Time{}
			r.setState(Speaking)
		case GettingFinalChunks:
			if r.stopRequested {
				return
			}
			r.trailing = 0
			r.timers.cancel(finalizationTimer)
			r.internalStop = false
			r.setState(Speaking)
			if !r.speaking {
				r.setSpeaking(true, at)
			}
		}
		return
	}

	if !r.speakingSince.IsZero() {
		r.bus.publish(events.NewSpeakingDurationMeasured(at.Sub(r.speakingSince), at))
		r.speakingSince = time.Time{}
	}

	switch r.state {
	case WaitingForMinDuration:
		r.timers.cancel(minSpeechTimer)
		r.buffer.demoteUtterance()
		r.setState(NoSpeech)
	case Speaking:
		r.timers.start(silenceTimer, r.cfg.SilenceTimeout)
		r.silenceSince = at
		r.setState(WaitingForSilenceTimeout)
	}
}

func (r *Recorder) routeFrame(arrived frameArrived) error {
	frame := arrived.frame
	if r.cfg.ContinuousRecording && r.state != GettingFinalChunks {
		r.buffer.append(frame)
		return nil
	}

	switch r.state {
	case NoSpeech:
		r.buffer.pushPreRoll(frame)
	case WaitingForMinDuration, Speaking:
		r.buffer.append(frame)
	case WaitingForSilenceTimeout:
		r.buffer.hold(frame)
	case GettingFinalChunks:
		if r.trailing <= 0 {
			return fmt.Errorf("%w: frame %d arrived in %s with %d trailing frames outstanding",
				ErrInvariantViolation, frame.SequenceID, r.state, r.trailing)
		}
		r.buffer.append(frame)
		r.trailing--
		if r.trailing == 0 {
			r.finalize(arrived.at)
		}
	default:
		return fmt.Errorf("%w: unknown speaking state %d", ErrInvariantViolation, r.state)
	}
	return nil
}

func (r *Recorder) onTimer(fired timerFired) {
	if r.closed || r.fatalErr != nil || !r.timers.accept(fired) {
		return
	}

	switch fired.kind {
	case minSpeechTimer:
		r.onMinimumSpeechReached(fired.at)
	case silenceTimer:
		r.onSilenceConfirmed(fired.at)
	case finalizationTimer:
		r.logger.Debug("post-roll timed out", "trailing", r.trailing)
		r.finalize(fired.at)
	}
}

func (r *Recorder) onMinimumSpeechReached(at time.Time) {
	if r.state != WaitingForMinDuration {
		return
	}

	r.setState(Speaking)
	if !r.speaking {
		r.setSpeaking(true, at)
	}
	if r.cfg.OnlyRecordOnSpeaking && !r.recording {
		r.setRecording(true, at)
	}
}

func (r *Recorder) onSilenceConfirmed(at time.Time) {
	if r.state != WaitingForSilenceTimeout {
		return
	}

	r.updateLongestSilence(at)
	r.silenceSince = time.Time{}
	if r.speaking {
		r.setSpeaking(false, at)
	}
	if r.cfg.OnlyRecordOnSpeaking {
		r.internalStop = true
	}

	r.collectTrailingFrames(at)
}

// collectTrailingFrames arms the post-roll. Frames already held back count
// towards it; if they cover it the utterance is finalized right away,
// otherwise the next frames (or the finalization timeout) complete it.
func (r *Recorder) collectTrailingFrames(at time.Time) {
	r.trailing = r.cfg.IntroOutroChunkCount
	r.trailing -= r.buffer.drainHoldBack(r.trailing)
	r.buffer.discardHoldBack()

	if r.trailing == 0 {
		r.finalize(at)
		return
	}

	r.setState(GettingFinalChunks)
	r.timers.start(finalizationTimer, r.cfg.finalizationTimeout())
}

// finalize hands the utterance to the encoder and applies any stop that was
// waiting for it.
func (r *Recorder) finalize(at time.Time) {
	r.timers.cancel(finalizationTimer)
	r.trailing = 0
	r.setState(NoSpeech)

	frames := r.buffer.takeAndClear()
	switch {
	case r.stopRequested, !r.cfg.ContinuousRecording && !r.cfg.OnlyRecordOnSpeaking:
		if err := r.teardown(at); err != nil {
			r.report(err, at)
		}
	case r.internalStop:
		r.internalStop = false
		if r.recording {
			r.setRecording(false, at)
		}
	}

	if len(frames) > 0 {
		r.submit(frames, at)
	}
}

func (r *Recorder) updateLongestSilence(at time.Time) {
	if r.silenceSince.IsZero() {
		return
	}

	if silence := at.Sub(r.silenceSince); silence > r.longestSilence {
		r.longestSilence = silence
		r.bus.publish(events.NewLongestSilenceUpdated(silence, at))
	}
}

func (r *Recorder) setState(state SpeakingState) {
	if r.state == state {
		return
	}
	r.logger.Debug("speaking state changed", "from", r.state, "to", state)
	r.state = state
}

func (r *Recorder) setSpeaking(speaking bool, at time.Time) {
	r.speaking = speaking
	r.bus.publish(events.NewSpeakingChanged(speaking, at))
}

func (r *Recorder) setRecording(recording bool, at time.Time) {
	r.recording = recording
	r.bus.publish(events.NewRecordingChanged(recording, at))
}
