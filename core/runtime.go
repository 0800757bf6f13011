package recorder

import (
	"context"
	"time"

	"github.com/koscakluka/ema-recorder/core/audio"
)

// loopEvent is anything the recorder loop processes. Events are handled one at
// a time in arrival order, so a frame that cancels a countdown is fully applied
// before a concurrently fired countdown is looked at, and the other way round.
type loopEvent interface{ isLoopEvent() }

type frameArrived struct {
	frame audio.Frame
	// session ties the frame to the capture session that delivered it.
	session uint64
	at      time.Time
}

type command struct {
	name string
	run  func()
}

func (frameArrived) isLoopEvent() {}
func (timerFired) isLoopEvent()   {}
func (command) isLoopEvent()      {}

func (r *Recorder) post(event loopEvent) bool {
	return r.inbox.push(event)
}

// do runs fn on the loop and waits for its result.
func (r *Recorder) do(ctx context.Context, name string, fn func(context.Context) error) error {
	reply := make(chan error, 1)
	if !r.post(command{name: name, run: func() { reply <- fn(ctx) }}) {
		return ErrClosed
	}

	select {
	case err := <-reply:
		return err
	case <-r.loopDone:
		select {
		case err := <-reply:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) runLoop(ctx context.Context) error {
	defer close(r.loopDone)
	defer r.jobs.close()

	r.inbox.consume(ctx, r.dispatch)
	return nil
}

func (r *Recorder) dispatch(event loopEvent) {
	switch typedEvent := event.(type) {
	case frameArrived:
		r.onFrame(typedEvent)
	case timerFired:
		r.onTimer(typedEvent)
	case command:
		r.logger.Debug("running command", "command", typedEvent.name)
		typedEvent.run()
	}
}
