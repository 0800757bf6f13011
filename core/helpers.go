package recorder

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-recorder/core/audio"
)

type workerRun func(context.Context) error

func panicSafeNamedWorker(name string, run func(context.Context) error) workerRun {
	return func(ctx context.Context) (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("%s worker panicked: %v", name, recovered)
			}
		}()

		if err = run(ctx); err != nil {
			return fmt.Errorf("%s worker failed: %w", name, err)
		}

		return nil
	}
}

func framePayloads(frames []audio.Frame) [][]byte {
	payloads := make([][]byte, 0, len(frames))
	for _, frame := range frames {
		payloads = append(payloads, frame.Payload)
	}
	return payloads
}
