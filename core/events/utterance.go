package events

import (
	"time"

	"github.com/koscakluka/ema-recorder/core/utterance"
)

const (
	// KindDataBlob identifies a finalized, persisted utterance.
	KindDataBlob Kind = "utterance.data_blob"
	// KindRecorderFailed identifies errors the recorder could not return to a
	// caller directly.
	KindRecorderFailed Kind = "recorder.failed"
)

// DataBlob carries the descriptor of one persisted utterance. IsFinal is
// always true; every utterance is emitted exactly once.
type DataBlob struct {
	Base
	Descriptor utterance.Descriptor
	IsFinal    bool
}

// NewDataBlob creates a data blob event.
func NewDataBlob(descriptor utterance.Descriptor, at time.Time) DataBlob {
	return DataBlob{Base: NewBaseAt(KindDataBlob, at), Descriptor: descriptor, IsFinal: true}
}

// RecorderFailed carries an asynchronous failure. Fatal failures leave the
// recorder unusable; the rest only cost the affected utterance.
type RecorderFailed struct {
	Base
	Err   error
	Fatal bool
}

// NewRecorderFailed creates a failure event.
func NewRecorderFailed(err error, fatal bool, at time.Time) RecorderFailed {
	return RecorderFailed{Base: NewBaseAt(KindRecorderFailed, at), Err: err, Fatal: fatal}
}
