package recorder

import "errors"

var (
	// ErrMalformedFrame marks frames that were dropped before buffering.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrInvariantViolation means the segmenter reached a state it can not
	// leave safely. The recorder refuses further work once it is reported.
	ErrInvariantViolation = errors.New("speech segmenter invariant violated")
	ErrClosed             = errors.New("recorder closed")
	ErrNoFrameSource      = errors.New("no frame source configured")
)
