package ocr

import "errors"

var (
	// ErrNoText reports that no engine recognised any text on any variant.
	// It is surfaced as a condition on Result, not returned as a failure.
	ErrNoText = errors.New("ocr: no text recognised")

	// ErrEngineTimeout reports an engine call that outlived its deadline.
	// The call counts as an empty result.
	ErrEngineTimeout = errors.New("ocr: engine timeout")
)
