package generation

import (
	"errors"
	"fmt"
)

// ErrMalformedInput rejects empty question text on the free-form path before
// any store or model call is made.
var ErrMalformedInput = errors.New("question text is required")

type FailureStage string

const (
	StageCorpusFetch FailureStage = "corpus_fetch"
	StageModelStream FailureStage = "model_stream"
	StageStoreWrite  FailureStage = "store_write"
)

// StreamError is the single error shape surfaced through a terminal stream
// event. Stage records where the run failed; nothing is committed on failure.
type StreamError struct {
	Stage FailureStage
	Err   error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}
