package ingest

import (
	"errors"
	"fmt"
)

// Pass-level decode failures. A failed decode never yields a partial
// document.
var (
	ErrOrphanContinuation = errors.New("continuation line without a preceding record")
	ErrTimestamp          = errors.New("unparsable block timestamp")
	ErrRead               = errors.New("read journal")
	ErrDecode             = errors.New("decode aborted")
)

// DecodeError reports the line at which decoding failed. Line is 0 when the
// failure is not tied to a line.
type DecodeError struct {
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Line <= 0 {
		return fmt.Sprintf("ingest: %v", e.Err)
	}
	return fmt.Sprintf("ingest: line %d: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
