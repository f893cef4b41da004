package typedstream

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidHeader means the stream does not begin with the macOS
	// streamtyped v4 header.
	ErrInvalidHeader = errors.New("invalid typedstream header")
	// ErrOutOfBounds means a declared length implies a read past the end of
	// the stream.
	ErrOutOfBounds = errors.New("read past end of stream")
	// ErrBadReference means a back-reference points outside the object or
	// type table built so far.
	ErrBadReference = errors.New("reference outside table bounds")
	// ErrInvalidPointer means a byte in reference position is below the
	// reference tag and cannot encode an index.
	ErrInvalidPointer = errors.New("pointer below reference tag")
	// ErrInvalidArray means a braced array type carried no length digits.
	ErrInvalidArray = errors.New("malformed array type")
	// ErrNotUTF8 means string data was not valid UTF-8.
	ErrNotUTF8 = errors.New("string data is not utf-8")

	// ErrNoStartPattern, ErrNoEndPattern, and ErrInvalidPrefix are returned
	// by ExtractText when the legacy archive layout is not found.
	ErrNoStartPattern = errors.New("no start pattern in stream")
	ErrNoEndPattern   = errors.New("no end pattern in stream")
	ErrInvalidPrefix  = errors.New("string prefix length is not standard")

	// errTruncated marks a single-byte read at the exact end of the stream.
	// Decode treats it as end-of-input rather than corruption.
	errTruncated = errors.New("truncated stream")
)

// StreamError reports a malformed stream with the byte offset where decoding
// failed and the construct that was expected there.
type StreamError struct {
	Offset int
	Want   string
	Err    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("malformed stream at offset %#x: want %s: %v", e.Offset, e.Want, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

func (d *decoder) fail(want string, err error) error {
	return &StreamError{Offset: d.pos, Want: want, Err: err}
}
