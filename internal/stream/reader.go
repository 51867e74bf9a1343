package stream

import (
	"errors"
	"io"
)

// ReaderStream adapts an io.Reader into a pull-driven chunk sequence, so any
// reader can be supplied as a streamed statement parameter.
type ReaderStream struct {
	r     io.Reader
	size  int64
	chunk []byte
	err   error
	done  bool
}

// FromReader wraps r. Each chunk holds up to chunkSize bytes; a non-positive
// size falls back to DefaultChunkSize.
func FromReader(r io.Reader, chunkSize int64) *ReaderStream {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize > MaxChunkSize {
		chunkSize = MaxChunkSize
	}
	return &ReaderStream{r: r, size: chunkSize}
}

func (s *ReaderStream) Next() bool {
	if s.done {
		return false
	}
	buf := make([]byte, s.size)
	n, err := io.ReadFull(s.r, buf)
	if n > 0 {
		s.chunk = buf[:n]
	} else {
		s.chunk = nil
	}
	switch {
	case err == nil:
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true
		return n > 0
	default:
		s.err = err
		s.done = true
		s.chunk = nil
		return false
	}
}

func (s *ReaderStream) Bytes() []byte {
	return s.chunk
}

func (s *ReaderStream) Err() error {
	return s.err
}
