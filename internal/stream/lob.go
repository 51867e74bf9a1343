package stream

import (
	"bytes"
	"errors"
	"sync"
	"unicode/utf8"

	"dbstream/internal/driver"
)

const (
	// DefaultChunkSize is the number of bytes requested per fetch when the
	// caller does not set one.
	DefaultChunkSize = 204800

	// MaxChunkSize caps a caller-supplied chunk size.
	MaxChunkSize = 262144

	// eagerBuffer is the number of fetched chunks held ahead of the consumer
	// when backpressure is disabled.
	eagerBuffer = 4
)

// ChunkSource is the one abstraction the chunking logic is written against.
// It is implemented for a cursor column and for a statement output parameter.
type ChunkSource interface {
	// IsNull reports whether the source value is NULL.
	IsNull() (bool, error)

	// ReadChunk reads up to length units starting at offset. It returns
	// driver.ErrNoData once the object is exhausted.
	ReadChunk(offset, length int64) ([]byte, error)
}

// LOBOptions configure a chunked large-object stream.
type LOBOptions struct {
	// ChunkSize is the number of bytes requested per fetch.
	// Defaults to DefaultChunkSize, capped at MaxChunkSize.
	ChunkSize int64

	// DecodeText makes Value deliver decoded text segments instead of raw
	// bytes when the source is a character LOB. Ignored for binary sources.
	DecodeText bool

	// NoBackpressure issues the next fetch eagerly instead of waiting for
	// the consumer to request more.
	NoBackpressure bool
}

// lobState is the explicit machine a stream moves through. The offset is
// machine data, mutated only by the single fetch step.
type lobState int

const (
	lobIdle lobState = iota
	lobFetching
	lobDraining
	lobDone
	lobFailed
)

// LOB is a lazy, finite, non-restartable sequence of chunks sourced from one
// large-object column or output parameter. The offset only increases; once
// end-of-data is reached the stream never fetches again.
type LOB struct {
	src     ChunkSource
	textual bool
	decode  bool
	opts    LOBOptions

	state  lobState
	offset int64
	last   bool
	chunk  []byte
	err    error

	// eager-mode plumbing
	eager    chan lobChunk
	stop     chan struct{}
	stopOnce sync.Once
}

type lobChunk struct {
	data []byte
	err  error
}

func newLOB(src ChunkSource, textual bool, opts LOBOptions) *LOB {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkSize > MaxChunkSize {
		opts.ChunkSize = MaxChunkSize
	}
	l := &LOB{src: src, textual: textual, decode: opts.DecodeText && textual, opts: opts}
	if opts.NoBackpressure {
		l.eager = make(chan lobChunk, eagerBuffer)
		l.stop = make(chan struct{})
		go l.prefetchLoop()
	}
	return l
}

// Next advances to the next chunk. It returns false at end of data or on a
// terminal error; check Err afterwards.
func (l *LOB) Next() bool {
	if l.opts.NoBackpressure {
		return l.nextEager()
	}
	if l.state == lobDone || l.state == lobFailed {
		return false
	}
	if l.last {
		l.finish()
		return false
	}

	null, err := l.src.IsNull()
	if err != nil {
		l.fail(err)
		return false
	}
	if null {
		l.finish()
		return false
	}

	l.state = lobFetching
	emit, advance, last, end, err := fetchOnce(l.src, l.textual, l.offset, l.opts.ChunkSize)
	if err != nil {
		l.fail(err)
		return false
	}
	if end {
		l.finish()
		return false
	}
	l.offset += advance
	l.chunk = emit
	l.last = last
	l.state = lobDraining
	return true
}

// Bytes returns the current chunk, truncated per the terminator rules.
// Valid until the next call to Next.
func (l *LOB) Bytes() []byte {
	return l.chunk
}

// Text returns the current chunk decoded as UTF-8 text.
func (l *LOB) Text() string {
	return string(l.chunk)
}

// Value returns the current chunk in its delivery form: a decoded string
// when text decoding was requested on a character source, raw bytes
// otherwise.
func (l *LOB) Value() any {
	if l.decode {
		return l.Text()
	}
	return l.Bytes()
}

// Err returns the terminal error, if the stream ended on one.
func (l *LOB) Err() error {
	return l.err
}

// Close stops future pulls. An in-flight eager fetch completes and its
// result is discarded.
func (l *LOB) Close() error {
	if l.stop != nil {
		l.stopOnce.Do(func() { close(l.stop) })
	}
	if l.state != lobFailed {
		l.state = lobDone
	}
	l.chunk = nil
	return nil
}

func (l *LOB) finish() {
	l.state = lobDone
	l.chunk = nil
}

func (l *LOB) fail(err error) {
	l.state = lobFailed
	l.err = err
	l.chunk = nil
}

func (l *LOB) nextEager() bool {
	if l.state == lobDone || l.state == lobFailed {
		return false
	}
	c, ok := <-l.eager
	if !ok {
		l.finish()
		return false
	}
	if c.err != nil {
		l.fail(c.err)
		return false
	}
	l.chunk = c.data
	l.state = lobDraining
	return true
}

// prefetchLoop drives fetches without waiting for the consumer. Chunks queue
// in the eager channel; a close of the stop channel ends production.
func (l *LOB) prefetchLoop() {
	defer close(l.eager)

	null, err := l.src.IsNull()
	if err != nil {
		l.deliver(lobChunk{err: err})
		return
	}
	if null {
		return
	}

	var offset int64
	for {
		emit, advance, last, end, err := fetchOnce(l.src, l.textual, offset, l.opts.ChunkSize)
		if err != nil {
			l.deliver(lobChunk{err: err})
			return
		}
		if end {
			return
		}
		offset += advance
		if !l.deliver(lobChunk{data: emit}) {
			return
		}
		if last {
			return
		}
	}
}

func (l *LOB) deliver(c lobChunk) bool {
	select {
	case l.eager <- c:
		return true
	case <-l.stop:
		return false
	}
}

// fetchOnce performs one fetch at offset and applies the end-of-data and
// truncation rules. It returns the bytes to emit, the amount the offset
// advances, whether the emitted chunk is the final one, and whether the
// stream ended with nothing to emit.
//
// Character sources may carry trailing padding behind an embedded NUL
// terminator, and a raw byte count would drift from the true character
// position on multi-byte UTF-8 content, so their offsets advance by decoded
// rune count instead of byte count.
func fetchOnce(src ChunkSource, textual bool, offset, size int64) (emit []byte, advance int64, last, end bool, err error) {
	buf, err := src.ReadChunk(offset, size)
	if errors.Is(err, driver.ErrNoData) {
		return nil, 0, false, true, nil
	}
	if err != nil {
		return nil, 0, false, false, err
	}
	if len(buf) == 0 {
		return nil, 0, false, true, nil
	}

	short := int64(len(buf)) < size
	if !textual {
		return buf, int64(len(buf)), short, false, nil
	}

	if i := bytes.IndexByte(buf, 0); i >= 0 {
		if i == 0 {
			return nil, 0, false, true, nil
		}
		buf = buf[:i]
	}
	return buf, int64(utf8.RuneCount(buf)), short, false, nil
}
