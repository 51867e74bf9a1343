package stream

import (
	"errors"
	"fmt"

	"dbstream/internal/driver"
)

// ErrNotLOB is returned when a chunked stream is requested over a column or
// parameter whose declared type is not a large-object kind.
var ErrNotLOB = errors.New("stream: target is not a LOB")

// ColumnLOB opens a chunked stream over the LOB-typed column col of an open
// cursor. Construction fails synchronously on a nil cursor, an out-of-range
// index, or a non-LOB column type.
func ColumnLOB(c driver.Cursor, col int, opts LOBOptions) (*LOB, error) {
	if c == nil {
		return nil, errors.New("stream: nil cursor")
	}
	cols := c.Columns()
	if col < 0 || col >= len(cols) {
		return nil, fmt.Errorf("stream: column index %d out of range [0,%d)", col, len(cols))
	}
	if !cols[col].Type.IsLOB() {
		return nil, fmt.Errorf("%w: column %q has type %s", ErrNotLOB, cols[col].Name, cols[col].Type)
	}
	src := columnSource{c: c, col: col}
	return newLOB(src, cols[col].Type.IsCharacter(), opts), nil
}

// ParamLOB opens a chunked stream over the LOB-typed output parameter idx of
// an executed statement. Validation mirrors ColumnLOB.
func ParamLOB(s driver.PreparedStatement, idx int, opts LOBOptions) (*LOB, error) {
	if s == nil {
		return nil, errors.New("stream: nil statement")
	}
	params := s.Params()
	if idx < 0 || idx >= len(params) {
		return nil, fmt.Errorf("stream: parameter index %d out of range [0,%d)", idx, len(params))
	}
	if !params[idx].Type.IsLOB() {
		return nil, fmt.Errorf("%w: parameter %q has type %s", ErrNotLOB, params[idx].Name, params[idx].Type)
	}
	src := paramSource{s: s, idx: idx}
	return newLOB(src, params[idx].Type.IsCharacter(), opts), nil
}

// columnSource reads chunks from one cursor column.
type columnSource struct {
	c   driver.Cursor
	col int
}

func (s columnSource) IsNull() (bool, error) {
	return s.c.IsFieldNull(s.col), nil
}

func (s columnSource) ReadChunk(offset, length int64) ([]byte, error) {
	return s.c.ReadChunk(s.col, offset, length)
}

// paramSource reads chunks from one statement output parameter.
type paramSource struct {
	s   driver.PreparedStatement
	idx int
}

func (s paramSource) IsNull() (bool, error) {
	return s.s.IsParamNull(s.idx)
}

func (s paramSource) ReadChunk(offset, length int64) ([]byte, error) {
	return s.s.ReadParamChunk(s.idx, offset, length)
}
