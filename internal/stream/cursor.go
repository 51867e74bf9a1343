// Package stream adapts pull-based cursor and statement primitives into
// lazy, finite, non-restartable sequences: whole records, positional value
// rows, and chunked large-object reads.
package stream

import (
	"errors"

	"dbstream/internal/driver"
)

// RecordStream iterates a cursor one record at a time, each record a
// name -> value mapping. The cursor is borrowed: closing the stream stops
// future pulls but leaves the cursor open for its owner.
type RecordStream struct {
	c      driver.Cursor
	record map[string]any
	err    error
	done   bool
}

// Records wraps an open cursor in a record-form stream.
func Records(c driver.Cursor) (*RecordStream, error) {
	if c == nil {
		return nil, errors.New("stream: nil cursor")
	}
	return &RecordStream{c: c}, nil
}

// Next advances to the next record. It returns false at end of data or on
// the first advance failure; no further pulls are attempted after either.
func (s *RecordStream) Next() bool {
	if s.done {
		return false
	}
	ok, err := s.c.Advance()
	if err != nil {
		s.err = err
		s.done = true
		s.record = nil
		return false
	}
	if !ok {
		s.done = true
		s.record = nil
		return false
	}
	s.record = s.c.ReadRecord()
	return true
}

// Record returns the current record. Valid until the next call to Next.
func (s *RecordStream) Record() map[string]any {
	return s.record
}

// Err returns the terminal error, if the stream ended on one.
func (s *RecordStream) Err() error {
	return s.err
}

// Close stops future pulls. It never closes the underlying cursor.
func (s *RecordStream) Close() error {
	s.done = true
	s.record = nil
	return nil
}

// ValueStream iterates a cursor one positional row at a time. The column
// count is snapshotted once at construction and reused for every row.
type ValueStream struct {
	c      driver.Cursor
	cols   []driver.ColumnInfo
	values []any
	err    error
	done   bool
}

// Values wraps an open cursor in a positional-form stream.
func Values(c driver.Cursor) (*ValueStream, error) {
	if c == nil {
		return nil, errors.New("stream: nil cursor")
	}
	return &ValueStream{c: c, cols: c.Columns()}, nil
}

func (s *ValueStream) Next() bool {
	if s.done {
		return false
	}
	ok, err := s.c.Advance()
	if err != nil {
		s.err = err
		s.done = true
		s.values = nil
		return false
	}
	if !ok {
		s.done = true
		s.values = nil
		return false
	}
	row := make([]any, len(s.cols))
	for i := range row {
		row[i] = s.c.ReadField(i)
	}
	s.values = row
	return true
}

// Values returns the current row in column order. Valid until the next Next.
func (s *ValueStream) Values() []any {
	return s.values
}

// Columns returns the column metadata snapshotted at construction.
func (s *ValueStream) Columns() []driver.ColumnInfo {
	return s.cols
}

func (s *ValueStream) Err() error {
	return s.err
}

// Close stops future pulls. It never closes the underlying cursor.
func (s *ValueStream) Close() error {
	s.done = true
	s.values = nil
	return nil
}
