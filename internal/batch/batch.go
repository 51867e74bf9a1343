// Package batch drives one prepared statement across an ordered list of
// parameter rows. Rows execute strictly sequentially; a row never starts
// before the previous one, including any streamed-parameter upload it
// triggered, has fully completed.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"

	"dbstream/internal/driver"
	"dbstream/internal/stream"
)

// ErrMixedParameters is returned when one batch call mixes array-valued and
// scalar-valued parameters.
var ErrMixedParameters = errors.New("batch: mixed array and scalar parameters")

// ChunkStream is a pull source of byte chunks. A parameter value that
// implements it (or io.Reader) is uploaded incrementally instead of being
// bound in memory. *stream.LOB and *stream.ReaderStream both satisfy it.
type ChunkStream interface {
	Next() bool
	Bytes() []byte
	Err() error
}

// Statement executes a prepared statement against batches of parameter rows.
type Statement struct {
	stmt driver.PreparedStatement
}

func New(stmt driver.PreparedStatement) *Statement {
	return &Statement{stmt: stmt}
}

// Execute runs the statement once per parameter row and returns the summed
// affected-row count. values is either one scalar row or a list of rows
// (every element a []any); mixing the two forms is rejected before any
// execution. Processing halts at the first row that errors, and no partial
// count is reported alongside an error.
func (s *Statement) Execute(ctx context.Context, values []any) (int64, error) {
	rows, err := normalize(values)
	if err != nil {
		return 0, err
	}

	var total int64
	for rowIdx, row := range rows {
		streams, args := splitStreams(row)

		affected, err := s.stmt.Exec(ctx, args)
		if err != nil {
			return 0, fmt.Errorf("batch row %d: %w", rowIdx, err)
		}
		if len(streams) == 0 {
			total += affected
			continue
		}

		if err := s.uploadStreams(ctx, streams); err != nil {
			return 0, fmt.Errorf("batch row %d: %w", rowIdx, err)
		}
		// A streamed row is modeled as exactly one affected row.
		total++
	}
	return total, nil
}

func (s *Statement) Close() error {
	return s.stmt.Close()
}

type streamParam struct {
	pos int
	src ChunkStream
}

// splitStreams partitions a row into stream-typed positions and the bound
// argument list, with a placeholder at each stream position.
func splitStreams(row []any) ([]streamParam, []any) {
	var streams []streamParam
	args := make([]any, len(row))
	for i, v := range row {
		switch src := v.(type) {
		case ChunkStream:
			streams = append(streams, streamParam{pos: i, src: src})
			args[i] = driver.StreamValue{}
		case io.Reader:
			streams = append(streams, streamParam{pos: i, src: stream.FromReader(src, 0)})
			args[i] = driver.StreamValue{}
		default:
			args[i] = v
		}
	}
	return streams, args
}

// uploadStreams drains each stream position in order, one chunk in flight at
// a time: the next chunk is not pulled until the previous upload has been
// acknowledged. Each position ends with an empty terminator upload.
func (s *Statement) uploadStreams(ctx context.Context, streams []streamParam) error {
	for _, sp := range streams {
		for sp.src.Next() {
			chunk := sp.src.Bytes()
			if len(chunk) == 0 {
				continue
			}
			if err := s.stmt.UploadChunk(ctx, sp.pos, chunk); err != nil {
				return fmt.Errorf("uploading parameter %d: %w", sp.pos, err)
			}
		}
		if err := sp.src.Err(); err != nil {
			return fmt.Errorf("parameter %d stream: %w", sp.pos, err)
		}
		if err := s.stmt.UploadChunk(ctx, sp.pos, nil); err != nil {
			return fmt.Errorf("terminating parameter %d: %w", sp.pos, err)
		}
	}
	return nil
}

// normalize turns the caller-facing value list into explicit rows: all
// elements []any means one row each, none means a single scalar row, and a
// mixture is malformed.
func normalize(values []any) ([][]any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	arrays := 0
	for _, v := range values {
		if _, ok := v.([]any); ok {
			arrays++
		}
	}
	switch arrays {
	case len(values):
		rows := make([][]any, len(values))
		for i, v := range values {
			rows[i] = v.([]any)
		}
		return rows, nil
	case 0:
		return [][]any{values}, nil
	default:
		return nil, ErrMixedParameters
	}
}
