package exporter

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"dbstream/internal/driver"
	"dbstream/internal/proc"
	"dbstream/internal/stream"
)

// ExportResult contains stats about the export.
type ExportResult struct {
	RowsProcessed int64
	Duration      time.Duration
}

// Options tune how rows are pulled out of the database.
type Options struct {
	// LOBChunkSize is the fetch size for large-object columns. Zero picks
	// the stream default.
	LOBChunkSize int64
}

// StreamCursor feeds every row of an open cursor through the encoder using
// the positional stream adapter, so memory stays constant regardless of
// result size. Large-object columns are drained through a chunked stream
// instead of a single fetch. The cursor remains owned by the caller.
func StreamCursor(ctx context.Context, cur driver.Cursor, enc RowEncoder, opts Options) (*ExportResult, error) {
	start := time.Now()

	vs, err := stream.Values(cur)
	if err != nil {
		return nil, err
	}
	defer vs.Close()

	cols := vs.Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	if err := enc.WriteHeader(names); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	var rowCount int64
	for vs.Next() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		vals := vs.Values()
		if err := drainLOBColumns(cur, cols, vals, opts.LOBChunkSize); err != nil {
			return nil, err
		}
		if err := enc.WriteRow(vals); err != nil {
			return nil, fmt.Errorf("row write failed: %w", err)
		}
		rowCount++
	}
	if err := vs.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("encoder flush failed: %w", err)
	}
	if err := enc.Error(); err != nil {
		return nil, fmt.Errorf("encoder error: %w", err)
	}

	return &ExportResult{
		RowsProcessed: rowCount,
		Duration:      time.Since(start),
	}, nil
}

// drainLOBColumns replaces each non-null LOB value in the row with the
// concatenation of its chunked stream, fetched under backpressure.
func drainLOBColumns(cur driver.Cursor, cols []driver.ColumnInfo, vals []any, chunkSize int64) error {
	for i, c := range cols {
		if !c.Type.IsLOB() || cur.IsFieldNull(i) {
			continue
		}
		decode := c.Type.IsCharacter()
		lob, err := stream.ColumnLOB(cur, i, stream.LOBOptions{ChunkSize: chunkSize, DecodeText: decode})
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		for lob.Next() {
			switch v := lob.Value().(type) {
			case string:
				buf.WriteString(v)
			case []byte:
				buf.Write(v)
			}
		}
		if err := lob.Err(); err != nil {
			lob.Close()
			return fmt.Errorf("draining LOB column %q: %w", c.Name, err)
		}
		lob.Close()
		if decode {
			vals[i] = buf.String()
		} else {
			vals[i] = buf.Bytes()
		}
	}
	return nil
}

// StreamProcedure writes every collected result table of a procedure call
// through the encoder, one header per table in declaration order. Tables
// without column metadata are skipped; they carry no encodable values.
func StreamProcedure(ctx context.Context, res *proc.Result, enc RowEncoder) (*ExportResult, error) {
	start := time.Now()

	var rowCount int64
	for _, t := range res.Tables {
		if len(t.Columns) == 0 {
			continue
		}
		names := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			names[i] = c.Name
		}
		if err := enc.WriteHeader(names); err != nil {
			return nil, fmt.Errorf("failed to write table header: %w", err)
		}
		for _, row := range t.Rows {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if err := enc.WriteRow(row); err != nil {
				return nil, fmt.Errorf("row write failed: %w", err)
			}
			rowCount++
		}
	}

	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("encoder flush failed: %w", err)
	}
	if err := enc.Error(); err != nil {
		return nil, fmt.Errorf("encoder error: %w", err)
	}

	return &ExportResult{
		RowsProcessed: rowCount,
		Duration:      time.Since(start),
	}, nil
}
