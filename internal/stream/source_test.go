package stream

import (
	"context"
	"errors"
	"testing"

	"dbstream/internal/driver"
)

// fakeCursor serves fixed rows for adapter tests. LOB chunk reads slice the
// current value byte-wise for binary columns and rune-wise for character
// columns.
type fakeCursor struct {
	cols    []driver.ColumnInfo
	rows    [][]any
	pos     int
	failAt  int // 1-based Advance call that errors, 0 for never
	calls   int
	current []any
	closes  int
}

func (c *fakeCursor) Advance() (bool, error) {
	c.calls++
	if c.failAt > 0 && c.calls == c.failAt {
		return false, errors.New("advance failed")
	}
	if c.pos >= len(c.rows) {
		c.current = nil
		return false, nil
	}
	c.current = c.rows[c.pos]
	c.pos++
	return true, nil
}

func (c *fakeCursor) ReadRecord() map[string]any {
	rec := make(map[string]any, len(c.cols))
	for i, col := range c.cols {
		rec[col.Name] = c.current[i]
	}
	return rec
}

func (c *fakeCursor) ReadField(i int) any          { return c.current[i] }
func (c *fakeCursor) Columns() []driver.ColumnInfo { return c.cols }
func (c *fakeCursor) IsFieldNull(i int) bool       { return c.current[i] == nil }

func (c *fakeCursor) ReadChunk(i int, offset, length int64) ([]byte, error) {
	v := c.current[i]
	if v == nil {
		return nil, driver.ErrNoData
	}
	if c.cols[i].Type.IsCharacter() {
		runes := []rune(v.(string))
		if offset >= int64(len(runes)) {
			return nil, driver.ErrNoData
		}
		end := offset + length
		if end > int64(len(runes)) {
			end = int64(len(runes))
		}
		return []byte(string(runes[offset:end])), nil
	}
	b := v.([]byte)
	if offset >= int64(len(b)) {
		return nil, driver.ErrNoData
	}
	end := offset + length
	if end > int64(len(b)) {
		end = int64(len(b))
	}
	return b[offset:end], nil
}

func (c *fakeCursor) NextResultSet() (bool, error) { return false, nil }

func (c *fakeCursor) Close() error {
	c.closes++
	return nil
}

// fakeStmt exposes output parameters for parameter-stream tests.
type fakeStmt struct {
	params  []driver.ParamInfo
	outVals []any
}

func (s *fakeStmt) Exec(ctx context.Context, params []any) (int64, error) { return 0, nil }
func (s *fakeStmt) Query(ctx context.Context, params []any) (driver.Cursor, error) {
	return nil, errors.New("not a query")
}
func (s *fakeStmt) Params() []driver.ParamInfo { return s.params }
func (s *fakeStmt) ReadParam(i int) (any, error) {
	return s.outVals[i], nil
}
func (s *fakeStmt) IsParamNull(i int) (bool, error) {
	return s.outVals[i] == nil, nil
}
func (s *fakeStmt) ReadParamChunk(i int, offset, length int64) ([]byte, error) {
	v := s.outVals[i]
	if v == nil {
		return nil, driver.ErrNoData
	}
	b := v.([]byte)
	if offset >= int64(len(b)) {
		return nil, driver.ErrNoData
	}
	end := offset + length
	if end > int64(len(b)) {
		end = int64(len(b))
	}
	return b[offset:end], nil
}
func (s *fakeStmt) UploadChunk(ctx context.Context, i int, chunk []byte) error { return nil }
func (s *fakeStmt) Close() error                                               { return nil }

func TestColumnLOBValidation(t *testing.T) {
	cur := &fakeCursor{
		cols: []driver.ColumnInfo{
			{Name: "id", Type: driver.TypeInt},
			{Name: "body", Type: driver.TypeBlob},
		},
		rows: [][]any{{int64(1), []byte("payload")}},
	}

	if _, err := ColumnLOB(nil, 0, LOBOptions{}); err == nil {
		t.Error("nil cursor accepted")
	}
	if _, err := ColumnLOB(cur, 5, LOBOptions{}); err == nil {
		t.Error("out-of-range column accepted")
	}
	if _, err := ColumnLOB(cur, 0, LOBOptions{}); !errors.Is(err, ErrNotLOB) {
		t.Errorf("non-LOB column: got %v, want ErrNotLOB", err)
	}
}

func TestColumnLOBReadsColumn(t *testing.T) {
	cur := &fakeCursor{
		cols: []driver.ColumnInfo{
			{Name: "id", Type: driver.TypeInt},
			{Name: "body", Type: driver.TypeBlob},
		},
		rows: [][]any{{int64(1), []byte("payload")}},
	}
	if ok, _ := cur.Advance(); !ok {
		t.Fatal("no row")
	}

	lob, err := ColumnLOB(cur, 1, LOBOptions{ChunkSize: 3})
	if err != nil {
		t.Fatalf("ColumnLOB failed: %v", err)
	}
	defer lob.Close()

	var got []byte
	for lob.Next() {
		got = append(got, lob.Bytes()...)
	}
	if err := lob.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("reassembled %q, want %q", got, "payload")
	}
	if cur.closes != 0 {
		t.Error("borrowed cursor was closed")
	}
}

func TestParamLOBValidation(t *testing.T) {
	st := &fakeStmt{
		params: []driver.ParamInfo{
			{Name: "n", Type: driver.TypeInt, Direction: driver.DirOut},
			{Name: "doc", Type: driver.TypeBlob, Direction: driver.DirOut},
		},
		outVals: []any{int64(7), []byte("abcdef")},
	}

	if _, err := ParamLOB(nil, 0, LOBOptions{}); err == nil {
		t.Error("nil statement accepted")
	}
	if _, err := ParamLOB(st, -1, LOBOptions{}); err == nil {
		t.Error("negative index accepted")
	}
	if _, err := ParamLOB(st, 0, LOBOptions{}); !errors.Is(err, ErrNotLOB) {
		t.Errorf("non-LOB parameter: got %v, want ErrNotLOB", err)
	}
}

func TestParamLOBReadsParameter(t *testing.T) {
	st := &fakeStmt{
		params: []driver.ParamInfo{
			{Name: "doc", Type: driver.TypeBlob, Direction: driver.DirOut},
		},
		outVals: []any{[]byte("abcdef")},
	}

	lob, err := ParamLOB(st, 0, LOBOptions{ChunkSize: 4})
	if err != nil {
		t.Fatalf("ParamLOB failed: %v", err)
	}
	defer lob.Close()

	var got []byte
	for lob.Next() {
		got = append(got, lob.Bytes()...)
	}
	if string(got) != "abcdef" {
		t.Errorf("reassembled %q, want %q", got, "abcdef")
	}
}
