package batch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"dbstream/internal/driver"
)

type upload struct {
	pos        int
	data       []byte
	terminator bool
}

// fakeStmt records executions and chunk uploads.
type fakeStmt struct {
	execs   [][]any
	uploads []upload

	affected  int64
	failOn    int // 0-based exec call that errors, -1 for never
	uploadErr error
	closed    bool
}

func newFakeStmt(affected int64) *fakeStmt {
	return &fakeStmt{affected: affected, failOn: -1}
}

func (s *fakeStmt) Exec(ctx context.Context, params []any) (int64, error) {
	if s.failOn >= 0 && len(s.execs) == s.failOn {
		return 0, errors.New("deadlock found")
	}
	s.execs = append(s.execs, append([]any(nil), params...))
	return s.affected, nil
}

func (s *fakeStmt) UploadChunk(ctx context.Context, i int, chunk []byte) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	s.uploads = append(s.uploads, upload{
		pos:        i,
		data:       append([]byte(nil), chunk...),
		terminator: len(chunk) == 0,
	})
	return nil
}

func (s *fakeStmt) Query(ctx context.Context, params []any) (driver.Cursor, error) {
	return nil, errors.New("not a query")
}
func (s *fakeStmt) Params() []driver.ParamInfo                       { return nil }
func (s *fakeStmt) ReadParam(i int) (any, error)                     { return nil, nil }
func (s *fakeStmt) IsParamNull(i int) (bool, error)                  { return false, nil }
func (s *fakeStmt) ReadParamChunk(i int, o, l int64) ([]byte, error) { return nil, driver.ErrNoData }
func (s *fakeStmt) Close() error {
	s.closed = true
	return nil
}

// chunkList is a canned ChunkStream.
type chunkList struct {
	chunks [][]byte
	idx    int
	err    error
	errAt  int // index after which Err fires, -1 for never
}

func (c *chunkList) Next() bool {
	if c.errAt >= 0 && c.idx > c.errAt {
		return false
	}
	if c.idx >= len(c.chunks) {
		return false
	}
	c.idx++
	return true
}

func (c *chunkList) Bytes() []byte {
	return c.chunks[c.idx-1]
}

func (c *chunkList) Err() error {
	if c.errAt >= 0 && c.idx > c.errAt {
		return c.err
	}
	return nil
}

func TestExecuteRowList(t *testing.T) {
	st := newFakeStmt(1)
	b := New(st)

	total, err := b.Execute(context.Background(), []any{
		[]any{int64(1), "a"},
		[]any{int64(2), "b"},
		[]any{int64(3), "c"},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(st.execs) != 3 {
		t.Fatalf("got %d executions, want 3", len(st.execs))
	}
	if st.execs[1][0] != int64(2) || st.execs[1][1] != "b" {
		t.Errorf("row 1 bound as %v", st.execs[1])
	}
}

func TestExecuteScalarRow(t *testing.T) {
	st := newFakeStmt(1)
	b := New(st)

	total, err := b.Execute(context.Background(), []any{int64(9), "solo"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if total != 1 || len(st.execs) != 1 {
		t.Fatalf("total = %d, execs = %d, want one row", total, len(st.execs))
	}
}

func TestExecuteEmpty(t *testing.T) {
	st := newFakeStmt(1)
	total, err := New(st).Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if total != 0 || len(st.execs) != 0 {
		t.Errorf("empty batch: total = %d, execs = %d", total, len(st.execs))
	}
}

func TestExecuteMixedRejected(t *testing.T) {
	st := newFakeStmt(1)
	_, err := New(st).Execute(context.Background(), []any{
		[]any{int64(1)},
		"scalar",
	})
	if !errors.Is(err, ErrMixedParameters) {
		t.Fatalf("got %v, want ErrMixedParameters", err)
	}
	// Rejection happens before anything touches the database.
	if len(st.execs) != 0 {
		t.Errorf("got %d executions, want none", len(st.execs))
	}
}

func TestExecuteHaltsOnRowFailure(t *testing.T) {
	st := newFakeStmt(1)
	st.failOn = 1
	total, err := New(st).Execute(context.Background(), []any{
		[]any{int64(1)},
		[]any{int64(2)},
		[]any{int64(3)},
	})
	if err == nil || !strings.Contains(err.Error(), "batch row 1") {
		t.Fatalf("got %v, want error naming row 1", err)
	}
	if total != 0 {
		t.Errorf("no partial count is reported with an error, got %d", total)
	}
	if len(st.execs) != 1 {
		t.Errorf("got %d successful executions, want 1", len(st.execs))
	}
}

func TestExecuteStreamedParameter(t *testing.T) {
	st := newFakeStmt(0)
	src := &chunkList{chunks: [][]byte{[]byte("foo"), []byte("bar")}, errAt: -1}

	total, err := New(st).Execute(context.Background(), []any{
		[]any{int64(1), src},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	// A streamed row counts as exactly one affected row.
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
	if len(st.execs) != 1 {
		t.Fatalf("got %d executions, want 1", len(st.execs))
	}
	if _, ok := st.execs[0][1].(driver.StreamValue); !ok {
		t.Errorf("stream position bound as %T, want placeholder", st.execs[0][1])
	}
	if len(st.uploads) != 3 {
		t.Fatalf("got %d uploads, want 2 chunks and a terminator", len(st.uploads))
	}
	if string(st.uploads[0].data) != "foo" || string(st.uploads[1].data) != "bar" {
		t.Errorf("uploaded %q, %q", st.uploads[0].data, st.uploads[1].data)
	}
	if !st.uploads[2].terminator || st.uploads[2].pos != 1 {
		t.Errorf("final upload %+v, want terminator at position 1", st.uploads[2])
	}
}

func TestExecuteReaderParameter(t *testing.T) {
	st := newFakeStmt(0)
	total, err := New(st).Execute(context.Background(), []any{
		[]any{strings.NewReader("hello"), int64(2)},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
	if len(st.uploads) != 2 || string(st.uploads[0].data) != "hello" || !st.uploads[1].terminator {
		t.Errorf("uploads = %+v", st.uploads)
	}
}

func TestExecuteStreamErrorHalts(t *testing.T) {
	st := newFakeStmt(0)
	src := &chunkList{
		chunks: [][]byte{[]byte("foo"), []byte("never")},
		err:    errors.New("stream torn"),
		errAt:  1,
	}

	total, err := New(st).Execute(context.Background(), []any{
		[]any{src},
	})
	if err == nil || !strings.Contains(err.Error(), "stream torn") {
		t.Fatalf("got %v, want stream error", err)
	}
	if total != 0 {
		t.Errorf("total = %d, want 0", total)
	}
	// No terminator follows a failed stream.
	for _, u := range st.uploads {
		if u.terminator {
			t.Error("terminator uploaded after stream failure")
		}
	}
}
