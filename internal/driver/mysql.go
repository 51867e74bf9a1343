package driver

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLDriver adapts a MySQL connection to the Cursor/PreparedStatement
// contracts. Large-object chunk reads are served from the materialized row,
// and streamed parameter uploads are buffered until every stream position has
// seen its terminator, since the wire protocol binds all parameters up front.
type MySQLDriver struct {
	dsn string
	db  *sql.DB
}

func NewMySQLDriver(dsn string) *MySQLDriver {
	return &MySQLDriver{dsn: dsn}
}

func (d *MySQLDriver) Name() string {
	return "mysql"
}

func (d *MySQLDriver) Ping(ctx context.Context) error {
	db, err := d.ensure()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (d *MySQLDriver) ensure() (*sql.DB, error) {
	if d.db == nil {
		// Lazy connect
		var err error
		d.db, err = sql.Open("mysql", d.dsn)
		if err != nil {
			return nil, err
		}
	}
	return d.db, nil
}

// Prepare parses a statement on a pinned connection. The connection is
// released when the statement is closed.
func (d *MySQLDriver) Prepare(ctx context.Context, query string) (PreparedStatement, error) {
	db, err := d.ensure()
	if err != nil {
		return nil, err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	stmt, err := conn.PrepareContext(ctx, query)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("prepare failed: %w", err)
	}
	return &mysqlStmt{
		conn:   conn,
		stmt:   stmt,
		query:  query,
		params: synthesizeParams(query),
	}, nil
}

// PrepareCall prepares a procedure call such as "CALL p(?, ?)". MySQL exposes
// OUT and INOUT parameters only through session variables, so the caller must
// declare parameter metadata; the statement rewrites OUT positions to
// @-variables and reads them back after execution.
func (d *MySQLDriver) PrepareCall(ctx context.Context, query string, params []ParamInfo) (PreparedStatement, error) {
	db, err := d.ensure()
	if err != nil {
		return nil, err
	}
	if n := countPlaceholders(query); n != len(params) {
		return nil, fmt.Errorf("call %q declares %d placeholders, got %d parameter descriptions", query, n, len(params))
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &mysqlStmt{
		conn:   conn,
		query:  query,
		params: params,
		call:   true,
	}, nil
}

func (d *MySQLDriver) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

type mysqlStmt struct {
	conn   *sql.Conn
	stmt   *sql.Stmt // nil for call statements
	query  string
	params []ParamInfo
	call   bool

	// deferred execution state while streamed parameters upload
	pendingArgs []any
	streamBufs  map[int]*bytes.Buffer
	streamOpen  map[int]bool

	// output parameter values captured after a call executes
	outVals []any
	outSet  bool
}

func (s *mysqlStmt) Params() []ParamInfo {
	return s.params
}

func (s *mysqlStmt) Exec(ctx context.Context, params []any) (int64, error) {
	if s.call {
		cur, err := s.Query(ctx, params)
		if err != nil {
			return 0, err
		}
		return 0, cur.Close()
	}

	streamPos := streamPositions(params)
	if len(streamPos) > 0 {
		// Defer the real execution until every stream position has been
		// terminated via UploadChunk.
		s.pendingArgs = append([]any(nil), params...)
		s.streamBufs = make(map[int]*bytes.Buffer, len(streamPos))
		s.streamOpen = make(map[int]bool, len(streamPos))
		for _, i := range streamPos {
			s.streamBufs[i] = &bytes.Buffer{}
			s.streamOpen[i] = true
		}
		return 0, nil
	}

	res, err := s.stmt.ExecContext(ctx, params...)
	if err != nil {
		return 0, fmt.Errorf("exec failed: %w", err)
	}
	return res.RowsAffected()
}

func (s *mysqlStmt) UploadChunk(ctx context.Context, i int, chunk []byte) error {
	if s.streamBufs == nil {
		return fmt.Errorf("no streamed execution in progress")
	}
	buf, ok := s.streamBufs[i]
	if !ok {
		return fmt.Errorf("parameter %d is not a streamed position", i)
	}
	if len(chunk) > 0 {
		if !s.streamOpen[i] {
			return fmt.Errorf("parameter %d already terminated", i)
		}
		_, err := buf.Write(chunk)
		return err
	}

	// An empty chunk terminates the position; once all positions are closed
	// the deferred execution runs with the accumulated values bound.
	s.streamOpen[i] = false
	for _, open := range s.streamOpen {
		if open {
			return nil
		}
	}
	return s.flushStreams(ctx)
}

func (s *mysqlStmt) flushStreams(ctx context.Context) error {
	args := append([]any(nil), s.pendingArgs...)
	for i, buf := range s.streamBufs {
		if i < len(s.params) && s.params[i].Type.IsCharacter() {
			args[i] = buf.String()
		} else {
			args[i] = buf.Bytes()
		}
	}
	s.pendingArgs, s.streamBufs, s.streamOpen = nil, nil, nil

	_, err := s.stmt.ExecContext(ctx, args...)
	if err != nil {
		return fmt.Errorf("streamed exec failed: %w", err)
	}
	return nil
}

func (s *mysqlStmt) Query(ctx context.Context, params []any) (Cursor, error) {
	if !s.call {
		rows, err := s.stmt.QueryContext(ctx, params...)
		if err != nil {
			return nil, fmt.Errorf("query failed: %w", err)
		}
		return newRowsCursor(rows)
	}
	return s.queryCall(ctx, params)
}

// queryCall executes a procedure call. Result sets are materialized so the
// pinned connection is free for the SELECT @-variable reads that retrieve
// output parameters.
func (s *mysqlStmt) queryCall(ctx context.Context, params []any) (Cursor, error) {
	rewritten, inArgs, err := s.rewriteCall(ctx, params)
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.QueryContext(ctx, rewritten, inArgs...)
	if err != nil {
		return nil, fmt.Errorf("call failed: %w", err)
	}
	cur, err := materialize(rows)
	if err != nil {
		return nil, err
	}

	s.outVals = make([]any, len(s.params))
	for i, p := range s.params {
		if p.Direction == DirIn {
			continue
		}
		var v any
		row := s.conn.QueryRowContext(ctx, fmt.Sprintf("SELECT @_sp_%d", i))
		if err := row.Scan(&v); err != nil {
			cur.Close()
			return nil, fmt.Errorf("reading output parameter %d: %w", i, err)
		}
		s.outVals[i] = v
	}
	s.outSet = true
	return cur, nil
}

// rewriteCall substitutes @-session variables for OUT and INOUT placeholders
// and seeds INOUT variables with their input values.
func (s *mysqlStmt) rewriteCall(ctx context.Context, params []any) (string, []any, error) {
	var sb strings.Builder
	var inArgs []any
	idx := 0
	inString := byte(0)
	escaped := false
	for i := 0; i < len(s.query); i++ {
		c := s.query[i]
		if inString != 0 {
			sb.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' && inString != '`' {
				escaped = true
				continue
			}
			if c == inString {
				inString = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			inString = c
			sb.WriteByte(c)
		case '?':
			switch s.params[idx].Direction {
			case DirOut:
				fmt.Fprintf(&sb, "@_sp_%d", idx)
			case DirInOut:
				var seed any
				if idx < len(params) {
					seed = params[idx]
				}
				if _, err := s.conn.ExecContext(ctx, fmt.Sprintf("SET @_sp_%d = ?", idx), seed); err != nil {
					return "", nil, fmt.Errorf("seeding INOUT parameter %d: %w", idx, err)
				}
				fmt.Fprintf(&sb, "@_sp_%d", idx)
			default:
				sb.WriteByte('?')
				if idx < len(params) {
					inArgs = append(inArgs, params[idx])
				}
			}
			idx++
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), inArgs, nil
}

func (s *mysqlStmt) ReadParam(i int) (any, error) {
	if !s.outSet {
		return nil, fmt.Errorf("no output parameters retrieved; execute the call first")
	}
	if i < 0 || i >= len(s.outVals) {
		return nil, fmt.Errorf("parameter index %d out of range", i)
	}
	return s.outVals[i], nil
}

func (s *mysqlStmt) IsParamNull(i int) (bool, error) {
	v, err := s.ReadParam(i)
	if err != nil {
		return false, err
	}
	return v == nil, nil
}

func (s *mysqlStmt) ReadParamChunk(i int, offset, length int64) ([]byte, error) {
	v, err := s.ReadParam(i)
	if err != nil {
		return nil, err
	}
	character := i < len(s.params) && s.params[i].Type.IsCharacter()
	return chunkValue(v, offset, length, character)
}

func (s *mysqlStmt) Close() error {
	var first error
	if s.stmt != nil {
		first = s.stmt.Close()
	}
	if err := s.conn.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// streamPositions returns the indexes bound to a StreamValue placeholder.
func streamPositions(params []any) []int {
	var pos []int
	for i, p := range params {
		if _, ok := p.(StreamValue); ok {
			pos = append(pos, i)
		}
	}
	return pos
}

// chunkValue serves an offset-addressed read from a materialized value.
// Character LOBs are addressed in runes so the offset discipline matches the
// decoded-character accounting of the text stream; binary LOBs in bytes.
func chunkValue(v any, offset, length int64, character bool) ([]byte, error) {
	if v == nil {
		return nil, ErrNoData
	}
	var b []byte
	switch val := v.(type) {
	case []byte:
		b = val
	case string:
		b = []byte(val)
	default:
		return nil, fmt.Errorf("value of type %T is not chunk-addressable", v)
	}
	if character {
		runes := []rune(string(b))
		if offset >= int64(len(runes)) {
			return nil, ErrNoData
		}
		end := offset + length
		if end > int64(len(runes)) {
			end = int64(len(runes))
		}
		return []byte(string(runes[offset:end])), nil
	}
	if offset >= int64(len(b)) {
		return nil, ErrNoData
	}
	end := offset + length
	if end > int64(len(b)) {
		end = int64(len(b))
	}
	out := make([]byte, end-offset)
	copy(out, b[offset:end])
	return out, nil
}

// synthesizeParams builds placeholder metadata for a plain statement. MySQL
// reports no parameter metadata through database/sql, so positions default to
// untyped inputs.
func synthesizeParams(query string) []ParamInfo {
	n := countPlaceholders(query)
	params := make([]ParamInfo, n)
	for i := range params {
		params[i] = ParamInfo{Name: fmt.Sprintf("?%d", i+1), Type: TypeUnknown, Direction: DirIn}
	}
	return params
}

func countPlaceholders(query string) int {
	n := 0
	inString := byte(0)
	escaped := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		if inString != 0 {
			if escaped {
				escaped = false
				continue
			}
			// MySQL string literals escape with backslash by default;
			// backtick-quoted identifiers do not.
			if c == '\\' && inString != '`' {
				escaped = true
				continue
			}
			if c == inString {
				inString = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			inString = c
		case '?':
			n++
		}
	}
	return n
}
