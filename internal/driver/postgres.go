package driver

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
)

// PostgresDriver adapts a PostgreSQL connection to the Cursor and
// PreparedStatement contracts. Statements are written with ? placeholders and
// translated to the $N form lib/pq expects. Procedure output parameters come
// back in the single row a CALL returns, so no session-variable rewrite is
// needed.
type PostgresDriver struct {
	dsn string
	db  *sql.DB
}

func NewPostgresDriver(dsn string) *PostgresDriver {
	return &PostgresDriver{dsn: dsn}
}

func (d *PostgresDriver) Name() string {
	return "postgres"
}

func (d *PostgresDriver) Ping(ctx context.Context) error {
	db, err := d.ensure()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (d *PostgresDriver) ensure() (*sql.DB, error) {
	if d.db == nil {
		// Lazy connect
		var err error
		d.db, err = sql.Open("postgres", d.dsn)
		if err != nil {
			return nil, err
		}
	}
	return d.db, nil
}

func (d *PostgresDriver) Prepare(ctx context.Context, query string) (PreparedStatement, error) {
	db, err := d.ensure()
	if err != nil {
		return nil, err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	stmt, err := conn.PrepareContext(ctx, ordinalize(query))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("prepare failed: %w", err)
	}
	return &pqStmt{
		conn:   conn,
		stmt:   stmt,
		query:  query,
		params: synthesizeParams(query),
	}, nil
}

// PrepareCall prepares a procedure call such as "CALL p(?, ?)". OUT positions
// are bound as NULL and their values read back from the row the CALL returns.
func (d *PostgresDriver) PrepareCall(ctx context.Context, query string, params []ParamInfo) (PreparedStatement, error) {
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
	return &pqStmt{
		conn:   conn,
		query:  query,
		params: params,
		call:   true,
	}, nil
}

func (d *PostgresDriver) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

type pqStmt struct {
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

func (s *pqStmt) Params() []ParamInfo {
	return s.params
}

func (s *pqStmt) Exec(ctx context.Context, params []any) (int64, error) {
	if s.call {
		cur, err := s.Query(ctx, params)
		if err != nil {
			return 0, err
		}
		return 0, cur.Close()
	}

	streamPos := streamPositions(params)
	if len(streamPos) > 0 {
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

func (s *pqStmt) UploadChunk(ctx context.Context, i int, chunk []byte) error {
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

	s.streamOpen[i] = false
	for _, open := range s.streamOpen {
		if open {
			return nil
		}
	}
	return s.flushStreams(ctx)
}

func (s *pqStmt) flushStreams(ctx context.Context) error {
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

func (s *pqStmt) Query(ctx context.Context, params []any) (Cursor, error) {
	if !s.call {
		rows, err := s.stmt.QueryContext(ctx, params...)
		if err != nil {
			return nil, fmt.Errorf("query failed: %w", err)
		}
		return newRowsCursor(rows)
	}
	return s.queryCall(ctx, params)
}

// queryCall executes a procedure call. A CALL with OUT or INOUT parameters
// returns exactly one row holding their values in declaration order; that row
// is consumed here and the remaining result sets, if any, feed the cursor.
func (s *pqStmt) queryCall(ctx context.Context, params []any) (Cursor, error) {
	args := make([]any, len(s.params))
	for i, p := range s.params {
		if p.Direction == DirOut {
			args[i] = nil
			continue
		}
		if i < len(params) {
			args[i] = params[i]
		}
	}

	rows, err := s.conn.QueryContext(ctx, ordinalize(s.query), args...)
	if err != nil {
		return nil, fmt.Errorf("call failed: %w", err)
	}
	cur, err := materialize(rows)
	if err != nil {
		return nil, err
	}

	s.outVals = make([]any, len(s.params))
	if s.hasOutputs() {
		ok, err := cur.Advance()
		if err != nil {
			cur.Close()
			return nil, fmt.Errorf("reading output parameters: %w", err)
		}
		if !ok {
			cur.Close()
			return nil, fmt.Errorf("call returned no output parameter row")
		}
		col := 0
		for i, p := range s.params {
			if p.Direction == DirIn {
				continue
			}
			s.outVals[i] = cur.ReadField(col)
			col++
		}
		// The out-parameter row is not part of the procedure's data output.
		cur.dropFirstSet()
	}
	s.outSet = true
	return cur, nil
}

func (s *pqStmt) hasOutputs() bool {
	for _, p := range s.params {
		if p.Direction != DirIn {
			return true
		}
	}
	return false
}

func (s *pqStmt) ReadParam(i int) (any, error) {
	if !s.outSet {
		return nil, fmt.Errorf("no output parameters retrieved; execute the call first")
	}
	if i < 0 || i >= len(s.outVals) {
		return nil, fmt.Errorf("parameter index %d out of range", i)
	}
	return s.outVals[i], nil
}

func (s *pqStmt) IsParamNull(i int) (bool, error) {
	v, err := s.ReadParam(i)
	if err != nil {
		return false, err
	}
	return v == nil, nil
}

func (s *pqStmt) ReadParamChunk(i int, offset, length int64) ([]byte, error) {
	v, err := s.ReadParam(i)
	if err != nil {
		return nil, err
	}
	character := i < len(s.params) && s.params[i].Type.IsCharacter()
	return chunkValue(v, offset, length, character)
}

func (s *pqStmt) Close() error {
	var first error
	if s.stmt != nil {
		first = s.stmt.Close()
	}
	if err := s.conn.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// ordinalize translates ? placeholders to the $1..$n form, skipping quoted
// regions.
func ordinalize(query string) string {
	var sb strings.Builder
	n := 0
	inString := byte(0)
	escaped := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		if inString != 0 {
			sb.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			// Covers E'...' literals; standard literals double quotes
			// instead, which the close-then-reopen path handles.
			if c == '\\' {
				escaped = true
				continue
			}
			if c == inString {
				inString = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			inString = c
			sb.WriteByte(c)
		case '?':
			n++
			fmt.Fprintf(&sb, "$%d", n)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
