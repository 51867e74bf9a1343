package driver

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrCursorClosed is returned when a closed cursor is advanced.
var ErrCursorClosed = errors.New("driver: cursor is closed")

// rowsCursor streams rows out of an open *sql.Rows one at a time. Raw []byte
// values are copied out of the driver's scan buffer, which is only valid
// until the next Advance.
type rowsCursor struct {
	rows    *sql.Rows
	cols    []ColumnInfo
	current []any
	closed  bool
}

func newRowsCursor(rows *sql.Rows) (*rowsCursor, error) {
	cols, err := describeColumns(rows)
	if err != nil {
		rows.Close()
		return nil, err
	}
	return &rowsCursor{rows: rows, cols: cols}, nil
}

func describeColumns(rows *sql.Rows) ([]ColumnInfo, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("reading column metadata: %w", err)
	}
	cols := make([]ColumnInfo, len(types))
	for i, t := range types {
		cols[i] = ColumnInfo{
			Name:     t.Name(),
			Type:     typeCodeFor(t.DatabaseTypeName()),
			WireType: t.DatabaseTypeName(),
		}
	}
	return cols, nil
}

func (c *rowsCursor) Advance() (bool, error) {
	if c.closed {
		return false, ErrCursorClosed
	}
	if !c.rows.Next() {
		c.current = nil
		if err := c.rows.Err(); err != nil {
			return false, err
		}
		return false, nil
	}
	row, err := scanRow(c.rows, len(c.cols))
	if err != nil {
		return false, err
	}
	c.current = row
	return true, nil
}

func scanRow(rows *sql.Rows, width int) ([]any, error) {
	values := make([]any, width)
	ptrs := make([]any, width)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("row scan failed: %w", err)
	}
	for i, v := range values {
		if b, ok := v.([]byte); ok {
			values[i] = append([]byte(nil), b...)
		}
	}
	return values, nil
}

func (c *rowsCursor) ReadRecord() map[string]any {
	rec := make(map[string]any, len(c.cols))
	for i, col := range c.cols {
		rec[col.Name] = c.current[i]
	}
	return rec
}

func (c *rowsCursor) ReadField(i int) any {
	return c.current[i]
}

func (c *rowsCursor) Columns() []ColumnInfo {
	return c.cols
}

func (c *rowsCursor) IsFieldNull(i int) bool {
	return c.current[i] == nil
}

func (c *rowsCursor) ReadChunk(i int, offset, length int64) ([]byte, error) {
	return chunkValue(c.current[i], offset, length, c.cols[i].Type.IsCharacter())
}

func (c *rowsCursor) NextResultSet() (bool, error) {
	if c.closed {
		return false, ErrCursorClosed
	}
	if !c.rows.NextResultSet() {
		if err := c.rows.Err(); err != nil {
			return false, err
		}
		return false, nil
	}
	cols, err := describeColumns(c.rows)
	if err != nil {
		return false, err
	}
	c.cols = cols
	c.current = nil
	return true, nil
}

func (c *rowsCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rows.Close()
}

// memCursor serves already-materialized result sets. Procedure calls use it
// so the pinned connection is released before output parameters are read.
type memCursor struct {
	sets    []resultSet
	set     int
	pos     int
	current []any
	closed  bool
}

type resultSet struct {
	cols []ColumnInfo
	rows [][]any
}

// materialize drains every result set of rows into memory and closes it.
func materialize(rows *sql.Rows) (*memCursor, error) {
	defer rows.Close()

	var sets []resultSet
	for {
		cols, err := describeColumns(rows)
		if err != nil {
			return nil, err
		}
		set := resultSet{cols: cols}
		for rows.Next() {
			row, err := scanRow(rows, len(cols))
			if err != nil {
				return nil, err
			}
			set.rows = append(set.rows, row)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		sets = append(sets, set)
		if !rows.NextResultSet() {
			if err := rows.Err(); err != nil {
				return nil, err
			}
			break
		}
	}
	return &memCursor{sets: sets}, nil
}

func (c *memCursor) Advance() (bool, error) {
	if c.closed {
		return false, ErrCursorClosed
	}
	if c.set >= len(c.sets) {
		return false, nil
	}
	rows := c.sets[c.set].rows
	if c.pos >= len(rows) {
		c.current = nil
		return false, nil
	}
	c.current = rows[c.pos]
	c.pos++
	return true, nil
}

func (c *memCursor) ReadRecord() map[string]any {
	cols := c.sets[c.set].cols
	rec := make(map[string]any, len(cols))
	for i, col := range cols {
		rec[col.Name] = c.current[i]
	}
	return rec
}

func (c *memCursor) ReadField(i int) any {
	return c.current[i]
}

func (c *memCursor) Columns() []ColumnInfo {
	if c.set >= len(c.sets) {
		return nil
	}
	return c.sets[c.set].cols
}

func (c *memCursor) IsFieldNull(i int) bool {
	return c.current[i] == nil
}

func (c *memCursor) ReadChunk(i int, offset, length int64) ([]byte, error) {
	character := c.sets[c.set].cols[i].Type.IsCharacter()
	return chunkValue(c.current[i], offset, length, character)
}

func (c *memCursor) NextResultSet() (bool, error) {
	if c.closed {
		return false, ErrCursorClosed
	}
	if c.set+1 >= len(c.sets) {
		return false, nil
	}
	c.set++
	c.pos = 0
	c.current = nil
	return true, nil
}

// dropFirstSet removes the leading result set and rewinds the cursor. Callers
// use it after consuming a protocol row that is not part of the data output.
func (c *memCursor) dropFirstSet() {
	if len(c.sets) > 0 {
		c.sets = c.sets[1:]
	}
	c.set, c.pos, c.current = 0, 0, nil
}

func (c *memCursor) Close() error {
	c.closed = true
	return nil
}

// typeCodeFor maps a wire type name to a logical type code. MySQL and
// PostgreSQL names share this table since they rarely collide.
func typeCodeFor(dbType string) TypeCode {
	switch strings.ToUpper(dbType) {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "BIGINT", "YEAR",
		"INT2", "INT4", "INT8":
		return TypeInt
	case "FLOAT", "DOUBLE", "FLOAT4", "FLOAT8":
		return TypeFloat
	case "DECIMAL", "NUMERIC":
		return TypeDecimal
	case "BIT", "BOOL", "BOOLEAN":
		return TypeBool
	case "CHAR", "VARCHAR", "ENUM", "SET", "BPCHAR":
		return TypeString
	case "DATE", "DATETIME", "TIMESTAMP", "TIME", "TIMESTAMPTZ", "TIMETZ":
		return TypeTime
	case "TEXT", "TINYTEXT", "MEDIUMTEXT", "LONGTEXT", "JSON", "JSONB", "XML":
		return TypeClob
	case "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BYTEA":
		return TypeBlob
	case "VARBINARY":
		return TypeVarBinary
	case "BINARY":
		return TypeBytes
	}
	return TypeUnknown
}
