package driver

import (
	"context"
	"errors"
)

// ErrNoData is returned by chunked reads once the source is exhausted.
// It marks the normal end of a large object, not a failure.
var ErrNoData = errors.New("driver: no more data")

// StreamValue is bound at a parameter position whose contents will be
// uploaded separately, chunk by chunk, after execution starts.
type StreamValue struct{}

// TypeCode identifies the logical type of a column or parameter.
type TypeCode int

const (
	TypeUnknown TypeCode = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeDecimal
	TypeString
	TypeTime
	TypeBytes
	TypeClob
	TypeNClob
	TypeBlob
	TypeVarBinary
)

// IsLOB reports whether values of this type are retrieved in
// offset-addressed chunks rather than as a single fetch result.
func (t TypeCode) IsLOB() bool {
	switch t {
	case TypeClob, TypeNClob, TypeBlob, TypeVarBinary:
		return true
	}
	return false
}

// IsCharacter reports whether a LOB type carries text. Character LOBs may
// arrive padded with an embedded NUL terminator, so offsets into them are
// measured in decoded characters.
func (t TypeCode) IsCharacter() bool {
	return t == TypeClob || t == TypeNClob
}

func (t TypeCode) String() string {
	switch t {
	case TypeBool:
		return "BOOL"
	case TypeInt:
		return "INT"
	case TypeFloat:
		return "FLOAT"
	case TypeDecimal:
		return "DECIMAL"
	case TypeString:
		return "STRING"
	case TypeTime:
		return "TIME"
	case TypeBytes:
		return "BYTES"
	case TypeClob:
		return "CLOB"
	case TypeNClob:
		return "NCLOB"
	case TypeBlob:
		return "BLOB"
	case TypeVarBinary:
		return "VARBINARY"
	}
	return "UNKNOWN"
}

// ParseTypeCode maps a type name as produced by TypeCode.String back to
// its code. Unrecognized names map to TypeUnknown.
func ParseTypeCode(s string) TypeCode {
	for t := TypeBool; t <= TypeVarBinary; t++ {
		if t.String() == s {
			return t
		}
	}
	return TypeUnknown
}

// Direction distinguishes input, output and input-output parameters.
type Direction int

const (
	DirIn Direction = iota
	DirOut
	DirInOut
)

func (d Direction) String() string {
	switch d {
	case DirOut:
		return "OUT"
	case DirInOut:
		return "INOUT"
	}
	return "IN"
}

// ParseDirection maps "IN", "OUT" or "INOUT" to a Direction.
// Anything else is treated as IN.
func ParseDirection(s string) Direction {
	switch s {
	case "OUT":
		return DirOut
	case "INOUT":
		return DirInOut
	}
	return DirIn
}

// ColumnInfo describes one result-set column.
type ColumnInfo struct {
	Name     string
	Type     TypeCode
	WireType string
}

// ParamInfo describes one statement parameter.
type ParamInfo struct {
	Name      string
	Type      TypeCode
	WireType  string
	Direction Direction
}

// Cursor is a positioned iterator over a query's result rows. The stream
// adapters borrow a cursor without owning its lifecycle; only a component
// that opened the cursor itself may close it.
type Cursor interface {
	// Advance moves to the next row. It returns false once no row remains.
	Advance() (bool, error)

	// ReadRecord returns the current row as a name -> value mapping.
	ReadRecord() map[string]any

	// ReadField returns the value at column i of the current row.
	ReadField(i int) any

	// Columns returns the metadata of the current result set in column order.
	Columns() []ColumnInfo

	// IsFieldNull reports whether column i of the current row is NULL.
	IsFieldNull(i int) bool

	// ReadChunk reads up to length bytes of the LOB at column i, starting at
	// offset. It returns ErrNoData once the object is exhausted.
	ReadChunk(i int, offset, length int64) ([]byte, error)

	// NextResultSet advances to the following result set, if any.
	NextResultSet() (bool, error)

	Close() error
}

// PreparedStatement is a statement that has already been parsed by the
// underlying driver and can be executed with bound parameters.
type PreparedStatement interface {
	// Exec runs the statement and returns the affected-row count.
	Exec(ctx context.Context, params []any) (int64, error)

	// Query runs the statement and returns a cursor over the first result set.
	Query(ctx context.Context, params []any) (Cursor, error)

	// Params returns the declared parameter metadata in position order.
	Params() []ParamInfo

	// ReadParam returns the retrieved value of output parameter i.
	ReadParam(i int) (any, error)

	// IsParamNull reports whether output parameter i is NULL.
	IsParamNull(i int) (bool, error)

	// ReadParamChunk reads up to length bytes of the LOB-typed output
	// parameter i, starting at offset. Returns ErrNoData past the end.
	ReadParamChunk(i int, offset, length int64) ([]byte, error)

	// UploadChunk appends chunk to the streamed parameter at position i.
	// A nil or empty chunk signals end-of-data for that position.
	UploadChunk(ctx context.Context, i int, chunk []byte) error

	Close() error
}
