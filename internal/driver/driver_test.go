package driver

import (
	"context"
	"errors"
	"testing"
)

func TestCountPlaceholders(t *testing.T) {
	cases := []struct {
		query string
		want  int
	}{
		{"SELECT 1", 0},
		{"SELECT * FROM t WHERE a = ? AND b = ?", 2},
		{"INSERT INTO t VALUES (?, '?', ?)", 2},
		{`SELECT "a?b", ? FROM t`, 1},
		{"SELECT `col?` FROM t WHERE x = ?", 1},
		{"CALL p(?, ?, ?)", 3},
		{`SELECT * FROM t WHERE a = 'it\'s a ?' AND b = ?`, 1},
		{`UPDATE t SET a = "she said \"?\"" WHERE b = ?`, 1},
		{`SELECT 'trailing backslash \\', ?`, 1},
	}
	for _, c := range cases {
		if got := countPlaceholders(c.query); got != c.want {
			t.Errorf("countPlaceholders(%q) = %d, want %d", c.query, got, c.want)
		}
	}
}

func TestOrdinalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{"INSERT INTO t VALUES (?, '?', ?)", "INSERT INTO t VALUES ($1, '?', $2)"},
		{`SELECT * FROM t WHERE a = E'it\'s a ?' AND b = ?`, `SELECT * FROM t WHERE a = E'it\'s a ?' AND b = $1`},
	}
	for _, c := range cases {
		if got := ordinalize(c.in); got != c.want {
			t.Errorf("ordinalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestChunkValueBinary(t *testing.T) {
	data := []byte("0123456789")

	got, err := chunkValue(data, 0, 4, false)
	if err != nil || string(got) != "0123" {
		t.Fatalf("chunk at 0 = %q, %v", got, err)
	}
	got, err = chunkValue(data, 8, 4, false)
	if err != nil || string(got) != "89" {
		t.Fatalf("chunk at 8 = %q, %v", got, err)
	}
	if _, err = chunkValue(data, 10, 4, false); !errors.Is(err, ErrNoData) {
		t.Fatalf("past-end read: %v, want ErrNoData", err)
	}
	if _, err = chunkValue(nil, 0, 4, false); !errors.Is(err, ErrNoData) {
		t.Fatalf("nil value: %v, want ErrNoData", err)
	}
	if _, err = chunkValue(int64(5), 0, 4, false); err == nil {
		t.Fatal("scalar value accepted for chunk read")
	}
}

func TestChunkValueCharacter(t *testing.T) {
	// Character reads are addressed in decoded characters: five two-byte
	// runes span offsets 0..4, not 0..9.
	data := "абвгд"

	got, err := chunkValue(data, 0, 3, true)
	if err != nil || string(got) != "абв" {
		t.Fatalf("chunk at 0 = %q, %v", got, err)
	}
	got, err = chunkValue(data, 3, 3, true)
	if err != nil || string(got) != "гд" {
		t.Fatalf("chunk at 3 = %q, %v", got, err)
	}
	if _, err = chunkValue(data, 5, 3, true); !errors.Is(err, ErrNoData) {
		t.Fatalf("past-end read: %v, want ErrNoData", err)
	}
}

func TestTypeCodeFor(t *testing.T) {
	cases := []struct {
		wire string
		want TypeCode
	}{
		{"BIGINT", TypeInt},
		{"INT8", TypeInt},
		{"LONGTEXT", TypeClob},
		{"JSONB", TypeClob},
		{"LONGBLOB", TypeBlob},
		{"BYTEA", TypeBlob},
		{"VARBINARY", TypeVarBinary},
		{"VARCHAR", TypeString},
		{"TIMESTAMPTZ", TypeTime},
		{"GEOMETRY", TypeUnknown},
	}
	for _, c := range cases {
		if got := typeCodeFor(c.wire); got != c.want {
			t.Errorf("typeCodeFor(%q) = %v, want %v", c.wire, got, c.want)
		}
	}
}

func TestLOBTypePredicates(t *testing.T) {
	for _, tc := range []TypeCode{TypeClob, TypeNClob, TypeBlob, TypeVarBinary} {
		if !tc.IsLOB() {
			t.Errorf("%v.IsLOB() = false", tc)
		}
	}
	if TypeString.IsLOB() {
		t.Error("TypeString.IsLOB() = true")
	}
	if !TypeClob.IsCharacter() || !TypeNClob.IsCharacter() {
		t.Error("character predicates wrong for CLOB kinds")
	}
	if TypeBlob.IsCharacter() {
		t.Error("TypeBlob.IsCharacter() = true")
	}
}

func TestParseTypeCodeRoundTrip(t *testing.T) {
	for tc := TypeBool; tc <= TypeVarBinary; tc++ {
		if got := ParseTypeCode(tc.String()); got != tc {
			t.Errorf("ParseTypeCode(%q) = %v, want %v", tc.String(), got, tc)
		}
	}
	if got := ParseTypeCode("nonsense"); got != TypeUnknown {
		t.Errorf("ParseTypeCode(nonsense) = %v", got)
	}
}

func TestParseDirection(t *testing.T) {
	cases := map[string]Direction{
		"IN":    DirIn,
		"OUT":   DirOut,
		"INOUT": DirInOut,
		"":      DirIn,
	}
	for s, want := range cases {
		if got := ParseDirection(s); got != want {
			t.Errorf("ParseDirection(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestSynthesizeParams(t *testing.T) {
	params := synthesizeParams("INSERT INTO t VALUES (?, ?)")
	if len(params) != 2 {
		t.Fatalf("got %d params, want 2", len(params))
	}
	for _, p := range params {
		if p.Direction != DirIn || p.Type != TypeUnknown {
			t.Errorf("synthesized param %+v", p)
		}
	}
}

func TestStreamPositions(t *testing.T) {
	pos := streamPositions([]any{int64(1), StreamValue{}, "x", StreamValue{}})
	if len(pos) != 2 || pos[0] != 1 || pos[1] != 3 {
		t.Fatalf("streamPositions = %v, want [1 3]", pos)
	}
	if pos := streamPositions([]any{int64(1)}); pos != nil {
		t.Fatalf("streamPositions without streams = %v", pos)
	}
}

func TestRewriteCallOutOnly(t *testing.T) {
	// IN positions stay placeholders, OUT positions become session
	// variables. INOUT seeding needs a live connection and is covered by
	// integration use.
	s := &mysqlStmt{
		query: "CALL p(?, ?, '?')",
		params: []ParamInfo{
			{Name: "a", Direction: DirIn},
			{Name: "b", Direction: DirOut},
		},
	}
	got, inArgs, err := s.rewriteCall(context.Background(), []any{int64(42), nil})
	if err != nil {
		t.Fatalf("rewriteCall failed: %v", err)
	}
	if got != "CALL p(?, @_sp_1, '?')" {
		t.Errorf("rewritten = %q", got)
	}
	if len(inArgs) != 1 || inArgs[0] != int64(42) {
		t.Errorf("inArgs = %v", inArgs)
	}
}

func TestRewriteCallEscapedQuote(t *testing.T) {
	// A backslash-escaped quote does not end the literal, so the ? inside
	// it is not a placeholder.
	s := &mysqlStmt{
		query: `CALL p('it\'s a ?', ?)`,
		params: []ParamInfo{
			{Name: "a", Direction: DirOut},
		},
	}
	got, inArgs, err := s.rewriteCall(context.Background(), []any{nil})
	if err != nil {
		t.Fatalf("rewriteCall failed: %v", err)
	}
	if got != `CALL p('it\'s a ?', @_sp_0)` {
		t.Errorf("rewritten = %q", got)
	}
	if len(inArgs) != 0 {
		t.Errorf("inArgs = %v", inArgs)
	}
}

func TestMemCursorSets(t *testing.T) {
	c := &memCursor{sets: []resultSet{
		{
			cols: []ColumnInfo{{Name: "a", Type: TypeInt}},
			rows: [][]any{{int64(1)}, {int64(2)}},
		},
		{
			cols: []ColumnInfo{{Name: "b", Type: TypeString}},
			rows: [][]any{{"x"}},
		},
	}}

	var first []any
	for {
		ok, err := c.Advance()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		first = append(first, c.ReadField(0))
	}
	if len(first) != 2 {
		t.Fatalf("first set yielded %v", first)
	}

	more, err := c.NextResultSet()
	if err != nil || !more {
		t.Fatalf("NextResultSet = %v, %v", more, err)
	}
	if c.Columns()[0].Name != "b" {
		t.Errorf("second set columns = %v", c.Columns())
	}
	ok, _ := c.Advance()
	if !ok || c.ReadRecord()["b"] != "x" {
		t.Errorf("second set row missing")
	}

	if more, _ := c.NextResultSet(); more {
		t.Error("NextResultSet past the last set")
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Advance(); !errors.Is(err, ErrCursorClosed) {
		t.Errorf("advance after close: %v", err)
	}
}

func TestMemCursorDropFirstSet(t *testing.T) {
	c := &memCursor{sets: []resultSet{
		{
			cols: []ColumnInfo{{Name: "out", Type: TypeDecimal}},
			rows: [][]any{{"9.99"}},
		},
		{
			cols: []ColumnInfo{{Name: "region", Type: TypeString}},
			rows: [][]any{{"north"}},
		},
	}}

	ok, err := c.Advance()
	if err != nil || !ok {
		t.Fatalf("Advance = %v, %v", ok, err)
	}
	c.dropFirstSet()

	// The cursor rewinds onto what used to be the second set.
	if c.Columns()[0].Name != "region" {
		t.Fatalf("columns after drop = %v", c.Columns())
	}
	ok, err = c.Advance()
	if err != nil || !ok || c.ReadField(0) != "north" {
		t.Fatalf("row after drop missing")
	}

	// Dropping the only remaining set leaves an empty cursor, not a panic.
	c.dropFirstSet()
	if ok, err := c.Advance(); ok || err != nil {
		t.Fatalf("empty cursor Advance = %v, %v", ok, err)
	}
	if c.Columns() != nil {
		t.Errorf("empty cursor columns = %v", c.Columns())
	}
}
