package exporter

import (
	"encoding/json"
	"io"
	"strconv"
)

// JSONEncoder implements RowEncoder for JSON Lines format.
// Each row is exported as a JSON object on a new line. Consecutive tables
// (procedure exports) concatenate; the table index is carried per object so
// readers can split them back apart.
type JSONEncoder struct {
	w        io.Writer
	columns  []string
	tableIdx int
	err      error
}

// NewJSONEncoder creates a new JSON Lines encoder.
func NewJSONEncoder(w io.Writer) *JSONEncoder {
	return &JSONEncoder{w: w, tableIdx: -1}
}

// WriteHeader captures the column names to be used as JSON keys.
// Unlike CSV, JSON doesn't write a header row, but needs the names for object properties.
func (e *JSONEncoder) WriteHeader(columns []string) error {
	e.columns = columns
	e.tableIdx++
	return nil
}

func (e *JSONEncoder) WriteRow(values []interface{}) error {
	if e.err != nil {
		return e.err
	}

	rowMap := make(map[string]interface{}, len(values)+1)
	for i, v := range values {
		colName := "column_" + strconv.Itoa(i)
		if i < len(e.columns) {
			colName = e.columns[i]
		}

		// []byte would marshal as base64; deliver it as text instead.
		if b, ok := v.([]byte); ok {
			rowMap[colName] = string(b)
		} else {
			rowMap[colName] = v
		}
	}
	if e.tableIdx > 0 {
		rowMap["_table"] = e.tableIdx
	}

	data, err := json.Marshal(rowMap)
	if err != nil {
		e.err = err
		return err
	}

	_, err = e.w.Write(data)
	if err != nil {
		e.err = err
		return err
	}
	_, err = e.w.Write([]byte("\n"))
	if err != nil {
		e.err = err
		return err
	}

	return nil
}

func (e *JSONEncoder) Flush() error {
	return nil
}

func (e *JSONEncoder) Error() error {
	return e.err
}

func (e *JSONEncoder) Close() error {
	return e.Flush()
}
