package exporter

import "io"

// RowEncoder defines a common interface for different export formats (CSV, JSON, Excel, PDF).
// It allows the export pipeline to be agnostic of the underlying output format.
//
// WriteHeader may be called more than once: procedure exports call it once
// per result table, and encoders open a new section (or sheet) for each.
type RowEncoder interface {
	// WriteHeader writes the column headers for the next table of rows.
	WriteHeader(columns []string) error

	// WriteRow writes a single row of data.
	// The values slice length must match the current headers length.
	WriteRow(values []interface{}) error

	// Flush ensures all buffered data is written to the underlying writer.
	// This is critical for buffered writers like CSV or JSON streams.
	Flush() error

	// Error returns the first error that occurred during encoding, if any.
	// This allows for cleaner loops where error checking can happen at the end.
	Error() error

	// Close flushes the encoder and releases any resources.
	// For Excel, this might write the central directory/zip footer.
	io.Closer
}
