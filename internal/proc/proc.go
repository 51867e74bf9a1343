// Package proc executes a procedure-call statement and assembles its scalar
// output parameters, every result table, and per-table column metadata into
// one composite result.
package proc

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"dbstream/internal/driver"
)

// Table holds one drained result set. Columns stays nil when the set
// declared no columns.
type Table struct {
	Columns []driver.ColumnInfo
	Rows    [][]any
}

// Result is the composite outcome of one procedure call: named scalar
// output parameters plus the result tables in declaration order.
type Result struct {
	Scalars map[string]any
	Tables  []Table
}

// CallStatement wraps a prepared procedure-call statement.
type CallStatement struct {
	stmt driver.PreparedStatement
}

func New(stmt driver.PreparedStatement) *CallStatement {
	return &CallStatement{stmt: stmt}
}

// Call executes the procedure once and collects everything it produces.
// Scalar output parameters are retrieved first; table draining begins only
// after every retrieval has completed. Any failure discards partial results
// and surfaces the error alone.
//
// The collector owns the cursor it opens and closes it on every path.
func (c *CallStatement) Call(ctx context.Context, params []any) (*Result, error) {
	cur, err := c.stmt.Query(ctx, params)
	if err != nil {
		return nil, err
	}

	res := &Result{Scalars: make(map[string]any)}
	if err := c.collectScalars(ctx, res); err != nil {
		cur.Close()
		return nil, err
	}
	if err := c.collectTables(cur, res); err != nil {
		cur.Close()
		return nil, err
	}
	if err := cur.Close(); err != nil {
		return nil, err
	}
	return res, nil
}

// collectScalars retrieves every output and input-output parameter. The
// group wait is the single synchronization barrier before table draining.
func (c *CallStatement) collectScalars(ctx context.Context, res *Result) error {
	g, _ := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for i, p := range c.stmt.Params() {
		if p.Direction != driver.DirOut && p.Direction != driver.DirInOut {
			continue
		}
		g.Go(func() error {
			null, err := c.stmt.IsParamNull(i)
			if err != nil {
				return fmt.Errorf("parameter %q: %w", p.Name, err)
			}
			var v any
			if !null {
				v, err = c.stmt.ReadParam(i)
				if err != nil {
					return fmt.Errorf("parameter %q: %w", p.Name, err)
				}
			}
			mu.Lock()
			res.Scalars[p.Name] = v
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// collectTables drains result sets in declaration order. Column metadata for
// a table is recorded once, after the table is fully drained, and only when
// the set declared at least one column.
func (c *CallStatement) collectTables(cur driver.Cursor, res *Result) error {
	for {
		cols := cur.Columns()
		table := Table{}
		for {
			ok, err := cur.Advance()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			row := make([]any, len(cols))
			for i := range row {
				row[i] = cur.ReadField(i)
			}
			table.Rows = append(table.Rows, row)
		}
		if len(cols) > 0 {
			table.Columns = cols
		}
		res.Tables = append(res.Tables, table)

		more, err := cur.NextResultSet()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

func (c *CallStatement) Close() error {
	return c.stmt.Close()
}
