package sqlloader

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync/atomic"
)

// fakeDB is a minimal database/sql driver serving a fixed table of
// (id -> columns) rows to any single-parameter query.
type fakeDB struct {
	columns []string
	rows    map[string][]driver.Value
	queries atomic.Int64
	failing error
}

func (f *fakeDB) Connect(context.Context) (driver.Conn, error) { return fakeConn{f}, nil }
func (f *fakeDB) Driver() driver.Driver                        { return fakeDriver{f} }

func (f *fakeDB) open() *sql.DB { return sql.OpenDB(f) }

type fakeDriver struct{ f *fakeDB }

func (d fakeDriver) Open(string) (driver.Conn, error) { return fakeConn(d), nil }

type fakeConn struct{ f *fakeDB }

func (c fakeConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("fakedb: prepare not supported")
}
func (c fakeConn) Close() error              { return nil }
func (c fakeConn) Begin() (driver.Tx, error) { return nil, errors.New("fakedb: no transactions") }

// QueryContext lets database/sql skip Prepare.
func (c fakeConn) QueryContext(_ context.Context, _ string, args []driver.NamedValue) (driver.Rows, error) {
	c.f.queries.Add(1)
	if c.f.failing != nil {
		return nil, c.f.failing
	}
	if len(args) != 1 {
		return nil, errors.New("fakedb: want exactly one argument")
	}
	key, _ := args[0].Value.(string)
	r := &fakeRows{columns: c.f.columns}
	if row, ok := c.f.rows[key]; ok {
		r.data = [][]driver.Value{row}
	}
	return r, nil
}

type fakeRows struct {
	columns []string
	data    [][]driver.Value
	pos     int
}

func (r *fakeRows) Columns() []string { return r.columns }
func (r *fakeRows) Close() error      { return nil }
func (r *fakeRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.pos])
	r.pos++
	return nil
}
