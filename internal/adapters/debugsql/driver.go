package debugsql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"
	"time"

	"github.com/fllarpy/api-debugger/domain/debug"
)

// ---------------- Driver registration ----------------

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]driver.Driver)
)

// Register wraps the provided driver so that every successfully executed
// statement is published to n, and registers it in database/sql under the
// given name. Typical usage:
//
//	import "github.com/mattn/go-sqlite3"
//	debugsql.Register("sqlite3-debug", &sqlite3.SQLiteDriver{}, notifier)
//	db, _ := sql.Open("sqlite3-debug", dsn)
//
// Statements must be run with the request context (QueryContext, ExecContext)
// for the collector to attribute them to a request.
//
// Panics if the driver or notifier is nil or the name is already taken.
func Register(name string, d driver.Driver, n *Notifier) {
	driversMu.Lock()
	defer driversMu.Unlock()

	if d == nil {
		panic("debugsql: Register driver is nil")
	}
	if n == nil {
		panic("debugsql: Register notifier is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("debugsql: Register called twice for driver " + name)
	}

	drivers[name] = d
	sql.Register(name, &debugDriver{realDriver: d, notifier: n})
}

// ---------------- Driver wrappers ----------------

type debugDriver struct {
	realDriver driver.Driver
	notifier   *Notifier
}

func (d *debugDriver) Open(name string) (driver.Conn, error) {
	conn, err := d.realDriver.Open(name)
	if err != nil {
		return nil, err
	}
	return &debugConn{realConn: conn, notifier: d.notifier}, nil
}

type debugConn struct {
	realConn driver.Conn
	notifier *Notifier
}

func (c *debugConn) Prepare(query string) (driver.Stmt, error) {
	stmt, err := c.realConn.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &debugStmt{realStmt: stmt, query: query, notifier: c.notifier}, nil
}

func (c *debugConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	pc, ok := c.realConn.(driver.ConnPrepareContext)
	if !ok {
		return c.Prepare(query)
	}
	stmt, err := pc.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &debugStmt{realStmt: stmt, query: query, notifier: c.notifier}, nil
}

func (c *debugConn) Close() error              { return c.realConn.Close() }
func (c *debugConn) Begin() (driver.Tx, error) { return c.realConn.Begin() }

func (c *debugConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if bt, ok := c.realConn.(driver.ConnBeginTx); ok {
		return bt.BeginTx(ctx, opts)
	}
	return c.realConn.Begin()
}

// Context-aware exec/query
func (c *debugConn) QueryContext(ctx context.Context, q string, a []driver.NamedValue) (driver.Rows, error) {
	if qx, ok := c.realConn.(driver.QueryerContext); ok {
		start := time.Now()
		rows, err := qx.QueryContext(ctx, q, a)
		if err == nil {
			c.notifier.record(ctx, q, a, time.Since(start))
		}
		return rows, err
	}
	return nil, driver.ErrSkip
}

func (c *debugConn) ExecContext(ctx context.Context, q string, a []driver.NamedValue) (driver.Result, error) {
	if ex, ok := c.realConn.(driver.ExecerContext); ok {
		start := time.Now()
		res, err := ex.ExecContext(ctx, q, a)
		if err == nil {
			c.notifier.record(ctx, q, a, time.Since(start))
		}
		return res, err
	}
	return nil, driver.ErrSkip
}

type debugStmt struct {
	realStmt driver.Stmt
	query    string
	notifier *Notifier
}

func (s *debugStmt) Close() error  { return s.realStmt.Close() }
func (s *debugStmt) NumInput() int { return s.realStmt.NumInput() }

func (s *debugStmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.realStmt.Exec(args)
}

func (s *debugStmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.realStmt.Query(args)
}

func (s *debugStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	start := time.Now()
	var (
		res driver.Result
		err error
	)
	if ex, ok := s.realStmt.(driver.StmtExecContext); ok {
		res, err = ex.ExecContext(ctx, args)
	} else {
		res, err = s.realStmt.Exec(namedValueToValue(args))
	}
	if err == nil {
		s.notifier.record(ctx, s.query, args, time.Since(start))
	}
	return res, err
}

func (s *debugStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	start := time.Now()
	var (
		rows driver.Rows
		err  error
	)
	if qx, ok := s.realStmt.(driver.StmtQueryContext); ok {
		rows, err = qx.QueryContext(ctx, args)
	} else {
		rows, err = s.realStmt.Query(namedValueToValue(args))
	}
	if err == nil {
		s.notifier.record(ctx, s.query, args, time.Since(start))
	}
	return rows, err
}

// record publishes an executed statement. Parameters keep their positional
// order; names, if any, are dropped.
func (n *Notifier) record(ctx context.Context, query string, args []driver.NamedValue, dur time.Duration) {
	params := make([]any, len(args))
	for i, v := range namedValueToValue(args) {
		params[i] = v
	}
	n.Publish(ctx, debug.QueryEvent{Template: query, Parameters: params, Elapsed: dur})
}

func namedValueToValue(named []driver.NamedValue) []driver.Value {
	vs := make([]driver.Value, len(named))
	for i, nv := range named {
		vs[i] = nv.Value
	}
	return vs
}
