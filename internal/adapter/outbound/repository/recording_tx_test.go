package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// recordingTx captures SQL issued through the query interface so tests can
// assert statement semantics without a live database. It is injected via
// the transaction context key, which makes GetQueryInterface route all
// queries to it.
type recordingTx struct {
	pgx.Tx

	queries []string
	args    [][]interface{}

	// execTag is returned from Exec, e.g. "UPDATE 1". Defaults to a
	// one-row tag so updates succeed.
	execTag string

	// rowScan handles QueryRow scans. Defaults to pgx.ErrNoRows.
	rowScan func(dest ...any) error
}

func newRecordingTx() *recordingTx {
	return &recordingTx{execTag: "INSERT 0 1"}
}

// recordingContext returns a context that routes repository queries to tx.
func recordingContext(tx *recordingTx) context.Context {
	return context.WithValue(context.Background(), txContextKey{}, tx)
}

func (r *recordingTx) record(sql string, args []interface{}) {
	r.queries = append(r.queries, sql)
	r.args = append(r.args, args)
}

func (r *recordingTx) lastQuery() string {
	if len(r.queries) == 0 {
		return ""
	}
	return r.queries[len(r.queries)-1]
}

func (r *recordingTx) lastArgs() []interface{} {
	if len(r.args) == 0 {
		return nil
	}
	return r.args[len(r.args)-1]
}

func (r *recordingTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	r.record(sql, arguments)
	return pgconn.NewCommandTag(r.execTag), nil
}

func (r *recordingTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	r.record(sql, args)
	return emptyRows{}, nil
}

func (r *recordingTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	r.record(sql, args)
	scan := r.rowScan
	if scan == nil {
		scan = func(...any) error { return pgx.ErrNoRows }
	}
	return fakeRow{scanFn: scan}
}

// fakeRow delegates Scan to a test-provided function.
type fakeRow struct {
	scanFn func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error {
	return r.scanFn(dest...)
}

// emptyRows is a row set with no rows.
type emptyRows struct {
	pgx.Rows
}

func (emptyRows) Close()     {}
func (emptyRows) Err() error { return nil }
func (emptyRows) Next() bool { return false }
