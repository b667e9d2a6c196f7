package repo

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"genstudio/internal/infra"
)

type scripted struct {
	vals []any
	err  error
}

type execCall struct {
	query string
	args  []any
}

// stubDB scripts row results per query constant. Unscripted single-row
// queries return pgx.ErrNoRows.
type stubDB struct {
	rows      map[string][]scripted
	lists     map[string][][]any
	tags      map[string]string
	queries   []string
	execs     []execCall
	commits   int
	rollbacks int
}

func newStubDB() *stubDB {
	return &stubDB{
		rows:  map[string][]scripted{},
		lists: map[string][][]any{},
		tags:  map[string]string{},
	}
}

func (s *stubDB) script(query string, vals ...any) {
	s.rows[query] = append(s.rows[query], scripted{vals: vals})
}

func (s *stubDB) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.queries = append(s.queries, query)
	s.execs = append(s.execs, execCall{query: query, args: args})
	tag := s.tags[query]
	if tag == "" {
		tag = "INSERT 0 1"
	}
	return pgconn.NewCommandTag(tag), nil
}

func (s *stubDB) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.queries = append(s.queries, query)
	queue := s.rows[query]
	if len(queue) == 0 {
		return stubRow{err: pgx.ErrNoRows}
	}
	s.rows[query] = queue[1:]
	return stubRow{vals: queue[0].vals, err: queue[0].err}
}

func (s *stubDB) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	s.queries = append(s.queries, query)
	return &stubRows{rows: s.lists[query], idx: -1}, nil
}

func (s *stubDB) InTx(ctx context.Context, fn func(infra.SQLExecutor) error) error {
	if err := fn(s); err != nil {
		s.rollbacks++
		return err
	}
	s.commits++
	return nil
}

func (s *stubDB) ran(query string) bool {
	for _, q := range s.queries {
		if q == query {
			return true
		}
	}
	return false
}

func (s *stubDB) execsOf(query string) []execCall {
	var out []execCall
	for _, c := range s.execs {
		if c.query == query {
			out = append(out, c)
		}
	}
	return out
}

type stubRow struct {
	vals []any
	err  error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(r.vals, dest)
}

func assign(vals []any, dest []any) error {
	if len(vals) != len(dest) {
		return fmt.Errorf("scan: %d values for %d destinations", len(vals), len(dest))
	}
	for i, v := range vals {
		target := reflect.ValueOf(dest[i])
		if target.Kind() != reflect.Pointer {
			return errors.New("scan: destination is not a pointer")
		}
		target.Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

type stubRows struct {
	rows [][]any
	idx  int
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Values() ([]any, error)                       { return r.rows[r.idx], nil }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

func (r *stubRows) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *stubRows) Scan(dest ...any) error {
	return assign(r.rows[r.idx], dest)
}
