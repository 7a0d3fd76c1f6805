package sqlstore

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures the differences between the supported databases.
type Dialect struct {
	// Name is also the golang-migrate database name.
	Name   string
	driver string
	bind   func(n int) string
}

var (
	// Postgres uses lib/pq with numbered placeholders.
	Postgres = &Dialect{Name: "postgres", driver: "postgres", bind: func(n int) string { return "$" + strconv.Itoa(n) }}
	// SQLite uses modernc.org/sqlite with positional placeholders.
	SQLite = &Dialect{Name: "sqlite", driver: "sqlite", bind: func(int) string { return "?" }}
)

// sqlitePragmas are appended to every SQLite DSN.
const sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// ParseURL picks the dialect for a database URL and returns the DSN to open.
// PostgreSQL URLs are passed through; "sqlite://path" and "file:" URLs
// select SQLite.
func ParseURL(databaseURL string) (*Dialect, string, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return Postgres, databaseURL, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return SQLite, withPragmas(strings.TrimPrefix(databaseURL, "sqlite://")), nil
	case strings.HasPrefix(databaseURL, "file:"):
		return SQLite, withPragmas(databaseURL), nil
	default:
		return nil, "", fmt.Errorf("unsupported database URL %q", databaseURL)
	}
}

func withPragmas(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqlitePragmas
	}
	return dsn + "?" + sqlitePragmas
}

// sqlBuilder accumulates a statement and its arguments.
type sqlBuilder struct {
	d    *Dialect
	sb   strings.Builder
	args []any
}

func newSQL(d *Dialect, s string) *sqlBuilder {
	b := &sqlBuilder{d: d}
	b.sb.WriteString(s)
	return b
}

func (b *sqlBuilder) write(parts ...string) *sqlBuilder {
	for _, p := range parts {
		b.sb.WriteString(p)
	}
	return b
}

// arg binds v and returns its placeholder.
func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return b.d.bind(len(b.args))
}

// argList binds every value and returns the comma-separated placeholders.
func (b *sqlBuilder) argList(vs []any) string {
	marks := make([]string, len(vs))
	for i, v := range vs {
		marks[i] = b.arg(v)
	}
	return strings.Join(marks, ", ")
}

func (b *sqlBuilder) String() string {
	return b.sb.String()
}
