// Package sqlite reads SQLite database files through modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"datascan/internal/source"
	"datascan/internal/source/sqldb"
)

// Kind is the registry name of this backend.
const Kind = "sqlite"

func init() {
	source.Register(Kind, New)
}

// Dialect describes SQLite to sqldb.
var Dialect = sqldb.Dialect{
	Kind:       Kind,
	ListTables: listTables,
	Select:     sqldb.LimitSelect,
	Count:      sqldb.CountStar,
}

// New opens cfg.DSN, or cfg.Path when no DSN is given.
func New(ctx context.Context, cfg source.Config) (source.Source, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = cfg.Path
	}
	if dsn == "" {
		return nil, fmt.Errorf("sqlite: missing dsn")
	}
	db, err := sqldb.Open(ctx, "sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return sqldb.New(db, Dialect, "", cfg.Tables), nil
}

// listTables ignores schema; a SQLite file has a single namespace.
func listTables(ctx context.Context, db *sql.DB, _ string) ([]source.Table, error) {
	rs, err := db.QueryContext(ctx, `
SELECT name FROM sqlite_master
WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []source.Table
	for rs.Next() {
		var name string
		if err := rs.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, source.Table{Name: name, Location: sqldb.QuoteDouble(name)})
	}
	return out, rs.Err()
}
