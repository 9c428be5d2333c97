// Package mssql reads SQL Server tables through github.com/microsoft/go-mssqldb.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mssqldb "github.com/microsoft/go-mssqldb"

	"datascan/internal/source"
	"datascan/internal/source/sqldb"
)

// Kind is the registry name of this backend.
const Kind = "mssql"

// DefaultSchema is used when the config names none.
const DefaultSchema = "dbo"

func init() {
	source.Register(Kind, New)
}

// Dialect describes SQL Server to sqldb.
var Dialect = sqldb.Dialect{
	Kind:       Kind,
	ListTables: listTables,
	Select:     topSelect,
	Count: func(table string) string {
		return "SELECT COUNT_BIG(*) FROM " + table
	},
	Convert: convert,
}

// New connects with the "sqlserver" driver.
func New(ctx context.Context, cfg source.Config) (source.Source, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mssql: missing dsn")
	}
	db, err := sqldb.Open(ctx, "sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	schema := cfg.Schema
	if schema == "" {
		schema = DefaultSchema
	}
	return sqldb.New(db, Dialect, schema, cfg.Tables), nil
}

func listTables(ctx context.Context, db *sql.DB, schema string) ([]source.Table, error) {
	rs, err := db.QueryContext(ctx, `
SELECT t.TABLE_NAME, COALESCE(CAST(ep.value AS NVARCHAR(4000)), '')
FROM INFORMATION_SCHEMA.TABLES t
LEFT JOIN sys.extended_properties ep
  ON ep.major_id = OBJECT_ID(QUOTENAME(t.TABLE_SCHEMA) + '.' + QUOTENAME(t.TABLE_NAME))
 AND ep.minor_id = 0
 AND ep.name = 'MS_Description'
WHERE t.TABLE_SCHEMA = @p1 AND t.TABLE_TYPE IN ('BASE TABLE', 'VIEW')
ORDER BY t.TABLE_NAME`, schema)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []source.Table
	for rs.Next() {
		var name, comment string
		if err := rs.Scan(&name, &comment); err != nil {
			return nil, err
		}
		out = append(out, source.Table{
			Name:     name,
			Comment:  comment,
			Location: Ident(schema) + "." + Ident(name),
		})
	}
	return out, rs.Err()
}

func topSelect(table string, limit int, columnsOnly bool) string {
	switch {
	case columnsOnly:
		return "SELECT TOP (0) * FROM " + table
	case limit > 0:
		return fmt.Sprintf("SELECT TOP (%d) * FROM %s", limit, table)
	default:
		return "SELECT * FROM " + table
	}
}

// convert renders uniqueidentifier columns in their canonical form; the
// driver hands them over as mixed-endian bytes.
func convert(ct *sql.ColumnType, v any) (string, bool) {
	b, ok := v.([]byte)
	if !ok || len(b) != 16 || ct.DatabaseTypeName() != "UNIQUEIDENTIFIER" {
		return "", false
	}
	var u mssqldb.UniqueIdentifier
	if err := u.Scan(b); err != nil {
		return "", false
	}
	return u.String(), true
}

// Ident bracket-quotes an identifier.
func Ident(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
