package sql

import (
	"database/sql"

	"github.com/XSAM/otelsql"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Open opens a database whose statements are traced with otelsql. Combined
// with a tracebridge.Bridge span processor, those statements show up in the
// debug section of the request that ran them.
func Open(driverName, dataSourceName string) (*sql.DB, error) {
	db, err := otelsql.Open(driverName, dataSourceName, otelsql.WithAttributes(systemAttribute(driverName)))
	if err != nil {
		return nil, err
	}

	return db, nil
}

// systemAttribute maps a database/sql driver name to its db.system value.
func systemAttribute(driverName string) attribute.KeyValue {
	switch driverName {
	case "sqlite3":
		return semconv.DBSystemSqlite
	case "mysql":
		return semconv.DBSystemMySQL
	case "postgres", "pgx":
		return semconv.DBSystemPostgreSQL
	default:
		return semconv.DBSystemOtherSQL
	}
}
