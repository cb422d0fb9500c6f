package main

import (
	"database/sql"

	_ "github.com/lib/pq"
)

// sqlOpen opens a database/sql handle for golang-migrate, which drives
// migrations through database/sql rather than gorm.
func sqlOpen(dsn string) (*sql.DB, error) {
	return sql.Open("postgres", dsn)
}
