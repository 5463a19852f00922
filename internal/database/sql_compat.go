package database

import "strings"

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite3"
)

// NormalizeDriver maps driver aliases onto the registered database/sql names.
func NormalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pgsql", "pq":
		return DriverPostgres
	case "mysql", "mariadb":
		return DriverMySQL
	case "sqlite", "sqlite3":
		return DriverSQLite
	default:
		return strings.ToLower(strings.TrimSpace(driver))
	}
}

// IsMySQL returns true if driver names MySQL/MariaDB
func IsMySQL(driver string) bool {
	return NormalizeDriver(driver) == DriverMySQL
}

// IsPostgreSQL returns true if driver names PostgreSQL
func IsPostgreSQL(driver string) bool {
	return NormalizeDriver(driver) == DriverPostgres
}

// IsSQLite returns true if driver names SQLite
func IsSQLite(driver string) bool {
	return NormalizeDriver(driver) == DriverSQLite
}
