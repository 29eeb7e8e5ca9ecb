// Package testdb provides utilities for database integration tests. Tests that
// need PostgreSQL call OpenTestDB, which skips unless DATABASE_URL is set.
package testdb
