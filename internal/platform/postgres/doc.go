// Package postgres provides the PostgreSQL implementation of
// store.SnapshotStore, the goose migrations for its schema, and the mapping of
// driver errors to store sentinels.
package postgres
