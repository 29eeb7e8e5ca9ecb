// Package store defines the persistence boundary for outstanding task ids.
//
// A consumer that is torn down saves the ids it was still waiting on under a
// scope key; its replacement takes them back and hands them to the task
// manager as killed ids. Implementations live in internal/platform (postgres,
// redis); MemorySnapshotStore covers single-process use and tests.
package store
