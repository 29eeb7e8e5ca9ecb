// Package events carries task lifecycle notifications out of the task manager.
//
// The manager emits a LifecycleEvent whenever a run starts, reports progress,
// reaches a terminal outcome or is replayed as killed. Observers such as the
// metrics collector implement EventHandler and are attached to an
// EventEmitter, so the task package never imports them directly.
package events
