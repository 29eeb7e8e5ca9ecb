// Package task runs background work on behalf of a transient consumer and
// delivers its progress and outcome only while that consumer is active.
//
// A Manager maps consumer-chosen integer ids to slots. Each slot moves through
// IDLE, RUNNING and one of COMPLETE, CANCELLED or KILLED, and returns to IDLE
// when its terminal event is delivered to the registered Handler. Work runs on
// an Executor (usually a WorkerPool); everything it reports is posted to a
// Loop, and the Manager and every Handler callback are confined to the
// goroutine that drives that Loop.
//
// Ids still outstanding when a consumer is torn down can be snapshotted with
// SnapshotOutstandingIDs and handed to the next Manager through
// RestoreKilledIDs; its first activation reports each of them once through
// OnTaskKilled.
package task
