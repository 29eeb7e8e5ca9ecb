package task

// Handler is the consumer's per-id callback set. All methods run on the
// dispatch loop, and only while the manager is active.
type Handler[P, R any] interface {
	// CreateWork builds the body for a new run of id. Returning nil makes
	// StartTask fail with ErrNilWork.
	CreateWork(id int) Work[P, R]

	OnTaskProgress(id int, progress P)

	// OnTaskFinished receives a succeeded or failed outcome. The slot is already
	// IDLE, so IsTaskRunning(id) is false and StartTask(id) may be called again.
	OnTaskFinished(id int, outcome Outcome[R])

	OnTaskCancelled(id int)

	// OnTaskKilled reports a task that was outstanding when a previous consumer
	// was torn down and whose result is lost.
	OnTaskKilled(id int)
}

// HandlerFuncs implements Handler with optional function fields; nil fields are
// skipped.
type HandlerFuncs[P, R any] struct {
	Create    func(id int) Work[P, R]
	Progress  func(id int, progress P)
	Finished  func(id int, outcome Outcome[R])
	Cancelled func(id int)
	Killed    func(id int)
}

var _ Handler[int, int] = HandlerFuncs[int, int]{}

func (h HandlerFuncs[P, R]) CreateWork(id int) Work[P, R] {
	if h.Create == nil {
		return nil
	}
	return h.Create(id)
}

func (h HandlerFuncs[P, R]) OnTaskProgress(id int, progress P) {
	if h.Progress != nil {
		h.Progress(id, progress)
	}
}

func (h HandlerFuncs[P, R]) OnTaskFinished(id int, outcome Outcome[R]) {
	if h.Finished != nil {
		h.Finished(id, outcome)
	}
}

func (h HandlerFuncs[P, R]) OnTaskCancelled(id int) {
	if h.Cancelled != nil {
		h.Cancelled(id)
	}
}

func (h HandlerFuncs[P, R]) OnTaskKilled(id int) {
	if h.Killed != nil {
		h.Killed(id)
	}
}
