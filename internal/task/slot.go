package task

// SlotState is the per-id delivery state.
type SlotState string

const (
	SlotIdle      SlotState = "idle"
	SlotRunning   SlotState = "running"
	SlotComplete  SlotState = "complete"
	SlotCancelled SlotState = "cancelled"
	SlotKilled    SlotState = "killed"
)

// String returns the string representation of the slot state.
func (s SlotState) String() string {
	return string(s)
}

// Outstanding reports whether the slot is still waiting for a delivery.
func (s SlotState) Outstanding() bool {
	return s != SlotIdle
}

// slot tracks one id. It is only touched on the dispatch loop.
type slot[P, R any] struct {
	id      int
	state   SlotState
	handler Handler[P, R]
	unit    *Unit[P, R]

	progress    P
	hasProgress bool

	outcome Outcome[R]
}

func newSlot[P, R any](id int) *slot[P, R] {
	return &slot[P, R]{id: id, state: SlotIdle}
}

// owns reports whether u is the slot's current run. Events from a unit the
// slot has already let go of are stale.
func (s *slot[P, R]) owns(u *Unit[P, R]) bool {
	return s.unit == u && s.state == SlotRunning
}

func (s *slot[P, R]) clearProgress() {
	var zero P
	s.progress = zero
	s.hasProgress = false
}

// reset returns the slot to IDLE, dropping the unit and anything undelivered.
// The handler stays bound.
func (s *slot[P, R]) reset() {
	s.state = SlotIdle
	s.unit = nil
	s.clearProgress()
	s.outcome = Outcome[R]{}
}
