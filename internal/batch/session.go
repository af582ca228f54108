package batch

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle of a batch session.
type State string

const (
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCancelled State = "cancelled"
	StateCompleted State = "completed"
)

// Session tracks one scheduler-managed run over an ordered list of item ids.
// All fields behind the mutex are owned by the scheduler that created the
// session; consumers only ever see Snapshot copies.
type Session struct {
	mu   sync.Mutex
	cond *sync.Cond

	id           string
	itemIDs      []int64
	currentIndex int
	completed    []int64
	failed       []int64
	skipped      []int64
	state        State
	startedAt    time.Time
	finishedAt   time.Time
}

func newSession(itemIDs []int64) *Session {
	ids := make([]int64, len(itemIDs))
	copy(ids, itemIDs)
	s := &Session{
		id:        uuid.NewString(),
		itemIDs:   ids,
		state:     StateRunning,
		startedAt: time.Now().UTC(),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// ID returns the session identifier handed back to control callers.
func (s *Session) ID() string {
	return s.id
}

// claimNext hands out the next unclaimed item id. Claiming is the single
// mutation point for currentIndex, so no two workers ever receive the same
// id and progress advances monotonically. Workers block here while the
// session is paused and stop claiming once it is cancelled or drained.
func (s *Session) claimNext() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.state == StatePaused {
		s.cond.Wait()
	}
	if s.state != StateRunning || s.currentIndex >= len(s.itemIDs) {
		return 0, false
	}
	id := s.itemIDs[s.currentIndex]
	s.currentIndex++
	return id, true
}

func (s *Session) markCompleted(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, id)
}

func (s *Session) markFailed(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, id)
}

func (s *Session) markSkipped(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped = append(s.skipped, id)
}

// pause stops workers from claiming new items. Items already mid-flight run
// to completion.
func (s *Session) pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return false
	}
	s.state = StatePaused
	return true
}

func (s *Session) resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return false
	}
	s.state = StateRunning
	s.cond.Broadcast()
	return true
}

// cancel marks every still-unclaimed id as skipped and wakes paused workers
// so they observe the cancellation.
func (s *Session) cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCancelled || s.state == StateCompleted {
		return false
	}
	s.skipped = append(s.skipped, s.itemIDs[s.currentIndex:]...)
	s.currentIndex = len(s.itemIDs)
	s.state = StateCancelled
	s.cond.Broadcast()
	return true
}

// finish closes out the session once every worker has returned. A cancelled
// session keeps its state; anything else is completed.
func (s *Session) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateCancelled {
		s.state = StateCompleted
	}
	s.finishedAt = time.Now().UTC()
}

// Snapshot is a point-in-time copy of session progress, safe to hand to
// polling consumers.
type Snapshot struct {
	ID           string
	State        State
	Total        int
	CurrentIndex int
	Completed    []int64
	Failed       []int64
	Skipped      []int64
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Progress returns completion as a percentage of handled items.
func (s Snapshot) Progress() float64 {
	if s.Total == 0 {
		return 100
	}
	handled := len(s.Completed) + len(s.Failed) + len(s.Skipped)
	return float64(handled) / float64(s.Total) * 100
}

// Done reports whether the session has stopped for good.
func (s Snapshot) Done() bool {
	return s.State == StateCompleted || s.State == StateCancelled
}

// Snapshot copies the session's current progress under the lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:           s.id,
		State:        s.state,
		Total:        len(s.itemIDs),
		CurrentIndex: s.currentIndex,
		Completed:    append([]int64(nil), s.completed...),
		Failed:       append([]int64(nil), s.failed...),
		Skipped:      append([]int64(nil), s.skipped...),
		StartedAt:    s.startedAt,
		FinishedAt:   s.finishedAt,
	}
}
