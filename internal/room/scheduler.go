package room

import (
	"sync"
	"time"

	"ojack/blackjack"
)

// Fingerprint captures the room state a delayed action was scheduled
// against. The action only fires if a fresh load still matches, so a
// concurrent writer invalidates the timer instead of racing it.
type Fingerprint struct {
	Status blackjack.GameStatus
	Turn   int
	Round  int
}

func FingerprintOf(r *blackjack.Room) Fingerprint {
	return Fingerprint{
		Status: r.GameStatus,
		Turn:   r.CurrentTurnIndex,
		Round:  r.RoundNumber,
	}
}

// Scheduler holds at most one pending delayed action per room.
// Scheduling again replaces the previous timer.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[string]*time.Timer)}
}

func (s *Scheduler) Schedule(roomID string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if t, ok := s.timers[roomID]; ok {
		t.Stop()
	}
	s.timers[roomID] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, roomID)
		stopped := s.stopped
		s.mu.Unlock()
		if !stopped {
			fn()
		}
	})
}

func (s *Scheduler) Cancel(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[roomID]; ok {
		t.Stop()
		delete(s.timers, roomID)
	}
}

// Stop cancels every pending timer and rejects new ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
