package service

import (
	"sync/atomic"
	"time"
)

type State struct {
	ready     atomic.Bool
	startedAt time.Time

	degradedPersist atomic.Bool // statestore в memory-only режиме
	stopGap         atomic.Bool // позиция открыта без стоп-ордера
	lastCycleUnix   atomic.Int64
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetDegradedPersist(v bool) { s.degradedPersist.Store(v) }
func (s *State) DegradedPersist() bool     { return s.degradedPersist.Load() }

func (s *State) SetStopGap(v bool) { s.stopGap.Store(v) }
func (s *State) StopGap() bool     { return s.stopGap.Load() }

func (s *State) TouchCycle(t time.Time) { s.lastCycleUnix.Store(t.Unix()) }
func (s *State) LastCycle() time.Time {
	u := s.lastCycleUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
