// Package runstate tracks what a long-running pipeline process has already
// handled: the set of minute keys averaged so far and the last observed UTC
// day. It is passed explicitly into each batch pass rather than living as
// module-level state, and the day-rollover reset is an explicit transition
// check at the start of a pass.
//
// The set is process-local only. It prevents duplicate work within a run;
// across restarts, idempotent output paths make re-processing harmless.
package runstate

import (
	"time"

	"github.com/kho-data/aurora.report/internal/spectro"
)

// State is the per-process batch-pass context.
type State struct {
	day       spectro.Date
	processed map[string]struct{}
}

// New returns an empty state. The first BeginPass establishes the day.
func New() *State {
	return &State{processed: make(map[string]struct{})}
}

// BeginPass records the observed UTC day for a pass starting at now.
// When the day has changed since the previous pass, the processed-minute
// set is cleared; the return reports whether that rollover happened.
func (s *State) BeginPass(now time.Time) bool {
	day := spectro.DateOf(now)
	if day == s.day {
		return false
	}
	rolled := s.day != spectro.Date{}
	s.day = day
	s.processed = make(map[string]struct{})
	return rolled
}

// Processed reports whether the minute key was already handled this day.
func (s *State) Processed(k spectro.MinuteKey) bool {
	_, ok := s.processed[k.String()]
	return ok
}

// Mark records the minute key as handled.
func (s *State) Mark(k spectro.MinuteKey) {
	s.processed[k.String()] = struct{}{}
}

// Len returns the number of minute keys handled this day.
func (s *State) Len() int {
	return len(s.processed)
}
