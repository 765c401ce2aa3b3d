package coordinator

import (
	"sync"
	"time"

	"github.com/loganrhyne/ledcoord/wire"
)

// SessionTracker caches what the visualization engine reports about itself.
// It is purely reactive: nothing in here predicts or extrapolates, staleness
// shows through UpdatedAt and is corrected only by the next report. Reads
// may come from outside the coordinator loop (pattern validation, status
// pages), hence the lock.
type SessionTracker struct {
	mu        sync.RWMutex
	current   *wire.VisualizationInfo
	patterns  []wire.PatternInfo
	updatedAt time.Time
}

// NewSessionTracker starts with the hardware engine's built-in pattern set
// so selection can be validated before the first status report arrives.
func NewSessionTracker() *SessionTracker {
	return &SessionTracker{patterns: wire.DefaultPatterns()}
}

// Absorb stores a periodic visualization_status report.
func (s *SessionTracker) Absorb(status wire.VisualizationStatus, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &wire.VisualizationInfo{
		Pattern:       status.Pattern,
		Name:          status.Name,
		Duration:      status.Duration,
		TimeRemaining: status.TimeRemaining,
	}
	if len(status.AvailableVisualizations) > 0 {
		s.patterns = status.AvailableVisualizations
	}
	s.updatedAt = now
}

// AbsorbInfo stores the visualization block of an led_status report.
func (s *SessionTracker) AbsorbInfo(info *wire.VisualizationInfo, now time.Time) {
	if info == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *info
	s.current = &copied
	s.updatedAt = now
}

// Current returns a copy of the last reported session, or nil before the
// first report.
func (s *SessionTracker) Current() *wire.VisualizationInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	copied := *s.current
	return &copied
}

// Patterns returns the selectable pattern set.
func (s *SessionTracker) Patterns() []wire.PatternInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret := make([]wire.PatternInfo, len(s.patterns))
	copy(ret, s.patterns)
	return ret
}

// Knows reports whether the pattern id is part of the known pattern set.
func (s *SessionTracker) Knows(pattern string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.patterns {
		if p.ID == pattern {
			return true
		}
	}
	return false
}

// UpdatedAt returns the time of the last absorbed report.
func (s *SessionTracker) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}
