package queue

import (
	"sync"
	"time"
)

// Gate defaults. At most four jobs execute at once and at most four
// admissions start within any trailing sixty second interval.
const (
	DefaultMaxConcurrent = 4
	DefaultMaxPerWindow  = 4
	DefaultWindow        = 60 * time.Second
)

// Gate is the sliding-window admission control. It owns the collection of
// admission timestamps; job state lives in the Store.
type Gate struct {
	mu            sync.Mutex
	admissions    []time.Time
	maxConcurrent int
	maxPerWindow  int
	window        time.Duration
}

func NewGate(maxConcurrent, maxPerWindow int, window time.Duration) *Gate {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if maxPerWindow <= 0 {
		maxPerWindow = DefaultMaxPerWindow
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Gate{
		maxConcurrent: maxConcurrent,
		maxPerWindow:  maxPerWindow,
		window:        window,
	}
}

// Prune drops admission timestamps that have aged out of the window and
// reports whether anything was dropped. The scheduler defers admission to the
// next tick whenever a prune changed the set, so a single tick never decides
// against a set it just mutated.
func (g *Gate) Prune(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	kept := g.admissions[:0]
	for _, t := range g.admissions {
		if now.Sub(t) < g.window {
			kept = append(kept, t)
		}
	}
	pruned := len(kept) != len(g.admissions)
	g.admissions = kept
	return pruned
}

// CanAdmit reports whether a new job may start given the current number of
// processing jobs and the in-window admission count.
func (g *Gate) CanAdmit(processing int, now time.Time) bool {
	if processing >= g.maxConcurrent {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	inWindow := 0
	for _, t := range g.admissions {
		if now.Sub(t) < g.window {
			inWindow++
		}
	}
	return inWindow < g.maxPerWindow
}

// Record registers an admission against the window.
func (g *Gate) Record(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.admissions = append(g.admissions, now)
}

// InWindow returns the current number of recorded admissions inside the
// window.
func (g *Gate) InWindow(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for _, t := range g.admissions {
		if now.Sub(t) < g.window {
			n++
		}
	}
	return n
}
