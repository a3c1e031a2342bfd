package server

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/morezero/hybrid-bridge/pkg/lifecycle"
)

const (
	maxRecentRejections = 50
	slowCallThreshold   = time.Second
)

// nameStats counts outcomes for one call name.
type nameStats struct {
	Name     string    `json:"name"`
	Resolved uint64    `json:"resolved"`
	Rejected uint64    `json:"rejected"`
	LastCode int       `json:"lastCode"`
	LastAt   time.Time `json:"lastAt"`
}

// callStats is the server's lifecycle.Monitor.
type callStats struct {
	mu     sync.Mutex
	byName map[string]*nameStats
	recent []lifecycle.Report
}

func newCallStats() *callStats {
	return &callStats{byName: make(map[string]*nameStats)}
}

func (c *callStats) OnResolved(r lifecycle.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.entryLocked(r)
	n.Resolved++
}

func (c *callStats) OnRejected(r lifecycle.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.entryLocked(r)
	n.Rejected++
	c.recent = append(c.recent, r)
	if over := len(c.recent) - maxRecentRejections; over > 0 {
		c.recent = append([]lifecycle.Report(nil), c.recent[over:]...)
	}
}

func (c *callStats) entryLocked(r lifecycle.Report) *nameStats {
	n, ok := c.byName[r.Name]
	if !ok {
		n = &nameStats{Name: r.Name}
		c.byName[r.Name] = n
	}
	n.LastCode = r.Code
	n.LastAt = r.End
	return n
}

// Snapshot returns per-name counters sorted by name.
func (c *callStats) Snapshot() []nameStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]nameStats, 0, len(c.byName))
	for _, n := range c.byName {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RecentRejections returns the latest rejected calls, newest first.
func (c *callStats) RecentRejections() []lifecycle.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]lifecycle.Report, len(c.recent))
	for i, r := range c.recent {
		out[len(c.recent)-1-i] = r
	}
	return out
}

// logSlowCall is the timing sink.
func logSlowCall(r lifecycle.TimingReport) {
	if r.Total < slowCallThreshold {
		return
	}
	slog.Warn(fmt.Sprintf("%s - slow call %s on session %s: total=%v queue=%v handler=%v code=%d",
		logPrefix, r.Name, r.SessionID, r.Total, r.QueueDelay, r.HandlerDuration, r.Code))
}
