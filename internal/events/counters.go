package events

import (
	"sync"
	"time"

	"qrgate/internal/model"
)

// Counters tallies evaluated scans per verdict.
type Counters struct {
	mu        sync.RWMutex
	total     int
	opened    int
	byStatus  map[model.Status]int
	updatedAt time.Time
}

func NewCounters() *Counters {
	return &Counters{byStatus: make(map[model.Status]int)}
}

func (c *Counters) Observe(ev model.AccessEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total++
	c.byStatus[ev.Status]++
	if ev.Opened {
		c.opened++
	}
	c.updatedAt = time.Now().UTC()
}

func (c *Counters) Get() (model.Counters, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	status := make(map[model.Status]int, len(c.byStatus))
	for k, v := range c.byStatus {
		status[k] = v
	}
	return model.Counters{Total: c.total, Status: status, Opened: c.opened}, c.updatedAt
}

func (c *Counters) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total = 0
	c.opened = 0
	c.byStatus = make(map[model.Status]int)
	c.updatedAt = time.Time{}
}
