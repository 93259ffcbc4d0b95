package testutil

import (
	"fmt"
	"sync"
	"time"
)

// ReferenceTime is the instant FixedClock starts at: a Monday morning inside
// working hours.
var ReferenceTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// StubClock is a cav.Clock that only moves when a test moves it. Safe for
// concurrent use, so services under test may read it from goroutines.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewStubClock creates a StubClock set to the given time.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock set to ReferenceTime.
func FixedClock() *StubClock {
	return NewStubClock(ReferenceTime)
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set jumps the clock to t, which may be earlier than the current time.
func (c *StubClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// StubIDGenerator issues event and backup IDs "id-1", "id-2", ... in order.
type StubIDGenerator struct {
	mu      sync.Mutex
	counter int
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return fmt.Sprintf("id-%d", g.counter)
}
