package partition

import (
	"fmt"
	"sync"
	"time"
)

// csnTimeLayout renders the time part of a CSN with microsecond precision.
const csnTimeLayout = "20060102150405.000000Z"

// CSNGenerator produces change sequence numbers of the form
//
//	YYYYMMDDhhmmss.uuuuuuZ#counter#replica#opnum
//
// with the counter, replica and operation number in lower-case hex (6, 3 and
// 6 digits). Successive CSNs of one generator are strictly increasing, also
// when the clock stalls or steps backwards: the counter then advances on top
// of the last timestamp.
type CSNGenerator struct {
	mu      sync.Mutex
	replica int
	now     func() time.Time

	last    time.Time
	counter int
}

// NewCSNGenerator returns a generator for the given replica ID (0-4095).
// A nil clock uses time.Now.
func NewCSNGenerator(replica int, now func() time.Time) *CSNGenerator {
	if now == nil {
		now = time.Now
	}
	return &CSNGenerator{replica: replica & 0xfff, now: now}
}

// Next returns the next CSN.
func (g *CSNGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.now().UTC().Truncate(time.Microsecond)
	if t.After(g.last) {
		g.last = t
		g.counter = 0
	} else {
		g.counter++
		if g.counter > 0xffffff {
			g.last = g.last.Add(time.Microsecond)
			g.counter = 0
		}
	}
	return fmt.Sprintf("%s#%06x#%03x#%06x", g.last.Format(csnTimeLayout), g.counter, g.replica, 0)
}
