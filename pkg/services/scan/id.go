package scan

import (
	"fmt"
	"sync"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
)

const scanIDLayout = "20060102150405"

// IDGenerator hands out time-derived scan ids. Ids are unique within the
// process and never go back in time, even when the clock does.
type IDGenerator struct {
	clock domain.Clock

	mu   sync.Mutex
	last string
	seq  int
}

func NewIDGenerator(clock domain.Clock) *IDGenerator {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &IDGenerator{clock: clock}
}

func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	base := g.clock.Now().UTC().Format(scanIDLayout)
	if base > g.last {
		g.last = base
		g.seq = 0
		return "scan-" + base
	}
	g.seq++
	return fmt.Sprintf("scan-%s-%03d", g.last, g.seq)
}
