package itemgen

import (
	"sync"

	"github.com/abhisek/qbankgen/internal/llm"
)

// Usage is a snapshot of what a generator has spent.
type Usage struct {
	Attempts     int // model calls, successful or not
	Failed       int // model calls that returned an error
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// Meter accumulates usage across every attempt. Safe for concurrent use.
type Meter struct {
	mu sync.Mutex
	u  Usage
}

func (m *Meter) record(model string, u llm.Usage, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.u.Attempts++
	if err != nil {
		m.u.Failed++
	}
	m.u.InputTokens += u.InputTokens
	m.u.OutputTokens += u.OutputTokens
	m.u.CostUSD += llm.CostOf(model, u)
}

// Snapshot returns the usage so far.
func (m *Meter) Snapshot() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.u
}
