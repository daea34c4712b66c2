// Package loadbalancer implements the Load Balancer (spec §4.5): per-agent
// in-flight counters the Dispatcher consults before handing a task to an
// agent.
package loadbalancer

import "sync"

// Balancer tracks how many ExecutionTasks are currently in flight per agent,
// capping each agent at MaxPerAgent concurrent executions.
type Balancer struct {
	mu          sync.Mutex
	inFlight    map[string]uint32
	maxPerAgent uint32
}

// New constructs a Balancer with the given per-agent concurrency cap.
func New(maxPerAgent uint32) *Balancer {
	return &Balancer{
		inFlight:    make(map[string]uint32),
		maxPerAgent: maxPerAgent,
	}
}

// GetAgentLoad returns the current in-flight count for agentID.
func (b *Balancer) GetAgentLoad(agentID string) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight[agentID]
}

// AtCapacity reports whether agentID is already at or above MaxPerAgent.
func (b *Balancer) AtCapacity(agentID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight[agentID] >= b.maxPerAgent
}

// Acquire increments agentID's in-flight count and returns a release func
// that must be called exactly once, regardless of the execution's outcome.
func (b *Balancer) Acquire(agentID string) (release func()) {
	b.mu.Lock()
	b.inFlight[agentID]++
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.inFlight[agentID] > 0 {
				b.inFlight[agentID]--
			}
			b.mu.Unlock()
		})
	}
}

// MaxPerAgent returns the configured per-agent concurrency cap.
func (b *Balancer) MaxPerAgent() uint32 { return b.maxPerAgent }
