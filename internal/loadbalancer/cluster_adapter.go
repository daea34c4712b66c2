package loadbalancer

import (
	"context"

	"go.uber.org/zap"
)

// ClusterAdapter bridges ClusterBalancer's context-taking, erroring API onto
// the synchronous {AtCapacity, Acquire, MaxPerAgent} shape the Dispatcher
// uses (dispatcher.LoadBalancer), so a Redis-backed cluster can be swapped
// in for the in-process Balancer without the Dispatcher itself taking on a
// context or error at the call site.
//
// It fails open: a Redis error is logged and treated as "not at capacity" /
// "acquired", since a cluster outage must not stall every Dispatcher in the
// fleet. Capacity enforcement then degrades to whatever the in-process
// semaphore inside the executor otherwise provides.
type ClusterAdapter struct {
	cluster *ClusterBalancer
	log     *zap.SugaredLogger
}

// NewClusterAdapter wraps cluster for use as a dispatcher.LoadBalancer. A
// nil logger is replaced with a no-op one.
func NewClusterAdapter(cluster *ClusterBalancer, log *zap.SugaredLogger) *ClusterAdapter {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ClusterAdapter{cluster: cluster, log: log}
}

// AtCapacity reports the agent's shared cluster-wide load, failing open
// (false) if Redis is unreachable.
func (a *ClusterAdapter) AtCapacity(agentID string) bool {
	atCapacity, err := a.cluster.AtCapacity(context.Background(), agentID)
	if err != nil {
		a.log.Warnw("cluster load balancer unreachable, failing open", "agent_id", agentID, "error", err)
		return false
	}
	return atCapacity
}

// Acquire increments the shared counter and returns a release func that
// decrements it. Both legs fail open: an unreachable Redis never blocks or
// panics the caller.
func (a *ClusterAdapter) Acquire(agentID string) func() {
	release, err := a.cluster.Acquire(context.Background(), agentID)
	if err != nil {
		a.log.Warnw("cluster load balancer acquire failed, failing open", "agent_id", agentID, "error", err)
		return func() {}
	}
	return func() {
		if err := release(context.Background()); err != nil {
			a.log.Warnw("cluster load balancer release failed", "agent_id", agentID, "error", err)
		}
	}
}

// MaxPerAgent delegates to the underlying ClusterBalancer.
func (a *ClusterAdapter) MaxPerAgent() uint32 { return a.cluster.MaxPerAgent() }
