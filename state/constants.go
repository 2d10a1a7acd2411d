package state

import "time"

const (
	// INF is the metric of an unreachable destination. It is a reserved value, not a cost.
	INF = Metric(60)
	// INFM is the largest metric that is not a retraction.
	INFM = INF - 1
)

var (
	// ExpireAfter is the number of update intervals a route may go unrefreshed before it is set to INF.
	ExpireAfter = Tick(6)
	// RemoveAfter is the number of update intervals an INF route is kept (and advertised) before removal.
	RemoveAfter = Tick(4)

	DefaultUpdateInterval = Tick(1)
	DefaultLinkWeight     = Metric(1)
	DefaultTickDuration   = time.Millisecond * 500

	// StableIntervals is how many quiet update intervals RunUntilStable waits for
	StableIntervals = 2 * (ExpireAfter + RemoveAfter)

	WarnDedupTTL    = time.Second * 10
	TraceBufferSize = 1024
	SlowTick        = time.Millisecond * 4
)
