package core

import (
	"github.com/encodeous/dvr/state"
)

// AddMetric adds two metrics, saturating at state.INF
func AddMetric(a, b state.Metric) state.Metric {
	if a >= state.INF || b >= state.INF {
		return state.INF
	}
	return min(state.INF, a+b)
}
