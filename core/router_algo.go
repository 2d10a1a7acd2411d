package core

// This file makes references to RFC 2453 (RIP version 2):
// https://datatracker.ietf.org/doc/html/rfc2453

import (
	"github.com/encodeous/dvr/state"
)

// Router is the node that owns a route table. The engine only reads from it.
type Router interface {
	Id() state.NodeId
	Now() state.Tick
	IfaceUp(iface state.IfaceId) bool
	IfaceWeight(iface state.IfaceId) state.Metric
	Log(event RouterEvent, desc string, args ...any)
}

// InitTable resets the table to a single entry for ourselves
func InitTable(s *state.RouterState, r Router) {
	s.Id = r.Id()
	s.Routes = make(map[state.NodeId]state.RouteEntry)
	s.Routes[s.Id] = state.RouteEntry{
		Dest:    s.Id,
		Out:     state.Local(),
		Metric:  0,
		Updated: r.Now(),
	}
	r.Log(TableInitialized, "route table initialized", "id", s.Id)
}

// NextHop returns the interface to forward packets for dst on. Our own entry yields state.Local().
func NextHop(s *state.RouterState, dst state.NodeId) state.NextHop {
	entry, ok := s.Routes[dst]
	if !ok || entry.Metric == state.INF {
		return state.Unknown()
	}
	return entry.Out
}

// candidateMetric is the metric of a route learned over a link of the given weight
func candidateMetric(reported, weight state.Metric) state.Metric {
	if reported >= state.INF {
		return state.INF
	}
	return AddMetric(reported, weight)
}

// HandleAdvert applies a neighbour's advertisement received on iface to the table
func HandleAdvert(s *state.RouterState, r Router, iface state.IfaceId, adv state.Advertisement) {
	// 3.9.2 Response Messages
	//   Once the entry has been validated, update the metric by adding the
	//   cost of the network on which the message arrived.  If the result is
	//   greater than infinity, use infinity.
	weight := r.IfaceWeight(iface)
	now := r.Now()
	for _, e := range adv.Entries {
		if e.Dest == s.Id {
			continue // our own entry is never replaced
		}
		handleAdvEntry(s, r, e.Dest, iface, candidateMetric(e.Metric, weight), now)
	}
}

func handleAdvEntry(s *state.RouterState, r Router, dst state.NodeId, iface state.IfaceId, metric state.Metric, now state.Tick) {
	via := state.Via(iface)
	entry, ok := s.Routes[dst]
	if !ok {
		//   If there is no existing route, add this route to the routing table,
		//   unless the metric is infinity (there is no point in adding a route
		//   which is unusable).
		if metric == state.INF {
			return
		}
		s.Routes[dst] = state.RouteEntry{
			Dest:    dst,
			Out:     via,
			Metric:  metric,
			Updated: now,
		}
		r.Log(RouteAdded, "new route", "dst", dst, "iface", iface, "metric", metric)
		return
	}

	//   If the datagram is from the same router as the existing route,
	//   reinitialize the timeout.  Then compare the metrics. If the datagram is
	//   from the same router as the existing route, and the new metric is
	//   different than the old one; or, if the new metric is lower than the
	//   old one; do the following actions
	if entry.Out != via && entry.Metric <= metric {
		return // an equal or better route through another interface is kept
	}
	if entry.Metric == state.INF && metric == state.INF {
		// the route is already dead, refreshing it would keep restarting the garbage-collection timer
		return
	}

	old := entry
	entry.Out = via
	entry.Metric = metric
	entry.Updated = now
	s.Routes[dst] = entry

	switch {
	case old.Out != via:
		r.Log(RouteImproved, "switched to a better route", "dst", dst, "from", old.Out, "to", iface, "metric", metric)
	case metric == state.INF:
		r.Log(RouteRetracted, "route retracted by next hop", "dst", dst, "iface", iface)
	case old.Metric != metric:
		r.Log(RouteUpdated, "route metric changed", "dst", dst, "iface", iface, "old", old.Metric, "metric", metric)
	}
}

// TidyTable runs the periodic timer sweep, it should be called once per update interval
func TidyTable(s *state.RouterState, r Router) {
	now := r.Now()

	// routes through an interface that went down are unusable right away
	for dst, entry := range s.Routes {
		if !entry.Out.IsIface() || entry.Metric == state.INF {
			continue
		}
		if !r.IfaceUp(entry.Out.Iface) {
			entry.Metric = state.INF
			entry.Updated = now
			s.Routes[dst] = entry
			r.Log(LinkDownPoisoned, "link down, route poisoned", "dst", dst, "iface", entry.Out.Iface)
		}
	}

	if !s.AllowExpire {
		return
	}

	// 3.8 Timers
	//   The timeout is initialized when a route is established, and any time
	//   an update message is received for the route.  If 180 seconds elapse
	//   from the last time the timeout was initialized, the route is
	//   considered to have expired, and the deletion process begins for that
	//   route.
	interval := max(s.UpdateInterval, 1)
	for dst, entry := range s.Routes {
		if entry.Out.Kind == state.HopLocal {
			continue
		}
		age := now - entry.Updated
		if entry.Metric == state.INF {
			if age >= state.RemoveAfter*interval {
				delete(s.Routes, dst)
				r.Log(StaleRouteDropped, "stale route dropped", "dst", dst, "route", entry)
			}
		} else if age >= state.ExpireAfter*interval {
			entry.Metric = state.INF
			entry.Updated = now
			s.Routes[dst] = entry
			r.Log(RouteExpired, "route expired", "dst", dst, "iface", entry.Out.Iface)
		}
	}
}

// GenerateAdvert builds the advertisement to send on iface. It returns false if the interface is down.
func GenerateAdvert(s *state.RouterState, r Router, iface state.IfaceId) (state.Advertisement, bool) {
	if !r.IfaceUp(iface) {
		return state.Advertisement{}, false
	}
	adv := state.Advertisement{
		Src:     s.Id,
		Entries: make([]state.AdvEntry, 0, len(s.Routes)),
	}
	via := state.Via(iface)
	for _, entry := range s.AllRoutes() {
		metric := entry.Metric
		// 3.4.3 Split horizon with poisoned reverse
		//   Split horizon with poisoned reverse includes such routes in updates,
		//   but sets their metrics to infinity.
		if s.PoisonReverse && entry.Out == via {
			metric = state.INF
		}
		adv.Entries = append(adv.Entries, state.AdvEntry{Dest: entry.Dest, Metric: metric})
	}
	return adv, true
}
