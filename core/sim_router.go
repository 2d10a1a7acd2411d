package core

import (
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/encodeous/dvr/perf"
	"github.com/encodeous/dvr/state"
	"github.com/gaissmai/bart"
	"github.com/jellydator/ttlcache/v3"
)

// SimRouter is a simulated node. It implements Router for the routing algorithm it runs.
type SimRouter struct {
	id     state.NodeId
	net    *Network
	log    *slog.Logger
	Algo   RoutingAlgorithm
	Ifaces []*LinkEnd
	// PrefixTable maps every advertised prefix in the network to the node that owns it
	PrefixTable bart.Table[state.NodeId]
	warnDedup   *ttlcache.Cache[string, struct{}]
	changed     bool
}

// LinkEnd is one side of a Link, as seen by the router that owns the interface
type LinkEnd struct {
	Iface state.IfaceId
	Link  *Link
	Peer  state.NodeId
}

func newSimRouter(n *Network, id state.NodeId, log *slog.Logger) *SimRouter {
	r := &SimRouter{
		id:  id,
		net: n,
		log: log.With("node", id),
		warnDedup: ttlcache.New[string, struct{}](
			ttlcache.WithTTL[string, struct{}](state.WarnDedupTTL),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
	}
	dv := NewDistanceVector()
	dv.SetRouter(r)
	dv.SetUpdateInterval(n.cfg.UpdateInterval)
	dv.SetPoisonReverse(n.cfg.PoisonReverse)
	dv.SetAllowExpire(n.cfg.AllowExpire)
	r.Algo = dv
	return r
}

func (r *SimRouter) Id() state.NodeId {
	return r.id
}

func (r *SimRouter) Now() state.Tick {
	return r.net.tick
}

func (r *SimRouter) iface(iface state.IfaceId) *LinkEnd {
	if iface < 0 || int(iface) >= len(r.Ifaces) {
		return nil
	}
	return r.Ifaces[iface]
}

func (r *SimRouter) IfaceUp(iface state.IfaceId) bool {
	end := r.iface(iface)
	return end != nil && end.Link.Up
}

func (r *SimRouter) IfaceWeight(iface state.IfaceId) state.Metric {
	end := r.iface(iface)
	if end == nil {
		r.Log(UnknownInterface, "weight requested for unknown interface", "iface", iface)
		return state.INF
	}
	return end.Link.Weight
}

func (r *SimRouter) Log(event RouterEvent, desc string, args ...any) {
	if event.ChangesTable() {
		r.changed = true
		perf.RouteChanged(r.id, event.String())
		r.net.publish(RouteChange{Tick: r.net.tick, Node: r.id, Event: event, Desc: desc})
	}
	if event.IsWarn() {
		key := fmt.Sprint(event, desc, args)
		if r.warnDedup.Has(key) {
			return
		}
		r.warnDedup.Set(key, struct{}{}, ttlcache.DefaultTTL)
		r.log.Warn(fmt.Sprintf("%s %s", event.String(), desc), args...)
		return
	}
	r.log.Debug(fmt.Sprintf("%s %s", event.String(), desc), args...)
}

// NextHop returns the node packets for dst are forwarded to, or false if dst is unreachable or ourselves
func (r *SimRouter) NextHop(dst state.NodeId) (state.NodeId, bool) {
	nh := r.Algo.NextHop(dst)
	if !nh.IsIface() {
		return 0, false
	}
	end := r.iface(nh.Iface)
	if end == nil {
		r.Log(InconsistentState, "route through unknown interface", "dst", dst, "iface", nh.Iface)
		return 0, false
	}
	return end.Peer, true
}

// Owner resolves addr to the node advertising the longest matching prefix
func (r *SimRouter) Owner(addr netip.Addr) (state.NodeId, bool) {
	return r.PrefixTable.Lookup(addr)
}

// receive decodes an encoded advertisement that arrived on iface and applies it
func (r *SimRouter) receive(iface state.IfaceId, pkt []byte) {
	adv, err := unmarshalAdvert(pkt)
	if err != nil {
		r.Log(MalformedAdvert, "dropped malformed advertisement", "iface", iface, "err", err)
		return
	}
	r.Algo.ProcessAdvert(adv, iface)
}

// tidy runs the periodic work of the router: the timer sweep, then one advertisement per interface
func (r *SimRouter) tidy() []outgoing {
	r.Algo.TidyTable()
	out := make([]outgoing, 0, len(r.Ifaces))
	for _, end := range r.Ifaces {
		adv, ok := r.Algo.GenerateAdvert(end.Iface)
		if !ok {
			continue
		}
		out = append(out, outgoing{from: r.id, end: end, pkt: marshalAdvert(adv)})
	}
	return out
}

func (r *SimRouter) Cleanup() {
	r.warnDedup.DeleteAll()
}
