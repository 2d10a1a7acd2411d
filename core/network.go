package core

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"slices"
	"time"

	"github.com/dustin/go-broadcast"
	"github.com/encodeous/dvr/perf"
	"github.com/encodeous/dvr/state"
)

var (
	ErrUnknownNode = errors.New("unknown node")
	ErrUnknownLink = errors.New("unknown link")
	ErrUnknownAddr = errors.New("address is not owned by any node")
	ErrNoRoute     = errors.New("no route to destination")
	ErrRoutingLoop = errors.New("routing loop detected")
)

// Link is a bidirectional link between two simulated routers
type Link struct {
	A, B   *LinkEnd
	Up     bool
	Weight state.Metric
	queue  []outgoing
}

func (l *Link) String() string {
	// each end records the node across from it
	return fmt.Sprintf("%d-%d", l.B.Peer, l.A.Peer)
}

type outgoing struct {
	from state.NodeId
	end  *LinkEnd // the sending end
	pkt  []byte
}

// RouteChange is published to subscribers whenever a router's table changes
type RouteChange struct {
	Tick  state.Tick
	Node  state.NodeId
	Event RouterEvent
	Desc  string
}

// Network is a deterministic tick driven simulation of routers connected by links.
// It must only be used from one goroutine.
type Network struct {
	cfg     state.SimCfg
	log     *slog.Logger
	tick    state.Tick
	Routers map[state.NodeId]*SimRouter
	order   []state.NodeId
	Links   []*Link
	events  map[state.Tick][]state.EventCfg
	trace   broadcast.Broadcaster
	// lastChange is the last tick any routing table changed
	lastChange state.Tick
}

func NewNetwork(cfg state.SimCfg, log *slog.Logger) (*Network, error) {
	cfg.Nodes = slices.Clone(cfg.Nodes)
	state.ExpandConfig(&cfg)
	err := state.ConfigValidator(&cfg)
	if err != nil {
		return nil, err
	}
	n := &Network{
		cfg:     cfg,
		log:     log,
		Routers: make(map[state.NodeId]*SimRouter),
		events:  make(map[state.Tick][]state.EventCfg),
		trace:   broadcast.NewBroadcaster(state.TraceBufferSize),
	}
	for _, node := range cfg.Nodes {
		n.Routers[node.Id] = newSimRouter(n, node.Id, log)
		n.order = append(n.order, node.Id)
	}
	slices.Sort(n.order)

	links, err := cfg.AllLinks()
	if err != nil {
		_ = n.Close()
		return nil, err
	}
	for _, lc := range links {
		l := &Link{Up: !lc.Down, Weight: lc.Weight}
		l.A = n.Routers[lc.A].attach(l, lc.B)
		l.B = n.Routers[lc.B].attach(l, lc.A)
		n.Links = append(n.Links, l)
	}

	// every router knows which node owns which prefix, this plays the role of DNS/ARP for Trace
	for _, node := range cfg.Nodes {
		for _, p := range node.Prefixes {
			for _, r := range n.Routers {
				r.PrefixTable.Insert(p.Masked(), node.Id)
			}
		}
	}

	for _, ev := range cfg.Events {
		n.events[ev.At] = append(n.events[ev.At], ev)
	}

	for _, id := range n.order {
		n.Routers[id].Algo.Initialize()
	}
	n.log.Debug("network created", "nodes", len(n.order), "links", len(n.Links))
	return n, nil
}

func (r *SimRouter) attach(l *Link, peer state.NodeId) *LinkEnd {
	end := &LinkEnd{
		Iface: state.IfaceId(len(r.Ifaces)),
		Link:  l,
		Peer:  peer,
	}
	r.Ifaces = append(r.Ifaces, end)
	return end
}

func (n *Network) Tick() state.Tick {
	return n.tick
}

func (n *Network) Config() state.SimCfg {
	return n.cfg
}

func (n *Network) Router(id state.NodeId) (*SimRouter, error) {
	r, ok := n.Routers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	return r, nil
}

// FindLink returns the link between a and b
func (n *Network) FindLink(a, b state.NodeId) (*Link, error) {
	for _, l := range n.Links {
		if l.A.Peer == a && l.B.Peer == b || l.A.Peer == b && l.B.Peer == a {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w: %d-%d", ErrUnknownLink, a, b)
}

func (n *Network) SetLinkState(a, b state.NodeId, up bool) error {
	l, err := n.FindLink(a, b)
	if err != nil {
		return err
	}
	if l.Up != up {
		n.log.Info("link state changed", "link", l, "up", up, "tick", n.tick)
	}
	l.Up = up
	return nil
}

func (n *Network) SetLinkWeight(a, b state.NodeId, weight state.Metric) error {
	if weight >= state.INF {
		return fmt.Errorf("link weight %d must be less than %d", weight, state.INF)
	}
	l, err := n.FindLink(a, b)
	if err != nil {
		return err
	}
	n.log.Info("link weight changed", "link", l, "weight", weight, "tick", n.tick)
	l.Weight = weight
	return nil
}

func (n *Network) applyEvents() error {
	for _, ev := range n.events[n.tick] {
		var err error
		switch {
		case ev.Down:
			err = n.SetLinkState(ev.A, ev.B, false)
		case ev.Up:
			err = n.SetLinkState(ev.A, ev.B, true)
		}
		if err == nil && ev.Weight != 0 {
			err = n.SetLinkWeight(ev.A, ev.B, ev.Weight)
		}
		if err != nil {
			return fmt.Errorf("event at tick %d: %w", ev.At, err)
		}
	}
	delete(n.events, n.tick)
	return nil
}

// Step advances the simulation by one tick
func (n *Network) Step() error {
	start := time.Now()
	defer func() {
		perf.Tick(time.Since(start))
	}()
	n.tick++
	err := n.applyEvents()
	if err != nil {
		return err
	}
	if n.tick%n.cfg.UpdateInterval != 0 {
		return nil
	}
	for _, id := range n.order {
		r := n.Routers[id]
		for _, pkt := range r.tidy() {
			pkt.end.Link.queue = append(pkt.end.Link.queue, pkt)
		}
	}
	n.deliver()
	for _, id := range n.order {
		r := n.Routers[id]
		if r.changed {
			n.lastChange = n.tick
			r.changed = false
		}
		perf.SetRouteCount(id, len(r.Algo.AllRoutes()))
	}
	return nil
}

// deliver hands every queued packet to the router on the other end of its link
func (n *Network) deliver() {
	for _, l := range n.Links {
		queue := l.queue
		l.queue = nil
		for _, pkt := range queue {
			if !l.Up {
				advertsDropped(pkt.from)
				continue
			}
			dst := l.A
			if pkt.end == l.A {
				dst = l.B
			}
			// the sender's peer owns the opposite end
			n.Routers[pkt.end.Peer].receive(dst.Iface, pkt.pkt)
		}
	}
}

// Run advances the simulation by the given number of ticks
func (n *Network) Run(ticks state.Tick) error {
	for range ticks {
		err := n.Step()
		if err != nil {
			return err
		}
	}
	return nil
}

// RunUntilStable steps until no routing table has changed for the given number of update intervals and
// no scheduled events remain. It returns the tick it stopped at and whether the network became stable.
func (n *Network) RunUntilStable(stableIntervals, maxTicks state.Tick) (state.Tick, bool, error) {
	start := n.tick
	for n.tick-start < maxTicks {
		err := n.Step()
		if err != nil {
			return n.tick, false, err
		}
		if len(n.events) == 0 && n.tick-n.lastChange >= stableIntervals*n.cfg.UpdateInterval {
			return n.tick, true, nil
		}
	}
	return n.tick, false, nil
}

// Trace follows next hops from src towards the owner of dst, returning every node visited
func (n *Network) Trace(src state.NodeId, dst netip.Addr) ([]state.NodeId, error) {
	cur, err := n.Router(src)
	if err != nil {
		return nil, err
	}
	owner, ok := cur.Owner(dst)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAddr, dst)
	}
	path := []state.NodeId{src}
	for cur.id != owner {
		nh, ok := cur.NextHop(owner)
		if !ok {
			return path, fmt.Errorf("%w: %d has no route to %d", ErrNoRoute, cur.id, owner)
		}
		if slices.Contains(path, nh) {
			loop := append(path, nh)
			return loop, fmt.Errorf("%w: %v", ErrRoutingLoop, loop)
		}
		path = append(path, nh)
		cur = n.Routers[nh]
	}
	return path, nil
}

// Subscribe registers ch to receive a RouteChange for every routing table change
func (n *Network) Subscribe(ch chan<- interface{}) {
	n.trace.Register(ch)
}

func (n *Network) Unsubscribe(ch chan<- interface{}) {
	n.trace.Unregister(ch)
}

func (n *Network) publish(c RouteChange) {
	n.trace.TrySubmit(c)
}

func (n *Network) ShowRoutes(w io.Writer) error {
	for _, id := range n.order {
		err := n.Routers[id].Algo.ShowRoutes(w)
		if err != nil {
			return err
		}
	}
	return nil
}

// Close releases the trace broadcaster, the network must not be used afterwards
func (n *Network) Close() error {
	for _, r := range n.Routers {
		r.Cleanup()
	}
	return n.trace.Close()
}
