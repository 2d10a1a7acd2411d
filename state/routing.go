package state

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

type NodeId int64

type IfaceId int

// Tick is logical time. It is supplied by the router and only ever increases.
type Tick int64

// Metric is the cost of a route, INF means unreachable
type Metric uint32

type HopKind uint8

const (
	HopUnknown HopKind = iota
	HopLocal
	HopIface
)

// NextHop is where to send packets for a destination: nowhere known, ourselves, or out of an interface.
// NextHop values are comparable, so Via(1) == Via(1).
type NextHop struct {
	Kind  HopKind
	Iface IfaceId
}

func Unknown() NextHop {
	return NextHop{Kind: HopUnknown}
}

func Local() NextHop {
	return NextHop{Kind: HopLocal}
}

func Via(iface IfaceId) NextHop {
	return NextHop{Kind: HopIface, Iface: iface}
}

func (n NextHop) IsIface() bool {
	return n.Kind == HopIface
}

func (n NextHop) String() string {
	switch n.Kind {
	case HopLocal:
		return "local"
	case HopIface:
		return fmt.Sprintf("%d", n.Iface)
	default:
		return "unknown"
	}
}

type RouteEntry struct {
	Dest    NodeId
	Out     NextHop
	Metric  Metric
	Updated Tick // tick of the last change to Out or Metric
}

func (e RouteEntry) String() string {
	return fmt.Sprintf("d %d i %s m %d", e.Dest, e.Out, e.Metric)
}

// AdvEntry is a single (destination, metric) pair as exchanged between neighbours
type AdvEntry struct {
	Dest   NodeId
	Metric Metric
}

type Advertisement struct {
	Src     NodeId
	Entries []AdvEntry
}

func (a Advertisement) String() string {
	out := make([]string, 0, len(a.Entries))
	for _, e := range a.Entries {
		out = append(out, fmt.Sprintf("(%d, %d)", e.Dest, e.Metric))
	}
	return fmt.Sprintf("from %d: [%s]", a.Src, strings.Join(out, " "))
}

// RouterState holds the route table of a single router. It must only be accessed from one goroutine.
type RouterState struct {
	Id             NodeId
	Routes         map[NodeId]RouteEntry
	UpdateInterval Tick
	PoisonReverse  bool
	AllowExpire    bool
}

func NewRouterState(id NodeId) *RouterState {
	return &RouterState{
		Id:             id,
		Routes:         make(map[NodeId]RouteEntry),
		UpdateInterval: DefaultUpdateInterval,
	}
}

// AllRoutes returns every route entry ordered by destination
func (s *RouterState) AllRoutes() []RouteEntry {
	keys := slices.Sorted(maps.Keys(s.Routes))
	out := make([]RouteEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.Routes[k])
	}
	return out
}

func (s *RouterState) StringRoutes() string {
	buf := make([]string, 0, len(s.Routes))
	for _, e := range s.AllRoutes() {
		buf = append(buf, e.String())
	}
	return strings.Join(buf, "\n")
}
