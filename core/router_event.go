package core

import "strconv"

type RouterEvent int

// trace events

const (
	RouteAdded RouterEvent = iota
	RouteImproved
	RouteUpdated
	RouteRetracted
	RouteExpired
	LinkDownPoisoned
	StaleRouteDropped
	TableInitialized
)

// warn events

const (
	InconsistentState RouterEvent = iota + 1000
	UnknownInterface
	MalformedAdvert
)

func (e RouterEvent) String() string {
	switch e {
	case RouteAdded:
		return "RouteAdded"
	case RouteImproved:
		return "RouteImproved"
	case RouteUpdated:
		return "RouteUpdated"
	case RouteRetracted:
		return "RouteRetracted"
	case RouteExpired:
		return "RouteExpired"
	case LinkDownPoisoned:
		return "LinkDownPoisoned"
	case StaleRouteDropped:
		return "StaleRouteDropped"
	case TableInitialized:
		return "TableInitialized"
	case InconsistentState:
		return "InconsistentState"
	case UnknownInterface:
		return "UnknownInterface"
	case MalformedAdvert:
		return "MalformedAdvert"
	}
	return "RouterEvent(" + strconv.Itoa(int(e)) + ")"
}

// IsWarn reports whether the event indicates a problem rather than normal table churn
func (e RouterEvent) IsWarn() bool {
	return e >= InconsistentState
}

// ChangesTable reports whether the event was emitted for a mutation of the route table
func (e RouterEvent) ChangesTable() bool {
	return e <= StaleRouteDropped
}
