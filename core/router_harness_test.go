package core

import (
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/encodeous/dvr/state"
	"github.com/google/go-cmp/cmp"
)

type harnessIface struct {
	up     bool
	weight state.Metric
}

type HarnessEvent struct {
	Event RouterEvent
	Args  []any
}

func MakeEvent(event RouterEvent, args ...any) HarnessEvent {
	return HarnessEvent{
		Event: event,
		Args:  args,
	}
}

// RouterHarness is a scripted Router: the test controls the clock and the interfaces
type RouterHarness struct {
	id      state.NodeId
	now     state.Tick
	ifaces  map[state.IfaceId]*harnessIface
	actions []HarnessEvent
}

func NewHarness(id state.NodeId) *RouterHarness {
	return &RouterHarness{
		id:     id,
		ifaces: make(map[state.IfaceId]*harnessIface),
	}
}

func (h *RouterHarness) AddIface(iface state.IfaceId, weight state.Metric) *RouterHarness {
	h.ifaces[iface] = &harnessIface{up: true, weight: weight}
	return h
}

func (h *RouterHarness) SetIfaceUp(iface state.IfaceId, up bool) {
	h.ifaces[iface].up = up
}

func (h *RouterHarness) Advance(ticks state.Tick) {
	h.now += ticks
}

func (h *RouterHarness) Id() state.NodeId {
	return h.id
}

func (h *RouterHarness) Now() state.Tick {
	return h.now
}

func (h *RouterHarness) IfaceUp(iface state.IfaceId) bool {
	i, ok := h.ifaces[iface]
	return ok && i.up
}

func (h *RouterHarness) IfaceWeight(iface state.IfaceId) state.Metric {
	i, ok := h.ifaces[iface]
	if !ok {
		return state.INF
	}
	return i.weight
}

func (h *RouterHarness) Log(event RouterEvent, desc string, args ...any) {
	h.actions = append(h.actions, MakeEvent(event, args...))
}

type HarnessEvents []HarnessEvent

func (h HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range h {
		cur := action.Event.String()
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	slices.Sort(out)
	return strings.Join(out, "\n")
}

// GetActions returns and clears the recorded events
func (h *RouterHarness) GetActions() HarnessEvents {
	x := h.actions
	h.actions = make([]HarnessEvent, 0)
	return x
}

func (e HarnessEvents) contains(event RouterEvent, args ...any) bool {
	for _, ev := range e {
		if ev.Event != event || len(ev.Args) < len(args) {
			continue
		}
		match := true
		for i, arg := range args {
			if !cmp.Equal(ev.Args[i], arg) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func (e HarnessEvents) AssertContains(t *testing.T, event RouterEvent, args ...any) {
	t.Helper()
	if e.contains(event, args...) {
		return
	}
	t.Fatal("Expected event not found: ", event, " with args: ", args, " in ", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, event RouterEvent, args ...any) {
	t.Helper()
	if e.contains(event, args...) {
		t.Fatal("Unexpected event found: ", event, " with args: ", args, " in ", e)
	}
}

func MakeAdvert(src state.NodeId, pairs ...state.Metric) state.Advertisement {
	if len(pairs)%2 != 0 {
		panic("MakeAdvert takes (dest, metric) pairs")
	}
	adv := state.Advertisement{Src: src}
	for i := 0; i < len(pairs); i += 2 {
		adv.Entries = append(adv.Entries, state.AdvEntry{Dest: state.NodeId(pairs[i]), Metric: pairs[i+1]})
	}
	return adv
}

// NewTable creates an initialized router state driven by h
func NewTable(h *RouterHarness) *state.RouterState {
	rs := state.NewRouterState(h.id)
	InitTable(rs, h)
	h.GetActions()
	return rs
}
