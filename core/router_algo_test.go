package core

import (
	"math/rand/v2"
	"testing"

	"github.com/encodeous/dvr/state"
	"github.com/stretchr/testify/assert"
)

func TestInitTable(t *testing.T) {
	h := NewHarness(1).AddIface(0, 1)
	h.Advance(5)
	rs := state.NewRouterState(0)
	InitTable(rs, h)

	assert.Equal(t, state.NodeId(1), rs.Id)
	assert.Equal(t, map[state.NodeId]state.RouteEntry{
		1: {Dest: 1, Out: state.Local(), Metric: 0, Updated: 5},
	}, rs.Routes)
	assert.Equal(t, state.Local(), NextHop(rs, 1))
	for _, d := range []state.NodeId{0, 2, 3, 100} {
		assert.Equal(t, state.Unknown(), NextHop(rs, d))
	}
	h.GetActions().AssertContains(t, TableInitialized, "id", state.NodeId(1))
}

func TestLearnAndRetract(t *testing.T) {
	// A (1) --w1-- iface 2 -- B
	h := NewHarness(1).AddIface(2, 1)
	rs := NewTable(h)

	HandleAdvert(rs, h, 2, MakeAdvert(2, 3, 5))
	assert.Equal(t, state.RouteEntry{Dest: 3, Out: state.Via(2), Metric: 6, Updated: 0}, rs.Routes[3])
	assert.Equal(t, state.Via(2), NextHop(rs, 3))
	h.GetActions().AssertContains(t, RouteAdded, "dst", state.NodeId(3), "iface", state.IfaceId(2), "metric", state.Metric(6))

	h.Advance(1)
	HandleAdvert(rs, h, 2, MakeAdvert(2, 3, state.INF))
	assert.Equal(t, state.RouteEntry{Dest: 3, Out: state.Via(2), Metric: state.INF, Updated: 1}, rs.Routes[3])
	assert.Equal(t, state.Unknown(), NextHop(rs, 3))
	h.GetActions().AssertContains(t, RouteRetracted, "dst", state.NodeId(3))
}

func TestUnknownUnreachableIgnored(t *testing.T) {
	h := NewHarness(1).AddIface(0, 1)
	rs := NewTable(h)

	HandleAdvert(rs, h, 0, MakeAdvert(2, 3, state.INF, 4, state.INFM))
	assert.Len(t, rs.Routes, 1)
	assert.Empty(t, h.GetActions())

	// the metric saturates once the link weight is added
	HandleAdvert(rs, h, 0, MakeAdvert(2, 5, 100))
	assert.Len(t, rs.Routes, 1)
}

func TestLocalNeverOverwritten(t *testing.T) {
	h := NewHarness(1).AddIface(0, 0).AddIface(1, 3)
	rs := NewTable(h)
	local := rs.Routes[1]

	HandleAdvert(rs, h, 0, MakeAdvert(2, 1, 0, 2, 0))
	HandleAdvert(rs, h, 1, MakeAdvert(3, 1, state.INF))
	assert.Equal(t, local, rs.Routes[1])
	assert.Equal(t, state.Via(0), NextHop(rs, 2))
}

func TestBetterRouteSelection(t *testing.T) {
	h := NewHarness(1).AddIface(0, 1).AddIface(1, 1)
	rs := NewTable(h)

	HandleAdvert(rs, h, 0, MakeAdvert(2, 3, 5))
	assert.Equal(t, state.Via(0), NextHop(rs, 3))

	// strictly better via another interface
	h.Advance(1)
	HandleAdvert(rs, h, 1, MakeAdvert(4, 3, 2))
	assert.Equal(t, state.RouteEntry{Dest: 3, Out: state.Via(1), Metric: 3, Updated: 1}, rs.Routes[3])
	h.GetActions().AssertContains(t, RouteImproved, "dst", state.NodeId(3), "from", state.Via(0), "to", state.IfaceId(1))

	// equal via another interface is ignored
	h.Advance(1)
	HandleAdvert(rs, h, 0, MakeAdvert(2, 3, 2))
	assert.Equal(t, state.RouteEntry{Dest: 3, Out: state.Via(1), Metric: 3, Updated: 1}, rs.Routes[3])

	// worse via another interface is ignored
	HandleAdvert(rs, h, 0, MakeAdvert(2, 3, 20))
	assert.Equal(t, state.RouteEntry{Dest: 3, Out: state.Via(1), Metric: 3, Updated: 1}, rs.Routes[3])
	assert.Empty(t, h.GetActions())
}

func TestCurrentNextHopTrustedWhenWorse(t *testing.T) {
	h := NewHarness(1).AddIface(0, 2).AddIface(1, 1)
	rs := NewTable(h)

	HandleAdvert(rs, h, 0, MakeAdvert(2, 3, 1))
	HandleAdvert(rs, h, 1, MakeAdvert(4, 3, 10))
	assert.Equal(t, state.Metric(3), rs.Routes[3].Metric)
	h.GetActions()

	h.Advance(1)
	HandleAdvert(rs, h, 0, MakeAdvert(2, 3, 20))
	assert.Equal(t, state.RouteEntry{Dest: 3, Out: state.Via(0), Metric: 22, Updated: 1}, rs.Routes[3])
	h.GetActions().AssertContains(t, RouteUpdated, "dst", state.NodeId(3), "iface", state.IfaceId(0), "old", state.Metric(3), "metric", state.Metric(22))

	// now the other neighbour's report is strictly better
	HandleAdvert(rs, h, 1, MakeAdvert(4, 3, 10))
	assert.Equal(t, state.Via(1), NextHop(rs, 3))
	assert.Equal(t, state.Metric(11), rs.Routes[3].Metric)
}

func TestReingestIsIdempotent(t *testing.T) {
	h := NewHarness(1).AddIface(0, 1).AddIface(1, 4)
	rs := NewTable(h)
	h.Advance(3)

	adv := MakeAdvert(2, 3, 5, 4, 1, 5, state.INF, 1, 9)
	HandleAdvert(rs, h, 0, adv)
	HandleAdvert(rs, h, 1, MakeAdvert(6, 5, 2))
	first := rs.StringRoutes()
	firstRoutes := make(map[state.NodeId]state.RouteEntry)
	for k, v := range rs.Routes {
		firstRoutes[k] = v
	}
	h.GetActions()

	HandleAdvert(rs, h, 0, adv)
	assert.Equal(t, first, rs.StringRoutes())
	assert.Equal(t, firstRoutes, rs.Routes)
	assert.Empty(t, h.GetActions())
}

func TestDeadRouteNotRefreshed(t *testing.T) {
	h := NewHarness(1).AddIface(0, 1)
	rs := NewTable(h)

	HandleAdvert(rs, h, 0, MakeAdvert(2, 3, 1))
	h.Advance(2)
	HandleAdvert(rs, h, 0, MakeAdvert(2, 3, state.INF))
	assert.Equal(t, state.Tick(2), rs.Routes[3].Updated)
	h.GetActions()

	for i := 0; i < 5; i++ {
		h.Advance(1)
		HandleAdvert(rs, h, 0, MakeAdvert(2, 3, state.INF))
	}
	assert.Equal(t, state.RouteEntry{Dest: 3, Out: state.Via(0), Metric: state.INF, Updated: 2}, rs.Routes[3])
	assert.Empty(t, h.GetActions())
}

func TestRefreshResetsTimer(t *testing.T) {
	h := NewHarness(1).AddIface(0, 1)
	rs := NewTable(h)

	HandleAdvert(rs, h, 0, MakeAdvert(2, 3, 1))
	h.Advance(4)
	HandleAdvert(rs, h, 0, MakeAdvert(2, 3, 1))
	assert.Equal(t, state.Tick(4), rs.Routes[3].Updated)
	// a plain refresh is not a table change worth reporting
	h.GetActions().AssertNotContains(t, RouteUpdated)
}

func TestGenerateAdvert(t *testing.T) {
	h := NewHarness(1).AddIface(0, 1).AddIface(1, 1)
	rs := NewTable(h)
	HandleAdvert(rs, h, 0, MakeAdvert(2, 2, 0, 4, 3))
	HandleAdvert(rs, h, 1, MakeAdvert(3, 3, 0))

	adv, ok := GenerateAdvert(rs, h, 0)
	assert.True(t, ok)
	assert.Equal(t, MakeAdvert(1, 1, 0, 2, 1, 3, 1, 4, 4), adv)

	rs.PoisonReverse = true
	adv, ok = GenerateAdvert(rs, h, 0)
	assert.True(t, ok)
	assert.Equal(t, MakeAdvert(1, 1, 0, 2, state.INF, 3, 1, 4, state.INF), adv)

	adv, ok = GenerateAdvert(rs, h, 1)
	assert.True(t, ok)
	assert.Equal(t, MakeAdvert(1, 1, 0, 2, 1, 3, state.INF, 4, 4), adv)

	h.SetIfaceUp(1, false)
	_, ok = GenerateAdvert(rs, h, 1)
	assert.False(t, ok)
	_, ok = GenerateAdvert(rs, h, 7)
	assert.False(t, ok)
}

func TestPoisonReverseNeverLeaksFiniteMetric(t *testing.T) {
	h := NewHarness(1).AddIface(0, 1).AddIface(1, 2).AddIface(2, 3)
	rs := NewTable(h)
	rs.PoisonReverse = true
	rng := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 200; i++ {
		iface := state.IfaceId(rng.IntN(3))
		HandleAdvert(rs, h, iface, MakeAdvert(9, state.Metric(2+rng.IntN(8)), state.Metric(rng.IntN(int(state.INF)+5))))
		for out := state.IfaceId(0); out < 3; out++ {
			adv, ok := GenerateAdvert(rs, h, out)
			assert.True(t, ok)
			for _, e := range adv.Entries {
				if rs.Routes[e.Dest].Out == state.Via(out) {
					assert.Equal(t, state.INF, e.Metric)
				}
			}
		}
	}
}

func TestDownLinkPoisoning(t *testing.T) {
	h := NewHarness(1).AddIface(0, 1).AddIface(1, 1)
	rs := NewTable(h)
	HandleAdvert(rs, h, 0, MakeAdvert(2, 2, 0, 4, 3, 5, 1))
	HandleAdvert(rs, h, 1, MakeAdvert(3, 3, 0))
	h.GetActions()

	h.Advance(3)
	h.SetIfaceUp(0, false)
	TidyTable(rs, h)

	assert.Equal(t, `d 1 i local m 0
d 2 i 0 m 60
d 3 i 1 m 1
d 4 i 0 m 60
d 5 i 0 m 60`, rs.StringRoutes())
	for _, d := range []state.NodeId{2, 4, 5} {
		assert.Equal(t, state.Tick(3), rs.Routes[d].Updated)
		assert.Equal(t, state.Unknown(), NextHop(rs, d))
	}
	assert.Equal(t, state.Tick(0), rs.Routes[3].Updated)
	h.GetActions().AssertContains(t, LinkDownPoisoned, "dst", state.NodeId(4), "iface", state.IfaceId(0))

	// already poisoned routes are left alone
	h.Advance(1)
	TidyTable(rs, h)
	assert.Equal(t, state.Tick(3), rs.Routes[2].Updated)
	assert.Empty(t, h.GetActions())
}

func TestExpireBeforeRemove(t *testing.T) {
	h := NewHarness(1).AddIface(0, 1)
	rs := NewTable(h)
	rs.AllowExpire = true
	rs.UpdateInterval = 2
	HandleAdvert(rs, h, 0, MakeAdvert(2, 3, 1))
	h.GetActions()

	expireAt := state.ExpireAfter * rs.UpdateInterval
	removeAt := expireAt + state.RemoveAfter*rs.UpdateInterval
	for h.Now() < removeAt {
		h.Advance(rs.UpdateInterval)
		TidyTable(rs, h)
		entry, ok := rs.Routes[3]
		switch {
		case h.Now() < expireAt:
			assert.Equal(t, state.Metric(2), entry.Metric, "tick %d", h.Now())
		case h.Now() < removeAt:
			assert.True(t, ok, "tick %d", h.Now())
			assert.Equal(t, state.INF, entry.Metric, "tick %d", h.Now())
			assert.Equal(t, expireAt, entry.Updated)
		default:
			assert.False(t, ok, "tick %d", h.Now())
		}
	}
	a := h.GetActions()
	a.AssertContains(t, RouteExpired, "dst", state.NodeId(3))
	a.AssertContains(t, StaleRouteDropped, "dst", state.NodeId(3))
	assert.Equal(t, map[state.NodeId]state.RouteEntry{
		1: {Dest: 1, Out: state.Local(), Metric: 0, Updated: 0},
	}, rs.Routes)
}

func TestDownLinkThenRemove(t *testing.T) {
	h := NewHarness(1).AddIface(0, 1)
	rs := NewTable(h)
	rs.AllowExpire = true
	HandleAdvert(rs, h, 0, MakeAdvert(2, 3, 1))

	h.Advance(1)
	h.SetIfaceUp(0, false)
	TidyTable(rs, h)
	assert.Equal(t, state.INF, rs.Routes[3].Metric)

	for i := state.Tick(1); i < state.RemoveAfter; i++ {
		h.Advance(1)
		TidyTable(rs, h)
		assert.Contains(t, rs.Routes, state.NodeId(3))
	}
	h.Advance(1)
	TidyTable(rs, h)
	assert.NotContains(t, rs.Routes, state.NodeId(3))
}

func TestNoExpiryWhenDisabled(t *testing.T) {
	h := NewHarness(1).AddIface(0, 1).AddIface(1, 1)
	rs := NewTable(h)
	HandleAdvert(rs, h, 0, MakeAdvert(2, 3, 1, 4, 2))
	HandleAdvert(rs, h, 1, MakeAdvert(5, 6, 1))
	HandleAdvert(rs, h, 1, MakeAdvert(5, 6, state.INF))
	before := rs.StringRoutes()

	for i := 0; i < 1000; i++ {
		h.Advance(1)
		TidyTable(rs, h)
	}
	assert.Equal(t, before, rs.StringRoutes())

	// down-link detection still applies
	h.SetIfaceUp(0, false)
	TidyTable(rs, h)
	assert.Equal(t, state.INF, rs.Routes[3].Metric)
	assert.Equal(t, state.INF, rs.Routes[4].Metric)
}

func TestLocalEntryImmortal(t *testing.T) {
	h := NewHarness(1).AddIface(0, 1)
	rs := NewTable(h)
	rs.AllowExpire = true
	h.SetIfaceUp(0, false)
	for i := 0; i < 100; i++ {
		h.Advance(1)
		TidyTable(rs, h)
	}
	assert.Equal(t, state.RouteEntry{Dest: 1, Out: state.Local(), Metric: 0, Updated: 0}, rs.Routes[1])
}

func TestMetricBounded(t *testing.T) {
	h := NewHarness(1).AddIface(0, 1).AddIface(1, 30).AddIface(2, 59)
	rs := NewTable(h)
	rs.AllowExpire = true
	rs.UpdateInterval = 1
	rng := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 2000; i++ {
		switch rng.IntN(4) {
		case 0:
			h.Advance(1)
			TidyTable(rs, h)
		case 1:
			h.SetIfaceUp(state.IfaceId(rng.IntN(3)), rng.IntN(3) != 0)
		default:
			adv := state.Advertisement{Src: 2}
			for j := 0; j < 5; j++ {
				adv.Entries = append(adv.Entries, state.AdvEntry{
					Dest:   state.NodeId(rng.IntN(10)),
					Metric: state.Metric(rng.IntN(200)),
				})
			}
			HandleAdvert(rs, h, state.IfaceId(rng.IntN(3)), adv)
		}
		for d, e := range rs.Routes {
			assert.Equal(t, d, e.Dest)
			assert.LessOrEqual(t, e.Metric, state.INF)
			assert.LessOrEqual(t, e.Updated, h.Now())
		}
		assert.Equal(t, state.RouteEntry{Dest: 1, Out: state.Local(), Metric: 0, Updated: 0}, rs.Routes[1])
	}
}

func TestAddMetric(t *testing.T) {
	assert.Equal(t, state.Metric(5), AddMetric(2, 3))
	assert.Equal(t, state.INF, AddMetric(30, 30))
	assert.Equal(t, state.INF, AddMetric(59, 59))
	assert.Equal(t, state.INF, AddMetric(state.INF, 0))
	assert.Equal(t, state.INF, AddMetric(0, 1000))
	assert.Equal(t, state.INFM, AddMetric(state.INFM, 0))
}
