package core

import (
	"fmt"
	"io"
	"strconv"

	"github.com/encodeous/dvr/state"
	"github.com/olekukonko/tablewriter"
)

// RoutingAlgorithm is the table-driven routing algorithm run by a router
type RoutingAlgorithm interface {
	SetRouter(r Router)
	SetUpdateInterval(ticks state.Tick)
	SetPoisonReverse(enabled bool)
	SetAllowExpire(enabled bool)

	Initialize()
	NextHop(dst state.NodeId) state.NextHop
	TidyTable()
	GenerateAdvert(iface state.IfaceId) (state.Advertisement, bool)
	ProcessAdvert(adv state.Advertisement, iface state.IfaceId)
	AllRoutes() []state.RouteEntry
	ShowRoutes(w io.Writer) error
}

// DistanceVector is a RIP style distance-vector RoutingAlgorithm.
// It is not safe for concurrent use, all calls must come from the goroutine that owns the router.
type DistanceVector struct {
	state.RouterState
	router Router
}

var _ RoutingAlgorithm = (*DistanceVector)(nil)

func NewDistanceVector() *DistanceVector {
	return &DistanceVector{
		RouterState: state.RouterState{
			Routes:         make(map[state.NodeId]state.RouteEntry),
			UpdateInterval: state.DefaultUpdateInterval,
		},
	}
}

func (d *DistanceVector) SetRouter(r Router) {
	d.router = r
}

// SetUpdateInterval sets the interval the expiry timers are counted in, values below 1 are treated as 1
func (d *DistanceVector) SetUpdateInterval(ticks state.Tick) {
	d.UpdateInterval = max(ticks, 1)
}

func (d *DistanceVector) SetPoisonReverse(enabled bool) {
	d.PoisonReverse = enabled
}

func (d *DistanceVector) SetAllowExpire(enabled bool) {
	d.AllowExpire = enabled
}

func (d *DistanceVector) Initialize() {
	InitTable(&d.RouterState, d.router)
}

func (d *DistanceVector) NextHop(dst state.NodeId) state.NextHop {
	return NextHop(&d.RouterState, dst)
}

func (d *DistanceVector) TidyTable() {
	TidyTable(&d.RouterState, d.router)
}

func (d *DistanceVector) GenerateAdvert(iface state.IfaceId) (state.Advertisement, bool) {
	return GenerateAdvert(&d.RouterState, d.router, iface)
}

func (d *DistanceVector) ProcessAdvert(adv state.Advertisement, iface state.IfaceId) {
	HandleAdvert(&d.RouterState, d.router, iface, adv)
}

func (d *DistanceVector) ShowRoutes(w io.Writer) error {
	return ShowRoutes(&d.RouterState, w)
}

// ShowRoutes writes a human-readable dump of the route table
func ShowRoutes(s *state.RouterState, w io.Writer) error {
	_, err := fmt.Fprintf(w, "Router %d\n", s.Id)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Dest", "Iface", "Metric", "Updated"})
	table.SetAutoFormatHeaders(false)
	for _, e := range s.AllRoutes() {
		metric := strconv.FormatUint(uint64(e.Metric), 10)
		if e.Metric == state.INF {
			metric = "inf"
		}
		table.Append([]string{
			strconv.FormatInt(int64(e.Dest), 10),
			e.Out.String(),
			metric,
			strconv.FormatInt(int64(e.Updated), 10),
		})
	}
	table.Render()
	return nil
}
