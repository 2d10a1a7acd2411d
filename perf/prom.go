package perf

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/encodeous/dvr/state"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dvr_ticks_total",
		Help: "Total number of simulation ticks executed.",
	})
	advertsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dvr_adverts_sent_total",
			Help: "Total number of advertisements sent.",
		},
		[]string{"node"},
	)
	advertsRecvTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dvr_adverts_received_total",
			Help: "Total number of advertisements received.",
		},
		[]string{"node"},
	)
	advertsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dvr_adverts_dropped_total",
			Help: "Total number of advertisements dropped, either on a down link or because they were malformed.",
		},
		[]string{"node", "reason"},
	)
	routeChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dvr_route_changes_total",
			Help: "Total number of routing table changes.",
		},
		[]string{"node", "event"},
	)
	routes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dvr_routes",
			Help: "Number of entries in the routing table of a node.",
		},
		[]string{"node"},
	)
)

const handlerTimeout = 10 * time.Second

var registerHandler sync.Once

func nodeLabel(id state.NodeId) string {
	return strconv.FormatInt(int64(id), 10)
}

func Tick(elapsed time.Duration) {
	ticksTotal.Inc()
	TickLatency.Add(float64(elapsed.Microseconds()))
}

func AdvertSent(from state.NodeId, size int) {
	advertsSentTotal.WithLabelValues(nodeLabel(from)).Inc()
	SentAdvertsPerSec.Add(1)
	AdvertSize.Add(float64(size))
}

func AdvertRecv(from state.NodeId, size int) {
	advertsRecvTotal.WithLabelValues(nodeLabel(from)).Inc()
	RecvAdvertsPerSec.Add(1)
}

func AdvertDropped(from state.NodeId) {
	advertsDroppedTotal.WithLabelValues(nodeLabel(from), "link_down").Inc()
	DropAdvertsPerSec.Add(1)
}

func AdvertMalformed() {
	advertsDroppedTotal.WithLabelValues("", "malformed").Inc()
	DropAdvertsPerSec.Add(1)
}

func RouteChanged(node state.NodeId, event string) {
	routeChangesTotal.WithLabelValues(nodeLabel(node), event).Inc()
	RouteChangesPerSec.Add(1)
}

func SetRouteCount(node state.NodeId, n int) {
	routes.WithLabelValues(nodeLabel(node)).Set(float64(n))
}

// Handler serves the prometheus metrics on /metrics next to the expvar and metric handlers
func Handler() http.Handler {
	registerHandler.Do(func() {
		http.Handle("/metrics", promhttp.InstrumentMetricHandler(
			prometheus.DefaultRegisterer,
			promhttp.HandlerFor(
				prometheus.DefaultGatherer,
				promhttp.HandlerOpts{Timeout: handlerTimeout},
			),
		))
	})
	return http.DefaultServeMux
}

// Serve exports metrics on addr until ctx is done
func Serve(ctx context.Context, addr string, log *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:     Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	go func() {
		log.Info("exporting metrics", "addr", ln.Addr().String())
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", "error", err)
		}
	}()
	return nil
}
