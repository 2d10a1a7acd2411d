package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	TickLatency        = metric.NewHistogram("1m1s")
	AdvertSize         = metric.NewHistogram("10s1s")
	SentAdvertsPerSec  = metric.NewCounter("10s1s")
	RecvAdvertsPerSec  = metric.NewCounter("10s1s")
	DropAdvertsPerSec  = metric.NewCounter("10s1s")
	RouteChangesPerSec = metric.NewCounter("10s1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("dvr:AdvertSize", AdvertSize)

	expvar.Publish("dvr:SentAdverts/s", SentAdvertsPerSec)
	expvar.Publish("dvr:RecvAdverts/s", RecvAdvertsPerSec)
	expvar.Publish("dvr:DropAdverts/s", DropAdvertsPerSec)
	expvar.Publish("dvr:RouteChanges/s", RouteChangesPerSec)
	expvar.Publish("dvr:TickLatency (µs)", TickLatency)
}
