// Package metrics exposes a Prometheus /metrics endpoint reporting the
// session count and the number of joined users per room, read only from the
// coordinator's GetStats snapshot. It reports no order or book metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rishav/marketmaking-sim/internal/coordinator"
)

var (
	sessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roomd_sessions_total",
		Help: "Number of sessions known to the coordinator, active or inactive.",
	})

	usersByRoom = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "roomd_room_users",
		Help: "Current number of joined users, per room code.",
	}, []string{"room"})
)

// collect refreshes the gauges from a coordinator snapshot.
// Call once per /metrics scrape via the promhttp handler's wrapping, or on
// a ticker; here it's driven synchronously from Handler's ServeHTTP.
func collect(c *coordinator.Coordinator) {
	stats := c.GetStats()
	sessionsGauge.Set(float64(stats.SessionCount))
	for room, count := range stats.UsersByRoom {
		usersByRoom.WithLabelValues(room).Set(float64(count))
	}
}

// Handler returns an http.Handler serving Prometheus text exposition,
// refreshing the coordinator-derived gauges on every scrape.
func Handler(c *coordinator.Coordinator) http.Handler {
	base := promhttp.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		collect(c)
		base.ServeHTTP(w, r)
	})
}
