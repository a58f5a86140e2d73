// Package telemetry holds the process-wide delivery counters and the
// optional admin listener exposing them alongside liveness probes.
package telemetry

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Sent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertwire_messages_sent_total",
		Help: "Messages successfully delivered by a transport backend.",
	}, []string{"transport"})

	Received = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertwire_messages_received_total",
		Help: "Messages decoded and admitted to the receive queue.",
	}, []string{"transport"})

	DeliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertwire_delivery_failures_total",
		Help: "Send attempts that failed at the transport level.",
	}, []string{"transport"})

	Dropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertwire_records_dropped_total",
		Help: "Inbound items discarded by a receive loop, by reason.",
	}, []string{"transport", "reason"})
)

// Handler returns the admin surface: /metrics plus /live and /ready probes.
func Handler() http.Handler {
	health := healthcheck.NewHandler()
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/live", health.LiveEndpoint)
	r.HandleFunc("/ready", health.ReadyEndpoint)
	return r
}

// Expose serves Handler on addr in the background.
func Expose(addr string) {
	go func() {
		_ = http.ListenAndServe(addr, Handler())
	}()
}
