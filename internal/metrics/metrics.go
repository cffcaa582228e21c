// Package metrics exposes relay activity in the Prometheus text format.
package metrics

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/1ureka/tftprelay/internal/relay"
	"github.com/1ureka/tftprelay/internal/util"
)

const namespace = "tftprelay"

// Path is where metrics are served.
const Path = "/metrics"

// Collector counts relay events and process-wide datagram traffic. It
// implements relay.Observer.
type Collector struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	server   *http.Server
}

// New creates a collector with its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "events_total",
			Help:      "Relay forwarding steps by kind.",
		}, []string{"kind"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "event_bytes_total",
			Help:      "Packet bytes involved in relay steps, by kind.",
		}, []string{"kind"}),
	}

	c.registry.MustRegister(
		c.events,
		c.bytes,
		datagramCounter("sent", func() int64 { return util.Stats.PacketsSent.Load() }),
		datagramCounter("received", func() int64 { return util.Stats.PacketsRecv.Load() }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receive_timeouts_total",
			Help:      "Receives that ended without a datagram.",
		}, func() float64 { return float64(util.Stats.Timeouts.Load()) }),
	)
	return c
}

func datagramCounter(direction string, load func() int64) prometheus.CounterFunc {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "datagrams_total",
		Help:        "Datagrams handled by every endpoint of the process.",
		ConstLabels: prometheus.Labels{"direction": direction},
	}, func() float64 { return float64(load()) })
}

// Observe counts ev.
func (c *Collector) Observe(ev relay.Event) {
	kind := string(ev.Kind)
	c.events.WithLabelValues(kind).Inc()
	c.bytes.WithLabelValues(kind).Add(float64(ev.Size))
}

// Handler serves the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Start serves Handler at Path on addr and returns the bound address.
func (c *Collector) Start(addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start metrics server: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(Path, c.Handler())
	c.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := c.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogWarning("metrics server stopped: %v", err)
		}
	}()

	return listener.Addr(), nil
}

// Close stops the server started by Start, if any.
func (c *Collector) Close() error {
	if c.server == nil {
		return nil
	}
	return c.server.Close()
}
