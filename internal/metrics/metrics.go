// Package metrics registers the small set of prometheus collectors the
// broker exposes: connection lifecycle, in-flight (unconfirmed) deliveries,
// and redelivery outcomes. Grounded on the registration style of
// rockstar-0000-aistore's stats package and kedacore-keda's
// pkg/prommetrics, each of which construct a handful of named collectors
// once at package or server construction and update them inline from the
// hot path.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors holds every metric the broker updates. A nil *Collectors is
// valid and every method is a no-op on it, so metrics can be wired in
// optionally without littering the broker with nil checks at call sites.
type Collectors struct {
	ConnectionsAccepted prometheus.Counter
	ConnectionsClosed   prometheus.Counter
	RequestsDispatched  *prometheus.CounterVec
	InFlightDeliveries  prometheus.Gauge
	Requeues            *prometheus.CounterVec
}

// NewCollectors constructs and registers a fresh Collectors against reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	var c = &Collectors{
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "queued",
			Name:      "connections_accepted_total",
			Help:      "Total connections accepted by the reactor.",
		}),
		ConnectionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "queued",
			Name:      "connections_closed_total",
			Help:      "Total connections deregistered, gracefully or due to error.",
		}),
		RequestsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queued",
			Name:      "requests_dispatched_total",
			Help:      "Total requests dispatched, by request kind.",
		}, []string{"kind"}),
		InFlightDeliveries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "queued",
			Name:      "unconfirmed_deliveries",
			Help:      "Current count of dequeued messages awaiting Confirm or redelivery timeout.",
		}),
		Requeues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queued",
			Name:      "requeues_total",
			Help:      "Total requeues, partitioned by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.ConnectionsAccepted,
		c.ConnectionsClosed,
		c.RequestsDispatched,
		c.InFlightDeliveries,
		c.Requeues,
	)
	return c
}

func (c *Collectors) connAccepted() {
	if c != nil {
		c.ConnectionsAccepted.Inc()
	}
}

func (c *Collectors) connClosed() {
	if c != nil {
		c.ConnectionsClosed.Inc()
	}
}

func (c *Collectors) dispatched(kind string) {
	if c != nil {
		c.RequestsDispatched.WithLabelValues(kind).Inc()
	}
}

func (c *Collectors) deliveryStarted() {
	if c != nil {
		c.InFlightDeliveries.Inc()
	}
}

func (c *Collectors) deliveryResolved() {
	if c != nil {
		c.InFlightDeliveries.Dec()
	}
}

func (c *Collectors) requeued(outcome string) {
	if c != nil {
		c.Requeues.WithLabelValues(outcome).Inc()
	}
}

// ConnAccepted records a new accepted connection.
func (c *Collectors) ConnAccepted() { c.connAccepted() }

// ConnClosed records a deregistered connection.
func (c *Collectors) ConnClosed() { c.connClosed() }

// Dispatched records a dispatched request of the given kind
// ("create_queue", "delete_queue", "enqueue", "read", "confirm").
func (c *Collectors) Dispatched(kind string) { c.dispatched(kind) }

// DeliveryStarted records a Message entering the unconfirmed map.
func (c *Collectors) DeliveryStarted() { c.deliveryStarted() }

// DeliveryResolved records a Message leaving the unconfirmed map, by
// Confirm, by timeout, or by its owning connection closing.
func (c *Collectors) DeliveryResolved() { c.deliveryResolved() }

// Requeued records a requeue outcome: the reason of a successful requeue
// ("timeout", "connection_closed", "retry") or "full" for a rejected one.
func (c *Collectors) Requeued(outcome string) { c.requeued(outcome) }
