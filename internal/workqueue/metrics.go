package workqueue

import (
	"errors"
	"fmt"

	prom "github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for a single WorkQueue. All of
// the methods are nil safe so that an uninstrumented queue pays nothing
// beyond a nil check.
type Metrics struct {
	processedTotal prom.Counter
	failedTotal    prom.Counter
	panickedTotal  prom.Counter
	discardedTotal prom.Counter
	depth          prom.Gauge
}

// NewMetrics creates and registers the collectors for a queue. The queue
// label distinguishes queues when a process runs more than one. A nil
// registerer falls back to the Prometheus default registry.
func NewMetrics(queue string, reg prom.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	labels := prom.Labels{"queue": queue}
	m := &Metrics{
		processedTotal: prom.NewCounter(prom.CounterOpts{
			Namespace:   "eventfs",
			Subsystem:   "workqueue",
			Name:        "processed_total",
			Help:        "Work requests that completed without error.",
			ConstLabels: labels,
		}),
		failedTotal: prom.NewCounter(prom.CounterOpts{
			Namespace:   "eventfs",
			Subsystem:   "workqueue",
			Name:        "failed_total",
			Help:        "Work requests whose callback returned an error.",
			ConstLabels: labels,
		}),
		panickedTotal: prom.NewCounter(prom.CounterOpts{
			Namespace:   "eventfs",
			Subsystem:   "workqueue",
			Name:        "panicked_total",
			Help:        "Work requests whose callback panicked.",
			ConstLabels: labels,
		}),
		discardedTotal: prom.NewCounter(prom.CounterOpts{
			Namespace:   "eventfs",
			Subsystem:   "workqueue",
			Name:        "discarded_total",
			Help:        "Work requests discarded unexecuted at destroy.",
			ConstLabels: labels,
		}),
		depth: prom.NewGauge(prom.GaugeOpts{
			Namespace:   "eventfs",
			Subsystem:   "workqueue",
			Name:        "depth",
			Help:        "Work requests waiting to be executed.",
			ConstLabels: labels,
		}),
	}
	var err error
	if m.processedTotal, err = register(reg, m.processedTotal); err != nil {
		return nil, err
	}
	if m.failedTotal, err = register(reg, m.failedTotal); err != nil {
		return nil, err
	}
	if m.panickedTotal, err = register(reg, m.panickedTotal); err != nil {
		return nil, err
	}
	if m.discardedTotal, err = register(reg, m.discardedTotal); err != nil {
		return nil, err
	}
	if m.depth, err = register(reg, m.depth); err != nil {
		return nil, err
	}
	return m, nil
}

// Registers a collector, tolerating a duplicate registration by reusing
// the collector that is already present.
func register[C prom.Collector](reg prom.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var already prom.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing, nil
		}
		return c, fmt.Errorf("collector type mismatch for %T", c)
	}
	return c, err
}

func (m *Metrics) enqueued() {
	if m == nil {
		return
	}
	m.depth.Inc()
}

func (m *Metrics) processed() {
	if m == nil {
		return
	}
	m.processedTotal.Inc()
	m.depth.Dec()
}

func (m *Metrics) failed() {
	if m == nil {
		return
	}
	m.failedTotal.Inc()
	m.depth.Dec()
}

func (m *Metrics) panicked() {
	if m == nil {
		return
	}
	m.panickedTotal.Inc()
	m.depth.Dec()
}

func (m *Metrics) discarded(n int) {
	if m == nil {
		return
	}
	m.discardedTotal.Add(float64(n))
	m.depth.Sub(float64(n))
}
