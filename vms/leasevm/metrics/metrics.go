// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/faas-tech/space-markets-sub007/vms/leasevm/events"
)

const namespace = "leasevm"

type Metrics struct {
	calls         *prometheus.CounterVec
	callDuration  *prometheus.HistogramVec
	leasesMinted  prometheus.Counter
	offersPosted  prometheus.Counter
	bidsPlaced    prometheus.Counter
	eventsEmitted prometheus.Counter
	sinkFailures  *prometheus.CounterVec
}

func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls",
			Help:      "Number of state changing calls by operation and outcome class",
		}, []string{"op", "result"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Time spent executing state changing calls",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"op"}),
		leasesMinted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leases_minted",
			Help:      "Number of lease certificates minted",
		}),
		offersPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offers_posted",
			Help:      "Number of lease offers posted",
		}),
		bidsPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bids_placed",
			Help:      "Number of escrowed bids placed",
		}),
		eventsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_committed",
			Help:      "Number of events committed to the event log",
		}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures",
			Help:      "Number of failed event sink publications",
		}, []string{"sink"}),
	}
	err := errors.Join(
		registerer.Register(m.calls),
		registerer.Register(m.callDuration),
		registerer.Register(m.leasesMinted),
		registerer.Register(m.offersPosted),
		registerer.Register(m.bidsPlaced),
		registerer.Register(m.eventsEmitted),
		registerer.Register(m.sinkFailures),
	)
	return m, err
}

// ObserveCall records a finished call. result is the error class, or "ok".
func (m *Metrics) ObserveCall(op, result string, took time.Duration) {
	m.calls.WithLabelValues(op, result).Inc()
	m.callDuration.WithLabelValues(op).Observe(took.Seconds())
}

// ObserveEvents counts newly committed events and the domain activity they
// record.
func (m *Metrics) ObserveEvents(evs []events.Event) {
	m.eventsEmitted.Add(float64(len(evs)))
	for _, ev := range evs {
		switch ev.Type {
		case events.LeaseMinted:
			m.leasesMinted.Inc()
		case events.LeaseOfferPosted:
			m.offersPosted.Inc()
		case events.BidPlaced:
			m.bidsPlaced.Inc()
		}
	}
}

func (m *Metrics) SinkFailed(sink string) {
	m.sinkFailures.WithLabelValues(sink).Inc()
}
