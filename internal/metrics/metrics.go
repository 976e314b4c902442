/*
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics exports prometheus counters for auction transitions and
// settlements. A nil *Recorder is valid and records nothing.
package metrics

import (
	"strings"
	"time"

	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/fault"
	"github.com/hyperledger/fabric-samples/auction/royalty-dutch-auction/chaincode-go/internal/settlement"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "royalty_auction"

// Recorder holds the auction metrics.
type Recorder struct {
	registry *prometheus.Registry

	Transitions        *prometheus.CounterVec
	TransitionDuration *prometheus.HistogramVec
	SettledVolume      prometheus.Counter
	RoyaltiesPaid      prometheus.Counter
	RelaysCompleted    prometheus.Counter
}

// NewRecorder creates the metrics on a fresh registry.
func NewRecorder() (*Recorder, error) {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Total number of attempted transitions by operation and result",
		}, []string{"op", "result"}),
		TransitionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transition_duration_seconds",
			Help:      "Time to apply a transition",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		SettledVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settled_currency_total",
			Help:      "Sum of accepted prices",
		}),
		RoyaltiesPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "royalties_paid_total",
			Help:      "Currency distributed to royalty payees",
		}),
		RelaysCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relays_completed_total",
			Help:      "Relays that paid out a settlement",
		}),
	}

	for _, c := range []prometheus.Collector{
		r.Transitions,
		r.TransitionDuration,
		r.SettledVolume,
		r.RoyaltiesPaid,
		r.RelaysCompleted,
		collectors.NewGoCollector(),
	} {
		if err := r.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Gatherer returns the registry for export.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.DefaultGatherer
	}
	return r.registry
}

// ObserveTransition counts one attempted transition.
func (r *Recorder) ObserveTransition(op string, err error, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.Transitions.WithLabelValues(op, Result(err)).Inc()
	r.TransitionDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveSale counts an accepted price.
func (r *Recorder) ObserveSale(dist settlement.Distribution) {
	if r == nil {
		return
	}
	r.SettledVolume.Add(float64(dist.Price))
}

// ObserveRelay counts a completed payout.
func (r *Recorder) ObserveRelay(dist settlement.Distribution) {
	if r == nil {
		return
	}
	var royalties uint64
	for _, p := range dist.Payees {
		royalties += p.Amount
	}
	r.RoyaltiesPaid.Add(float64(royalties))
	r.RelaysCompleted.Inc()
}

// Result is the result label for err.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := fault.KindOf(err); kind != "" {
		return strings.ToLower(string(kind))
	}
	return "error"
}
