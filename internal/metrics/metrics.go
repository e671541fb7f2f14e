// Package metrics exposes prometheus counters for governance and incentive calls.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rebal"

// Metrics groups every collector of the service. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	proposalsCreated   *prometheus.CounterVec
	votesCast          *prometheus.CounterVec
	voteWeight         *prometheus.CounterVec
	proposalsFinalized *prometheus.CounterVec
	rebalances         *prometheus.CounterVec
	rewardTokens       *prometheus.CounterVec
	rewardNative       *prometheus.CounterVec
	rejections         *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		proposalsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "governance", Name: "proposals_created_total",
			Help: "Proposals created, by kind.",
		}, []string{"kind"}),
		votesCast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "governance", Name: "votes_cast_total",
			Help: "Votes recorded, by kind and direction.",
		}, []string{"kind", "accept"}),
		voteWeight: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "governance", Name: "vote_weight_total",
			Help: "Governance tokens moved to escrow by votes, by kind.",
		}, []string{"kind"}),
		proposalsFinalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "governance", Name: "proposals_finalized_total",
			Help: "Proposals applied to their basket, by kind.",
		}, []string{"kind"}),
		rebalances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "incentive", Name: "rebalances_total",
			Help: "Successful rebalance executions, by outcome.",
		}, []string{"outcome"}),
		rewardTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "incentive", Name: "reward_tokens_total",
			Help: "Governance tokens minted as rebalance rewards, by basket.",
		}, []string{"basket"}),
		rewardNative: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "incentive", Name: "reward_native_total",
			Help: "Native currency paid from basket treasuries, by basket.",
		}, []string{"basket"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rejections_total",
			Help: "Calls rejected by a precondition, by operation and reason.",
		}, []string{"operation", "reason"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.proposalsCreated, m.votesCast, m.voteWeight, m.proposalsFinalized,
		m.rebalances, m.rewardTokens, m.rewardNative, m.rejections,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ProposalCreated(kind string) {
	if m == nil {
		return
	}
	m.proposalsCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) VoteCast(kind string, accept bool, weight uint64) {
	if m == nil {
		return
	}
	m.votesCast.WithLabelValues(kind, boolLabel(accept)).Inc()
	m.voteWeight.WithLabelValues(kind).Add(float64(weight))
}

func (m *Metrics) ProposalFinalized(kind string) {
	if m == nil {
		return
	}
	m.proposalsFinalized.WithLabelValues(kind).Inc()
}

func (m *Metrics) RebalanceExecuted(basket string, slashed bool, tokens, native uint64) {
	if m == nil {
		return
	}
	outcome := "full"
	if slashed {
		outcome = "slashed"
	}
	m.rebalances.WithLabelValues(outcome).Inc()
	m.rewardTokens.WithLabelValues(basket).Add(float64(tokens))
	m.rewardNative.WithLabelValues(basket).Add(float64(native))
}

// Rejected counts a failed precondition. reason should be a short stable tag.
func (m *Metrics) Rejected(operation, reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(operation, reason).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
