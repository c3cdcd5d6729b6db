// Package telemetry exposes prometheus/client_golang counters and gauges
// for risk-state transitions, matcher rendezvous timeouts, and
// fee-calculation counts, grounded on chidi150c-coinbase's metrics.go
// (package-level CounterVec/Gauge declarations registered once, a small
// Inc/Set helper per metric). Unlike that file's package-level globals,
// here every metric lives on a *Metrics value so a caller can construct
// one against a private prometheus.Registry in tests, or pass a nil
// *Metrics to skip instrumentation entirely — every method is a no-op on
// a nil receiver, so metrics never become a hard dependency of subsystem
// logic.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every counter/gauge this core publishes. Construct with
// New and register with an *http.ServeMux via promhttp in cmd/nexuscore.
type Metrics struct {
	registry *prometheus.Registry

	riskStateTransitions *prometheus.CounterVec
	riskAccountsTracked  *prometheus.GaugeVec

	matcherRendezvousTimeouts prometheus.Counter
	matcherInternalMatches    prometheus.Counter
	matcherOrdersForwarded    prometheus.Counter

	feeCalculations *prometheus.CounterVec
}

// New constructs a Metrics registered against a fresh prometheus.Registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		riskStateTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_risk_state_transitions_total",
				Help: "Count of account risk-state transitions by destination state.",
			},
			[]string{"state"},
		),
		riskAccountsTracked: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nexus_risk_accounts_tracked",
				Help: "Number of accounts currently in each risk state.",
			},
			[]string{"state"},
		),
		matcherRendezvousTimeouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "nexus_matcher_rendezvous_timeouts_total",
				Help: "Count of internal-matching rendezvous waits that timed out.",
			},
		),
		matcherInternalMatches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "nexus_matcher_internal_matches_total",
				Help: "Count of orders filled via internal matching rather than forwarded downstream.",
			},
		),
		matcherOrdersForwarded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "nexus_matcher_orders_forwarded_total",
				Help: "Count of orders forwarded to a downstream venue (ineligible, residual, or race-lost).",
			},
		),
		feeCalculations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexus_fee_calculations_total",
				Help: "Count of fee calculations performed, by venue.",
			},
			[]string{"venue"},
		),
	}
	reg.MustRegister(
		m.riskStateTransitions, m.riskAccountsTracked,
		m.matcherRendezvousTimeouts, m.matcherInternalMatches, m.matcherOrdersForwarded,
		m.feeCalculations,
	)
	return m
}

// Registry returns the prometheus.Registry metrics are registered against,
// for wiring into a promhttp.HandlerFor in cmd/nexuscore.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RiskStateTransition records a transition into state.
func (m *Metrics) RiskStateTransition(state string) {
	if m == nil {
		return
	}
	m.riskStateTransitions.WithLabelValues(state).Inc()
}

// SetAccountsTracked reports how many accounts currently sit in state.
func (m *Metrics) SetAccountsTracked(state string, count int) {
	if m == nil {
		return
	}
	m.riskAccountsTracked.WithLabelValues(state).Set(float64(count))
}

// MatcherRendezvousTimeout records one rendezvous wait that hit
// Config.RendezvousTimeout without resolving.
func (m *Metrics) MatcherRendezvousTimeout() {
	if m == nil {
		return
	}
	m.matcherRendezvousTimeouts.Inc()
}

// MatcherInternalMatch records one order filled via internal matching.
func (m *Metrics) MatcherInternalMatch() {
	if m == nil {
		return
	}
	m.matcherInternalMatches.Inc()
}

// MatcherOrderForwarded records one order forwarded downstream instead of
// internalized.
func (m *Metrics) MatcherOrderForwarded() {
	if m == nil {
		return
	}
	m.matcherOrdersForwarded.Inc()
}

// FeeCalculation records one fee computation for venue.
func (m *Metrics) FeeCalculation(venue string) {
	if m == nil {
		return
	}
	m.feeCalculations.WithLabelValues(venue).Inc()
}
