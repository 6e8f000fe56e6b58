// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coordinator

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "coinjoind"

// metrics are the coordinator's prometheus collectors.
type metrics struct {
	roundsCreated     prometheus.Counter
	roundsEnded       *prometheus.CounterVec
	phaseChanges      *prometheus.CounterVec
	inputsRegistered  prometheus.Counter
	outputsRegistered prometheus.Counter
	participantErrors *prometheus.CounterVec
	activeRounds      prometheus.GaugeFunc
}

// newMetrics creates the collectors and registers them with reg when it is
// not nil.
func newMetrics(reg prometheus.Registerer,
	activeRounds func() float64) (*metrics, error) {

	m := &metrics{
		roundsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rounds_created_total",
			Help:      "Number of rounds created.",
		}),
		roundsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rounds_ended_total",
			Help:      "Number of rounds ended, by end state.",
		}, []string{"state"}),
		phaseChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "phase_changes_total",
			Help:      "Number of rounds entering each phase.",
		}, []string{"phase"}),
		inputsRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "inputs_registered_total",
			Help:      "Number of inputs registered.",
		}),
		outputsRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "outputs_registered_total",
			Help:      "Number of outputs registered.",
		}),
		participantErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "participant_errors_total",
				Help:      "Number of refused requests, by code.",
			}, []string{"code"},
		),
		activeRounds: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "rounds_active",
			Help:      "Number of rounds that have not ended.",
		}, activeRounds),
	}

	if reg == nil {
		return m, nil
	}

	collectors := []prometheus.Collector{
		m.roundsCreated, m.roundsEnded, m.phaseChanges,
		m.inputsRegistered, m.outputsRegistered, m.participantErrors,
		m.activeRounds,
	}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}

	return m, nil
}
