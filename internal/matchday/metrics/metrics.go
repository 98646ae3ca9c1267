package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/radieske/virtual-matchday/internal/matchday/failure"
	"github.com/radieske/virtual-matchday/internal/matchday/orchestrator"
)

// Metrics agrupa os coletores Prometheus do motor
type Metrics struct {
	Ticks         *prometheus.CounterVec
	TickDuration  prometheus.Histogram
	Failures      *prometheus.CounterVec
	Settled       prometheus.Counter
	Rewards       prometheus.Counter
	Released      prometheus.Counter
	Rounds        prometheus.Counter
	Purged        prometheus.Counter
	LedgerLatency *prometheus.HistogramVec
	Buffer        prometheus.Gauge
	Current       prometheus.Gauge
}

// New cria e registra os coletores no registerer informado
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matchday_ticks_total",
			Help: "Ticks do loop de reconciliação por resultado",
		}, []string{"result"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "matchday_tick_duration_seconds",
			Help:    "Duração de cada tick",
			Buckets: prometheus.DefBuckets,
		}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matchday_failures_total",
			Help: "Falhas por etapa e tipo",
		}, []string{"stage", "kind"}),
		Settled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchday_matches_settled_total",
			Help: "Partidas liquidadas",
		}),
		Rewards: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchday_rewards_total",
			Help: "Prêmios registrados no ledger",
		}),
		Released: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchday_matches_released_total",
			Help: "Partidas criadas pela reposição",
		}),
		Rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchday_rounds_released_total",
			Help: "Rodadas criadas pela reposição",
		}),
		Purged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchday_matches_purged_total",
			Help: "Partidas removidas pela retenção",
		}),
		LedgerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "matchday_ledger_call_seconds",
			Help:    "Latência das chamadas ao ledger",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "result"}),
		Buffer: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "matchday_round_buffer",
			Help: "Rodadas não liquidadas à frente da atual",
		}),
		Current: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "matchday_current_round",
			Help: "Menor rodada não liquidada",
		}),
	}
	reg.MustRegister(m.Ticks, m.TickDuration, m.Failures, m.Settled, m.Rewards,
		m.Released, m.Rounds, m.Purged, m.LedgerLatency, m.Buffer, m.Current)
	return m
}

// Hooks liga os coletores aos callbacks do orquestrador
func (m *Metrics) Hooks() orchestrator.Hooks {
	return orchestrator.Hooks{
		OnTick: func(r orchestrator.Report, took time.Duration) {
			result := "ok"
			if r.Err != nil {
				result = "error"
			}
			m.Ticks.WithLabelValues(result).Inc()
			m.TickDuration.Observe(took.Seconds())
			if r.State.Frontier > 0 {
				m.Buffer.Set(float64(r.State.Buffer()))
				m.Current.Set(float64(r.State.Current))
			}
		},
		OnSkipped: func() { m.Ticks.WithLabelValues("skipped").Inc() },
		OnFailure: func(stage string, kind failure.Kind) {
			m.Failures.WithLabelValues(stage, string(kind)).Inc()
		},
		OnSettled: func(matches, rewards int) {
			m.Settled.Add(float64(matches))
			m.Rewards.Add(float64(rewards))
		},
		OnReplenished: func(rounds, matches int) {
			m.Rounds.Add(float64(rounds))
			m.Released.Add(float64(matches))
		},
		OnPurged: func(n int64) { m.Purged.Add(float64(n)) },
		OnLedgerCall: func(op string, took time.Duration, err error) {
			result := "ok"
			if err != nil {
				result = "error"
			}
			m.LedgerLatency.WithLabelValues(op, result).Observe(took.Seconds())
		},
	}
}
