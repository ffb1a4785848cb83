package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Métricas de negócio
	ActiveChargingSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sigec_cms_active_charging_sessions",
		Help: "Número de sessões de carregamento ativas",
	})

	EnergyDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sigec_cms_energy_delivered_wh_total",
		Help: "Total de energia entregue em Wh",
	})

	SessionOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sigec_cms_session_operations_total",
		Help: "Total de operações do ciclo de vida de sessões",
	}, []string{"operation", "status"})

	// Métricas de infraestrutura
	OCPPMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sigec_cms_ocpp_messages_total",
		Help: "Total de mensagens OCPP",
	}, []string{"action", "direction"})

	DatabaseLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sigec_cms_database_latency_seconds",
		Help:    "Latência de queries no banco",
		Buckets: prometheus.DefBuckets,
	})
)
