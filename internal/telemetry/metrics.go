package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/Deployer/internal/domain"
)

// Metrics — Prometheus метрики деплоев.
//
// Все методы безопасны для nil-получателя: компоненты, которым метрики
// не переданы, просто ничего не записывают.
type Metrics struct {
	deploymentsStarted  *prometheus.CounterVec
	deploymentsFinished *prometheus.CounterVec
	deploymentDuration  *prometheus.HistogramVec
	deploymentsActive   prometheus.Gauge
	stepsFinished       *prometheus.CounterVec
	stepDuration        *prometheus.HistogramVec
	stepsRunning        prometheus.Gauge
	rollbacks           *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
}

// NewMetrics создаёт и регистрирует метрики в reg.
// nil означает prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		deploymentsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deployer_deployments_started_total",
			Help: "Deployments that entered the running state.",
		}, []string{"environment"}),
		deploymentsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deployer_deployments_finished_total",
			Help: "Deployments that reached a terminal state.",
		}, []string{"environment", "status"}),
		deploymentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deployer_deployment_duration_seconds",
			Help:    "Wall time of finished deployments.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"environment", "status"}),
		deploymentsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deployer_deployments_active",
			Help: "Deployments currently executing.",
		}),
		stepsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deployer_steps_finished_total",
			Help: "Steps that reached a terminal state.",
		}, []string{"kind", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deployer_step_duration_seconds",
			Help:    "Execution time of steps that ran.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"kind"}),
		stepsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deployer_steps_running",
			Help: "Steps currently in flight across all deployments.",
		}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deployer_rollbacks_total",
			Help: "Rollbacks performed, by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deployer_api_http_requests_total",
			Help: "HTTP requests handled by the API.",
		}, []string{"method", "code"}),
	}

	reg.MustRegister(
		m.deploymentsStarted,
		m.deploymentsFinished,
		m.deploymentDuration,
		m.deploymentsActive,
		m.stepsFinished,
		m.stepDuration,
		m.stepsRunning,
		m.rollbacks,
		m.httpRequests,
	)
	return m
}

// DeploymentStarted учитывает деплой, перешедший в running.
func (m *Metrics) DeploymentStarted(d *domain.Deployment) {
	if m == nil {
		return
	}
	m.deploymentsStarted.WithLabelValues(string(d.Environment)).Inc()
	m.deploymentsActive.Inc()
}

// DeploymentFinished учитывает терминальный статус деплоя.
// wasRunning — деплой успел перейти в running (иначе gauge не трогаем).
func (m *Metrics) DeploymentFinished(d *domain.Deployment, wasRunning bool) {
	if m == nil {
		return
	}
	env, status := string(d.Environment), string(d.Status)
	m.deploymentsFinished.WithLabelValues(env, status).Inc()
	m.deploymentDuration.WithLabelValues(env, status).Observe(d.Duration().Seconds())
	if wasRunning {
		m.deploymentsActive.Dec()
	}
}

// StepStarted учитывает шаг, ушедший в полёт.
func (m *Metrics) StepStarted(*domain.Step) {
	if m == nil {
		return
	}
	m.stepsRunning.Inc()
}

// StepFinished учитывает терминальный статус шага.
func (m *Metrics) StepFinished(s *domain.Step) {
	if m == nil {
		return
	}
	m.stepsFinished.WithLabelValues(string(s.Kind), string(s.Status)).Inc()
	if s.StartedAt != nil {
		m.stepsRunning.Dec()
		m.stepDuration.WithLabelValues(string(s.Kind)).Observe(time.Duration(s.DurationMs * int64(time.Millisecond)).Seconds())
	}
}

// RollbackFinished учитывает выполненный откат.
func (m *Metrics) RollbackFinished(succeeded bool) {
	if m == nil {
		return
	}
	outcome := domain.AuditOutcomeSuccess
	if !succeeded {
		outcome = domain.AuditOutcomeFailure
	}
	m.rollbacks.WithLabelValues(outcome).Inc()
}

// HTTPRequest учитывает обработанный HTTP запрос.
func (m *Metrics) HTTPRequest(method string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, statusClass(code)).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
