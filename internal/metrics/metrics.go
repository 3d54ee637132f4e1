package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 汇总语音流水线的 Prometheus 指标。nil 接收者上的方法都是空操作。
type Metrics struct {
	Requests      *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	ResponsePath  *prometheus.CounterVec
	TTSDegraded   prometheus.Counter
	Capability    *prometheus.GaugeVec
}

// New 在 reg 上注册全部指标。
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_pipeline_requests_total",
			Help: "Total number of pipeline runs by outcome",
		}, []string{"outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_pipeline_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}, []string{"stage"}),
		ResponsePath: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_pipeline_response_path_total",
			Help: "Which response path produced the reply",
		}, []string{"path"}),
		TTSDegraded: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_pipeline_tts_degraded_total",
			Help: "Total number of runs that returned no audio while TTS was available",
		}),
		Capability: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voice_pipeline_capability_available",
			Help: "Startup probe result per capability (1 = available)",
		}, []string{"capability"}),
	}
}

func (m *Metrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(outcome).Inc()
}

// ObserveStage 记录从 start 到现在的阶段耗时。
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveResponsePath(path string) {
	if m == nil {
		return
	}
	m.ResponsePath.WithLabelValues(path).Inc()
}

func (m *Metrics) ObserveTTSDegraded() {
	if m == nil {
		return
	}
	m.TTSDegraded.Inc()
}

func (m *Metrics) SetCapability(name string, available bool) {
	if m == nil {
		return
	}
	v := 0.0
	if available {
		v = 1
	}
	m.Capability.WithLabelValues(name).Set(v)
}
