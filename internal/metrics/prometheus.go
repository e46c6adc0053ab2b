// Package metrics 提供通话桥接的Prometheus指标
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 帧方向
const (
	DirectionInbound  = "inbound"  // 来电方到模型
	DirectionOutbound = "outbound" // 模型到来电方
)

// Metrics 桥接服务的全部指标。nil接收者上的Record方法不做任何事。
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions  prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionsEnded   *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	Commits        prometheus.Counter
	BargeIns       prometheus.Counter
	Reconnects     *prometheus.CounterVec
	Frames         *prometheus.CounterVec
	DroppedFrames  *prometheus.CounterVec
	ProtocolErrors *prometheus.CounterVec
	ModelErrors    *prometheus.CounterVec
}

// New 在独立的Registry上创建并注册全部指标
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_active_sessions",
			Help: "Current number of active call sessions",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_sessions_started_total",
			Help: "Total number of call sessions accepted",
		}),
		SessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_sessions_ended_total",
			Help: "Total number of call sessions ended, by reason",
		}, []string{"reason"}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_session_duration_seconds",
			Help:    "Duration of call sessions",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		Commits: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_input_commits_total",
			Help: "Total number of input buffer commits sent to the model",
		}),
		BargeIns: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_barge_ins_total",
			Help: "Total number of caller interruptions of assistant speech",
		}),
		Reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_model_reconnects_total",
			Help: "Total number of model reconnect attempts, by result",
		}, []string{"result"}),
		Frames: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_audio_frames_total",
			Help: "Total number of audio frames relayed, by direction",
		}, []string{"direction"}),
		DroppedFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_audio_frames_dropped_total",
			Help: "Total number of audio frames dropped, by reason",
		}, []string{"reason"}),
		ProtocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_protocol_errors_total",
			Help: "Total number of undecodable messages, by peer",
		}, []string{"peer"}),
		ModelErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_model_errors_total",
			Help: "Total number of error events reported by the model, by code",
		}, []string{"code"}),
	}
}

// Handler 返回/metrics的HTTP处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回底层Registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordSessionStart 记录会话开始
func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

// RecordSessionEnd 记录会话结束
func (m *Metrics) RecordSessionEnd(reason string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionsEnded.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(duration.Seconds())
}

// RecordCommit 记录一次输入提交
func (m *Metrics) RecordCommit() {
	if m == nil {
		return
	}
	m.Commits.Inc()
}

// RecordBargeIn 记录一次打断
func (m *Metrics) RecordBargeIn() {
	if m == nil {
		return
	}
	m.BargeIns.Inc()
}

// RecordReconnect 记录一次重连结果
func (m *Metrics) RecordReconnect(ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.Reconnects.WithLabelValues(result).Inc()
}

// RecordFrame 记录转发的帧
func (m *Metrics) RecordFrame(direction string) {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues(direction).Inc()
}

// RecordDroppedFrame 记录丢弃的帧
func (m *Metrics) RecordDroppedFrame(reason string) {
	if m == nil {
		return
	}
	m.DroppedFrames.WithLabelValues(reason).Inc()
}

// RecordProtocolError 记录无法解码的消息
func (m *Metrics) RecordProtocolError(peer string) {
	if m == nil {
		return
	}
	m.ProtocolErrors.WithLabelValues(peer).Inc()
}

// RecordModelError 记录模型返回的错误事件
func (m *Metrics) RecordModelError(code string) {
	if m == nil {
		return
	}
	m.ModelErrors.WithLabelValues(code).Inc()
}
