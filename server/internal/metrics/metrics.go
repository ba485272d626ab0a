// Package metrics 定义 prometheus 指标。Init 之前记录的数据同样有效，只是不会被导出。
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialsim_turns_total",
			Help: "Conversation turns by outcome",
		},
		[]string{"outcome"},
	)

	collaboratorCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialsim_collaborator_calls_total",
			Help: "AI collaborator calls by call type and status",
		},
		[]string{"call", "status"},
	)

	collaboratorCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "socialsim_collaborator_call_duration_seconds",
			Help:    "AI collaborator call duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		},
		[]string{"call"},
	)

	achievementsUnlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialsim_achievements_unlocked_total",
			Help: "Achievements unlocked",
		},
		[]string{"achievement"},
	)

	audioSpeaking = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "socialsim_audio_speaking",
			Help: "1 while a synthesized utterance is playing",
		},
	)

	streamClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "socialsim_stream_clients",
			Help: "Connected websocket clients",
		},
	)

	initOnce sync.Once
)

// Init 注册全部指标，可重复调用。
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			turnsTotal,
			collaboratorCallsTotal,
			collaboratorCallDuration,
			achievementsUnlocked,
			audioSpeaking,
			streamClients,
		)
	})
}

// Handler 返回 /metrics 的 HTTP handler。
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordTurn(outcome string) {
	turnsTotal.WithLabelValues(outcome).Inc()
}

func RecordCollaboratorCall(call, status string, d time.Duration) {
	collaboratorCallsTotal.WithLabelValues(call, status).Inc()
	collaboratorCallDuration.WithLabelValues(call).Observe(d.Seconds())
}

func RecordAchievement(id string) {
	achievementsUnlocked.WithLabelValues(id).Inc()
}

func SetSpeaking(v bool) {
	if v {
		audioSpeaking.Set(1)
		return
	}
	audioSpeaking.Set(0)
}

func SetStreamClients(n int) {
	streamClients.Set(float64(n))
}
