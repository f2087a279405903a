package http

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's prometheus collectors on a private registry. It implements
// core.Metrics so the catalog, preview and selection layers can report into it.
type Metrics struct {
	registry *prometheus.Registry

	RoundsTotal         *prometheus.CounterVec
	RelaxationsTotal    *prometheus.CounterVec
	PreviewChecksTotal  *prometheus.CounterVec
	CatalogFetchesTotal *prometheus.CounterVec
	FilteredTracksTotal *prometheus.CounterVec
	FloodBlockedTotal   prometheus.Counter
	SelectionTime       *prometheus.HistogramVec
	ActivePlayers       prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RoundsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musicquiz_rounds_total",
				Help: "Total number of round selections by outcome",
			},
			[]string{"difficulty", "outcome"},
		),
		RelaxationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musicquiz_history_relaxations_total",
				Help: "Total number of times a player's history was cleared to refill the pool",
			},
			[]string{"difficulty"},
		),
		PreviewChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musicquiz_preview_checks_total",
				Help: "Total number of preview playability checks",
			},
			[]string{"result"},
		),
		CatalogFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musicquiz_catalog_fetches_total",
				Help: "Total number of catalog page requests",
			},
			[]string{"source", "status"},
		),
		FilteredTracksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musicquiz_filtered_tracks_total",
				Help: "Total number of catalog tracks dropped before selection",
			},
			[]string{"reason"},
		),
		FloodBlockedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "musicquiz_flood_blocked_total",
				Help: "Total number of round requests rejected by the flood limit",
			},
		),
		SelectionTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "musicquiz_selection_duration_seconds",
				Help:    "Time spent selecting a round",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"difficulty"},
		),
		ActivePlayers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "musicquiz_active_players",
				Help: "Number of player histories held in memory",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RoundsTotal,
		m.RelaxationsTotal,
		m.PreviewChecksTotal,
		m.CatalogFetchesTotal,
		m.FilteredTracksTotal,
		m.FloodBlockedTotal,
		m.SelectionTime,
		m.ActivePlayers,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordRound(difficulty, outcome string) {
	m.RoundsTotal.WithLabelValues(difficulty, outcome).Inc()
}

func (m *Metrics) RecordRelaxation(difficulty string) {
	m.RelaxationsTotal.WithLabelValues(difficulty).Inc()
}

func (m *Metrics) RecordPreviewCheck(result string) {
	m.PreviewChecksTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordCatalogFetch(source, status string) {
	m.CatalogFetchesTotal.WithLabelValues(source, status).Inc()
}

func (m *Metrics) RecordFilteredTrack(reason string) {
	m.FilteredTracksTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveSelectionTime(difficulty string, duration time.Duration) {
	m.SelectionTime.WithLabelValues(difficulty).Observe(duration.Seconds())
}

func (m *Metrics) RecordFloodBlocked() {
	m.FloodBlockedTotal.Inc()
}

func (m *Metrics) SetActivePlayers(count int) {
	m.ActivePlayers.Set(float64(count))
}
