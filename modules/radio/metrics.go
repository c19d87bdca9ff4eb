package radio

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "personalradio"

var (
	metricResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "resolutions_total",
		Help:      "Stream resolutions by provider and outcome.",
	}, []string{"provider", "outcome"})

	metricManifestLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "manifest_loaded",
		Help:      "1 when the key manifest was loaded and decrypted.",
	})

	metricNotices = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notices_total",
		Help:      "Notices raised by kind and message key.",
	}, []string{"kind", "key"})

	metricTransport = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transport_commands_total",
		Help:      "Player transport commands by command and outcome.",
	}, []string{"command", "outcome"})

	metricStatePushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "state_pushes_total",
		Help:      "Playback state updates by kind.",
	}, []string{"kind"})
)
