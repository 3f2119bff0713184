package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "callbell_active_requests",
		Help: "Open help requests on the board",
	})
	RequestEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callbell_request_events_total",
		Help: "Request lifecycle events by kind",
	}, []string{"event"}) // emergency | move | clear
	TimeToClear = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "callbell_time_to_clear_seconds",
		Help:    "Time from emergency to clear",
		Buckets: prometheus.ExponentialBuckets(15, 2, 10), // 15s .. ~2h
	})
	CommandsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callbell_commands_issued_total",
		Help: "Commands issued to devices",
	}, []string{"command"})
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "callbell_push_subscribers",
		Help: "Connected browser push subscribers (sse + websocket)",
	})
	DroppedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callbell_push_dropped_total",
		Help: "Push messages dropped because a subscriber mailbox was full",
	})
	ImageUploads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callbell_image_uploads_total",
		Help: "Accepted still-image uploads",
	})
)
