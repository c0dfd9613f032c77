package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	updatesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "max_updates_received_total",
			Help: "Inbound updates received per entry and transport.",
		},
		[]string{"entry", "transport"},
	)

	updatesDeduplicated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "max_updates_deduplicated_total",
			Help: "Updates suppressed as duplicates within the dedup window.",
		},
		[]string{"entry"},
	)

	updatesParseFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "max_updates_parse_failed_total",
			Help: "Updates dropped because they could not be normalized.",
		},
		[]string{"entry"},
	)

	eventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "max_events_emitted_total",
			Help: "Normalized events emitted to the host sink.",
		},
		[]string{"entry", "update_type"},
	)

	pollFetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "max_poll_fetch_errors_total",
			Help: "Transient long-poll fetch failures.",
		},
		[]string{"entry"},
	)
)

func init() {
	register(updatesReceived, updatesDeduplicated, updatesParseFailed, eventsEmitted, pollFetchErrors)
}

func UpdateReceived(entry, transport string) { updatesReceived.WithLabelValues(entry, transport).Inc() }
func UpdateDeduplicated(entry string)        { updatesDeduplicated.WithLabelValues(entry).Inc() }
func UpdateParseFailed(entry string)         { updatesParseFailed.WithLabelValues(entry).Inc() }
func EventEmitted(entry, updateType string)  { eventsEmitted.WithLabelValues(entry, updateType).Inc() }
func PollFetchError(entry string)            { pollFetchErrors.WithLabelValues(entry).Inc() }
