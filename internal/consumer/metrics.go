package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the consumer runtime.
type Metrics struct {
	RecordsConsumed prometheus.Counter
	FetchErrors     prometheus.Counter
	CommitErrors    prometheus.Counter
	Rebalances      *prometheus.CounterVec
	RebalanceErrors *prometheus.CounterVec
}

// NewMetrics creates consumer metrics registered with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecordsConsumed: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamsink_consumer_records_consumed_total",
			Help: "Total records consumed and accepted by the sink",
		}),
		FetchErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamsink_consumer_fetch_errors_total",
			Help: "Total Kafka fetch errors",
		}),
		CommitErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamsink_consumer_commit_errors_total",
			Help: "Total offset commit failures after retries",
		}),
		Rebalances: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamsink_consumer_rebalances_total",
			Help: "Total rebalance events by kind",
		}, []string{"event"}),
		RebalanceErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamsink_consumer_rebalance_errors_total",
			Help: "Total sink failures during rebalance callbacks by kind",
		}, []string{"event"}),
	}
}
