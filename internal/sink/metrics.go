package sink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the sink.
type Metrics struct {
	RecordsRouted      prometheus.Counter
	RouteErrors        prometheus.Counter
	RecordsWritten     prometheus.Counter
	ObjectsCommitted   prometheus.Counter
	FlushErrors        prometheus.Counter
	WriterCloseErrors  prometheus.Counter
	PartitionsAssigned prometheus.Gauge
}

// NewMetrics creates sink metrics registered with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecordsRouted: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamsink_sink_records_routed_total",
			Help: "Total records routed to partition writer buffers",
		}),
		RouteErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamsink_sink_route_errors_total",
			Help: "Total records that could not be routed to an assigned partition",
		}),
		RecordsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamsink_sink_records_written_total",
			Help: "Total records serialized into committed objects",
		}),
		ObjectsCommitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamsink_sink_objects_committed_total",
			Help: "Total objects committed to the object store",
		}),
		FlushErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamsink_sink_flush_errors_total",
			Help: "Total partition flush failures",
		}),
		WriterCloseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamsink_sink_writer_close_errors_total",
			Help: "Total partition writer close failures",
		}),
		PartitionsAssigned: factory.NewGauge(prometheus.GaugeOpts{
			Name: "streamsink_sink_partitions_assigned",
			Help: "Number of partitions currently assigned to this sink",
		}),
	}
}
