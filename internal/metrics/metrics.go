package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"profwatch/internal/model"
	"profwatch/internal/protocol"
	"profwatch/internal/session"
)

// Teardown reasons.
const (
	ReasonRequested = "requested"
	ReasonProtocol  = "protocol"
	ReasonTransport = "transport"
	ReasonOther     = "other"
)

// Ingest holds the ingestion collectors of one agent.
type Ingest struct {
	snapshots     *prometheus.CounterVec
	records       *prometheus.CounterVec
	defaulted     *prometheus.CounterVec
	nodesAdded    *prometheus.CounterVec
	nodesPruned   *prometheus.CounterVec
	treeNodes     *prometheus.GaugeVec
	pullDuration  *prometheus.HistogramVec
	teardowns     *prometheus.CounterVec
	notifyDropped prometheus.Counter
}

func NewIngest(reg prometheus.Registerer) *Ingest {
	f := promauto.With(reg)
	return &Ingest{
		snapshots: f.NewCounterVec(prometheus.CounterOpts{
			Name: "profwatch_snapshots_total",
			Help: "Snapshots read from profiler connections, by outcome",
		}, []string{"flavor", "outcome"}),
		records: f.NewCounterVec(prometheus.CounterOpts{
			Name: "profwatch_records_total",
			Help: "Record lines read from profiler connections",
		}, []string{"flavor"}),
		defaulted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "profwatch_defaulted_fields_total",
			Help: "Metric fields replaced by their default after a failed parse",
		}, []string{"flavor"}),
		nodesAdded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "profwatch_nodes_added_total",
			Help: "Call tree nodes created",
		}, []string{"flavor"}),
		nodesPruned: f.NewCounterVec(prometheus.CounterOpts{
			Name: "profwatch_nodes_pruned_total",
			Help: "Call tree subtrees pruned after a snapshot",
		}, []string{"flavor"}),
		treeNodes: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "profwatch_tree_nodes",
			Help: "Nodes in the call tree after the last pull",
		}, []string{"flavor"}),
		pullDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "profwatch_pull_duration_seconds",
			Help:    "Time from the start of a pull until its snapshot was read",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"flavor"}),
		teardowns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "profwatch_session_teardowns_total",
			Help: "Sessions torn down, by reason",
		}, []string{"flavor", "reason"}),
		notifyDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "profwatch_notifications_dropped_total",
			Help: "Tree updates not delivered to a subscriber with a full buffer",
		}),
	}
}

func (m *Ingest) ObservePull(res session.Result) {
	flavor := res.Flavor.String()
	m.snapshots.WithLabelValues(flavor, string(res.Outcome)).Inc()
	m.records.WithLabelValues(flavor).Add(float64(res.Records))
	m.defaulted.WithLabelValues(flavor).Add(float64(res.Defaulted))
	m.nodesAdded.WithLabelValues(flavor).Add(float64(len(res.Delta.Added)))
	m.nodesPruned.WithLabelValues(flavor).Add(float64(len(res.Delta.Removed)))
	m.pullDuration.WithLabelValues(flavor).Observe(res.Duration.Seconds())
	if res.Reset {
		m.treeNodes.WithLabelValues(flavor).Set(1)
	} else {
		m.treeNodes.WithLabelValues(flavor).Set(float64(res.Nodes))
	}
}

// ObserveTeardown counts a session ending with err; nil counts as requested.
func (m *Ingest) ObserveTeardown(flavor model.Flavor, err error) {
	m.teardowns.WithLabelValues(flavor.String(), Reason(err)).Inc()
}

func (m *Ingest) NotificationDropped() {
	m.notifyDropped.Inc()
}

func Reason(err error) string {
	var (
		perr *protocol.ProtocolError
		terr *protocol.TransportError
	)
	switch {
	case err == nil:
		return ReasonRequested
	case errors.As(err, &perr):
		return ReasonProtocol
	case errors.As(err, &terr):
		return ReasonTransport
	default:
		return ReasonOther
	}
}
