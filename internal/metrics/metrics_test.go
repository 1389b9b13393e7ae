package metrics

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"profwatch/internal/calltree"
	"profwatch/internal/model"
	"profwatch/internal/protocol"
	"profwatch/internal/session"
)

func TestIngest_ObservePull(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIngest(reg)

	m.ObservePull(session.Result{
		Flavor:    model.FlavorMemory,
		Outcome:   session.OutcomeApplied,
		Records:   4,
		Defaulted: 2,
		Nodes:     4,
		Duration:  20 * time.Millisecond,
		Delta:     calltree.Delta{Added: []calltree.Path{{}, {"a"}, {"a", "b"}, {"c"}}},
	})
	m.ObservePull(session.Result{
		Flavor:  model.FlavorMemory,
		Outcome: session.OutcomeApplied,
		Records: 2,
		Nodes:   2,
		Delta:   calltree.Delta{Removed: []calltree.Path{{"a"}}},
	})

	require.Equal(t, 2.0, testutil.ToFloat64(m.snapshots.WithLabelValues("memory", "applied")))
	require.Equal(t, 6.0, testutil.ToFloat64(m.records.WithLabelValues("memory")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.defaulted.WithLabelValues("memory")))
	require.Equal(t, 4.0, testutil.ToFloat64(m.nodesAdded.WithLabelValues("memory")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.nodesPruned.WithLabelValues("memory")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.treeNodes.WithLabelValues("memory")))

	m.ObservePull(session.Result{Flavor: model.FlavorMemory, Outcome: session.OutcomeFailed, Reset: true, Nodes: 2})
	require.Equal(t, 1.0, testutil.ToFloat64(m.treeNodes.WithLabelValues("memory")))

	expected := `
# HELP profwatch_snapshots_total Snapshots read from profiler connections, by outcome
# TYPE profwatch_snapshots_total counter
profwatch_snapshots_total{flavor="memory",outcome="applied"} 2
profwatch_snapshots_total{flavor="memory",outcome="failed"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "profwatch_snapshots_total"))
}

func TestIngest_Teardowns(t *testing.T) {
	m := NewIngest(prometheus.NewRegistry())

	m.ObserveTeardown(model.FlavorCPU, nil)
	m.ObserveTeardown(model.FlavorCPU, fmt.Errorf("pull: %w", &protocol.ProtocolError{Reason: "bad"}))
	m.ObserveTeardown(model.FlavorCPU, &protocol.TransportError{Op: "read"})
	m.NotificationDropped()

	require.Equal(t, 1.0, testutil.ToFloat64(m.teardowns.WithLabelValues("cpu", ReasonRequested)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.teardowns.WithLabelValues("cpu", ReasonProtocol)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.teardowns.WithLabelValues("cpu", ReasonTransport)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.notifyDropped))
}

func TestReason(t *testing.T) {
	require.Equal(t, ReasonOther, Reason(&session.ConnectionError{Addr: "x"}))
}

func TestNewIngest_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewIngest(reg)
	require.Panics(t, func() { NewIngest(reg) })
}
