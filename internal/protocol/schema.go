package protocol

import (
	"fmt"

	"profwatch/internal/model"
)

type MetricKind uint8

const (
	// KindCount fields only accept integers.
	KindCount MetricKind = iota
	KindReal
)

// MetricSpec describes one positional metric column of a record.
type MetricSpec struct {
	Name    string
	Kind    MetricKind
	Default float64
	// Scale multiplies successfully parsed values. Zero means 1.
	Scale float64
}

// Schema is the ordered list of metric columns for one profiler flavor.
type Schema struct {
	Flavor  model.Flavor
	Metrics []MetricSpec
}

var memorySchema = Schema{
	Flavor: model.FlavorMemory,
	Metrics: []MetricSpec{
		{Name: "total_count", Kind: KindCount, Default: -1},
		{Name: "self_count", Kind: KindCount, Default: -1},
		{Name: "total_kb", Kind: KindReal, Default: 0},
		{Name: "self_kb", Kind: KindReal, Default: 0},
		{Name: "self_count_per_frame", Kind: KindReal, Default: -1},
		{Name: "calls_per_frame", Kind: KindReal, Default: -1},
	},
}

var cpuSchema = Schema{
	Flavor: model.FlavorCPU,
	Metrics: []MetricSpec{
		{Name: "total_time_pct", Kind: KindReal},
		{Name: "self_time_pct", Kind: KindReal},
		// seconds on the wire, milliseconds in the tree
		{Name: "total_time_per_call_ms", Kind: KindReal, Scale: 1000},
		{Name: "self_time_per_call_ms", Kind: KindReal, Scale: 1000},
		{Name: "calls_per_frame", Kind: KindReal},
	},
}

func SchemaFor(f model.Flavor) (Schema, error) {
	switch f {
	case model.FlavorMemory:
		return memorySchema, nil
	case model.FlavorCPU:
		return cpuSchema, nil
	default:
		return Schema{}, fmt.Errorf("no record schema for flavor %q", f)
	}
}

// MustSchema is SchemaFor for flavors known at compile time.
func MustSchema(f model.Flavor) Schema {
	s, err := SchemaFor(f)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Schema) MetricNames() []string {
	out := make([]string, len(s.Metrics))
	for i, m := range s.Metrics {
		out[i] = m.Name
	}
	return out
}
