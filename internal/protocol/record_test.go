package protocol

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profwatch/internal/model"
)

func metricValues(rec Record) []float64 {
	out := make([]float64, len(rec.Metrics))
	for i, m := range rec.Metrics {
		out[i] = m.Value
	}
	return out
}

func TestParseRecord_Memory(t *testing.T) {
	schema := MustSchema(model.FlavorMemory)

	rec, err := ParseRecord("2;0x4f10;alloc_vertices;12;3;40.5;8.25;1.5;4;", schema)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Depth)
	assert.Equal(t, "0x4f10", rec.ID)
	assert.Equal(t, "alloc_vertices", rec.Name)
	assert.Equal(t, []float64{12, 3, 40.5, 8.25, 1.5, 4}, metricValues(rec))
	assert.Equal(t, schema.MetricNames(), []string{
		rec.Metrics[0].Name, rec.Metrics[1].Name, rec.Metrics[2].Name,
		rec.Metrics[3].Name, rec.Metrics[4].Name, rec.Metrics[5].Name,
	})
	assert.Zero(t, rec.Defaulted)
}

func TestParseRecord_CPUScalesPerCallTimes(t *testing.T) {
	schema := MustSchema(model.FlavorCPU)

	rec, err := ParseRecord("1;main;main;100;2.5;0.016;0.0005;1;", schema)
	require.NoError(t, err)
	vals := metricValues(rec)
	assert.Equal(t, 100.0, vals[0])
	assert.Equal(t, 2.5, vals[1])
	assert.InDelta(t, 16.0, vals[2], 1e-9)
	assert.InDelta(t, 0.5, vals[3], 1e-9)
	assert.Equal(t, 1.0, vals[4])
}

func TestParseRecord_DefaultsBadFields(t *testing.T) {
	mem := MustSchema(model.FlavorMemory)
	cpu := MustSchema(model.FlavorCPU)

	tests := []struct {
		name      string
		line      string
		schema    Schema
		want      []float64
		defaulted int
	}{
		{
			name:      "missing trailing fields",
			line:      "0;root;root;5;",
			schema:    mem,
			want:      []float64{5, -1, 0, 0, -1, -1},
			defaulted: 5,
		},
		{
			name:      "no metrics at all",
			line:      "0;root;root",
			schema:    cpu,
			want:      []float64{0, 0, 0, 0, 0},
			defaulted: 5,
		},
		{
			name:      "fractional count",
			line:      "1;a;a;1.5;2;3;4;5;6;",
			schema:    mem,
			want:      []float64{-1, 2, 3, 4, 5, 6},
			defaulted: 1,
		},
		{
			name:      "garbage and non-finite",
			line:      "1;a;a;x;NaN;+Inf;1e3;;7;",
			schema:    mem,
			want:      []float64{-1, -1, 0, 1000, -1, 7},
			defaulted: 4,
		},
		{
			name:      "bad value is not scaled",
			line:      "1;a;a;1;2;oops;0.001;3;",
			schema:    cpu,
			want:      []float64{1, 2, 0, 1, 3},
			defaulted: 1,
		},
		{
			name:      "extra fields ignored",
			line:      "1;a;a;1;2;3;4;5;extra;more;",
			schema:    cpu,
			want:      []float64{1, 2, 3000, 4000, 5},
			defaulted: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := ParseRecord(tt.line, tt.schema)
			require.NoError(t, err)
			vals := metricValues(rec)
			require.Len(t, vals, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], vals[i], 1e-9, "field %d", i)
			}
			assert.Equal(t, tt.defaulted, rec.Defaulted)
		})
	}
}

func TestParseRecord_ProtocolErrors(t *testing.T) {
	schema := MustSchema(model.FlavorMemory)

	for _, line := range []string{
		"0;root",
		"garbage",
		"x;root;root;",
		"-1;root;root;",
		"1;;name;",
	} {
		t.Run(line, func(t *testing.T) {
			_, err := ParseRecord(line, schema)
			var perr *ProtocolError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, line, perr.Line)
		})
	}
}

func TestParseRecord_TrimsDepth(t *testing.T) {
	rec, err := ParseRecord(" 3 ;id;name;", MustSchema(model.FlavorCPU))
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Depth)
}

func TestParseMetric(t *testing.T) {
	spec := MetricSpec{Name: "total_count", Kind: KindCount, Default: -1}

	v, err := ParseMetric(" 42 ", spec)
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)

	v, err = ParseMetric("4x", spec)
	assert.Equal(t, -1.0, v)
	var nerr *NumericParseError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "total_count", nerr.Field)
	assert.True(t, errors.Is(err, strconv.ErrSyntax))

	_, err = ParseMetric("Inf", MetricSpec{Name: "x", Kind: KindReal})
	require.ErrorAs(t, err, &nerr)
}

func TestRecord_FormatRoundTrip(t *testing.T) {
	schema := MustSchema(model.FlavorCPU)
	line := "2;f;render;50;10;0.002;0.001;3;"

	rec, err := ParseRecord(line, schema)
	require.NoError(t, err)
	again, err := ParseRecord(rec.Format(schema), schema)
	require.NoError(t, err)
	assert.Equal(t, rec.Depth, again.Depth)
	assert.Equal(t, rec.ID, again.ID)
	for i := range rec.Metrics {
		assert.InDelta(t, rec.Metrics[i].Value, again.Metrics[i].Value, 1e-9)
	}
}

func TestSchemaFor_Unknown(t *testing.T) {
	_, err := SchemaFor(model.Flavor("gpu"))
	require.Error(t, err)
}
