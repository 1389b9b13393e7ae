package protocol

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"profwatch/internal/model"
)

const Delimiter = ";"

var errNonFinite = errors.New("non-finite value")

// Record is one tokenized line of a snapshot.
type Record struct {
	Depth   int
	ID      string
	Name    string
	Metrics []model.Metric
	// Defaulted counts metric fields that fell back to their default.
	Defaulted int
}

// ParseRecord splits line into depth, id, name and the metrics described by schema.
// Structural problems are returned as *ProtocolError; bad metric fields are not errors.
func ParseRecord(line string, schema Schema) (Record, error) {
	fields := strings.Split(line, Delimiter)
	if len(fields) < 3 {
		return Record{}, &ProtocolError{Line: line, Reason: "record needs depth, id and name"}
	}

	depth, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return Record{}, &ProtocolError{Line: line, Reason: "unparseable depth", Err: err}
	}
	if depth < 0 {
		return Record{}, &ProtocolError{Line: line, Reason: "negative depth"}
	}

	rec := Record{
		Depth:   depth,
		ID:      fields[1],
		Name:    fields[2],
		Metrics: make([]model.Metric, len(schema.Metrics)),
	}
	if rec.ID == "" {
		return Record{}, &ProtocolError{Line: line, Reason: "empty node id"}
	}

	raw := fields[3:]
	for i, spec := range schema.Metrics {
		field := ""
		if i < len(raw) {
			field = raw[i]
		}
		v, perr := ParseMetric(field, spec)
		if perr != nil {
			rec.Defaulted++
		}
		rec.Metrics[i] = model.Metric{Name: spec.Name, Value: v}
	}
	return rec, nil
}

// ParseMetric parses one metric field. On failure it returns the spec default together
// with a *NumericParseError so callers can choose to continue.
func ParseMetric(raw string, spec MetricSpec) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return spec.Default, &NumericParseError{Field: spec.Name, Raw: raw, Err: strconv.ErrSyntax}
	}

	var value float64
	switch spec.Kind {
	case KindCount:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return spec.Default, &NumericParseError{Field: spec.Name, Raw: raw, Err: err}
		}
		value = float64(i)
	default:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return spec.Default, &NumericParseError{Field: spec.Name, Raw: raw, Err: err}
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return spec.Default, &NumericParseError{Field: spec.Name, Raw: raw, Err: errNonFinite}
		}
		value = f
	}

	if spec.Scale != 0 {
		value *= spec.Scale
	}
	return value, nil
}

// Format renders r in the wire format, including the trailing delimiter the
// instrumented process emits. Metric values are written unscaled.
func (r Record) Format(schema Schema) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(r.Depth))
	b.WriteString(Delimiter)
	b.WriteString(r.ID)
	b.WriteString(Delimiter)
	b.WriteString(r.Name)
	b.WriteString(Delimiter)
	for i, m := range r.Metrics {
		v := m.Value
		if i < len(schema.Metrics) && schema.Metrics[i].Scale != 0 {
			v /= schema.Metrics[i].Scale
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		b.WriteString(Delimiter)
	}
	return b.String()
}
