package model

// Metric is one named numeric value reported for a call-stack frame.
type Metric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// CloneMetrics returns a copy that does not share the backing array with in.
func CloneMetrics(in []Metric) []Metric {
	if in == nil {
		return nil
	}
	return append([]Metric(nil), in...)
}

// EqualMetrics reports whether a and b carry the same names and values in the same order.
func EqualMetrics(a, b []Metric) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
