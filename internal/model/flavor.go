package model

import "fmt"

// Flavor selects which profiler report a session consumes.
type Flavor string

const (
	FlavorMemory Flavor = "memory"
	FlavorCPU    Flavor = "cpu"
)

func ParseFlavor(raw string) (Flavor, error) {
	switch Flavor(raw) {
	case FlavorMemory, FlavorCPU:
		return Flavor(raw), nil
	default:
		return "", fmt.Errorf("unsupported profiler flavor %q", raw)
	}
}

func (f Flavor) String() string {
	return string(f)
}
