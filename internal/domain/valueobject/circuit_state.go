package valueobject

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// String returns the wire name of the state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so states render by name in JSON.
func (s CircuitState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
