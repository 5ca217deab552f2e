package telemetry

// Store is what the control side needs from a dashboard.
type Store interface {
	PublishNumber(key string, v float64) error
	PublishBool(key string, v bool) error
	// NumberOrDefault returns def when key has no number stored.
	NumberOrDefault(key string, def float64) (float64, error)
}

// Defaulter is implemented by stores that can seed a key without clobbering
// a value an operator already entered.
type Defaulter interface {
	SetDefaultNumber(key string, v float64) error
}
