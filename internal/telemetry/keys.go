package telemetry

// Per-actuator key suffixes. The full key is the actuator name followed by
// the suffix, e.g. "Motor P Gain".
const (
	SuffixPosition    = " Position"
	SuffixRotation    = " Rotation"
	SuffixInverted    = " Inverted?"
	SuffixPGain       = " P Gain"
	SuffixIGain       = " I Gain"
	SuffixDGain       = " D Gain"
	SuffixIZone       = " I Zone"
	SuffixFeedForward = " Feed Forward"
	SuffixMinOutput   = " Min Output"
	SuffixMaxOutput   = " Max Output"
	// Dashboards in the field already bind to this spelling.
	SuffixTargetPosition = " Target Postion"
	SuffixTotalDelta     = " Total Delta"
)

// Loop-wide keys.
const (
	KeyMotorEnabled   = "Motor Enabled?"
	KeyTargetPosition = "Target Position"
)

// Key joins an actuator name and a suffix.
func Key(name, suffix string) string {
	return name + suffix
}
