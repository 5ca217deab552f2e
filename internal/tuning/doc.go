// Package tuning keeps a motor controller's gains in step with values an
// operator edits on the telemetry dashboard, and publishes the actuator's
// state back to it.
package tuning
