package actuator

import "github.com/pkg/errors"

// Domain errors for the control loop.
var (
	// ErrSensorUnavailable indicates the position sensor could not be read.
	ErrSensorUnavailable = errors.New("actuator: position sensor unavailable")

	// ErrNonFinite indicates a sensor returned NaN or Inf.
	ErrNonFinite = errors.New("actuator: non-finite sensor reading")

	// ErrDisabled indicates a target change was requested while control is disabled.
	ErrDisabled = errors.New("actuator: position control disabled")

	// ErrTelemetryUnavailable indicates the telemetry store could not be reached.
	ErrTelemetryUnavailable = errors.New("actuator: telemetry store unavailable")

	// ErrInvalidOutputRange indicates min output greater than max output.
	ErrInvalidOutputRange = errors.New("actuator: invalid output range")

	// ErrUnknownGain indicates a gain name that is not part of the gain set.
	ErrUnknownGain = errors.New("actuator: unknown gain")
)

func wrapSensor(err error) error {
	if errors.Is(err, ErrSensorUnavailable) {
		return err
	}
	return errors.Wrap(ErrSensorUnavailable, err.Error())
}

// NewOutputRangeError returns an error for an output range with min > max.
func NewOutputRangeError(min, max float64) error {
	return errors.Wrapf(ErrInvalidOutputRange, "min %v > max %v", min, max)
}

// NewUnknownGainError returns an error for a gain name the gain set does not have.
func NewUnknownGainError(name string) error {
	return errors.Wrapf(ErrUnknownGain, "%q", name)
}
