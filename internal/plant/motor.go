package plant

import "github.com/san-kum/posctl/internal/dynamo"

const DefaultBrakeTimeConstant = 0.02

// Spec describes a brushless/brushed motor as a first-order velocity lag.
// Positions are in rotations, velocities in rotations per second.
type Spec struct {
	Name              string  `yaml:"model"`
	FreeSpeed         float64 `yaml:"free_speed"`
	TimeConstant      float64 `yaml:"time_constant"`
	BrakeTimeConstant float64 `yaml:"brake_time_constant"`
}

var (
	NEO    = Spec{Name: "neo", FreeSpeed: 5676.0 / 60, TimeConstant: 0.05, BrakeTimeConstant: DefaultBrakeTimeConstant}
	NEO550 = Spec{Name: "neo550", FreeSpeed: 11000.0 / 60, TimeConstant: 0.03, BrakeTimeConstant: DefaultBrakeTimeConstant}
	CIM    = Spec{Name: "cim", FreeSpeed: 5310.0 / 60, TimeConstant: 0.08, BrakeTimeConstant: DefaultBrakeTimeConstant}
)

// DCMotor integrates state [position, velocity] under control [output, brake].
// output is the applied duty in [-1, 1]; brake is 1 when the motor is idling in
// brake mode.
type DCMotor struct {
	Spec Spec
}

func NewDCMotor(spec Spec) *DCMotor {
	if spec.BrakeTimeConstant <= 0 {
		spec.BrakeTimeConstant = DefaultBrakeTimeConstant
	}
	return &DCMotor{Spec: spec}
}

func (m *DCMotor) StateDim() int   { return 2 }
func (m *DCMotor) ControlDim() int { return 2 }

func (m *DCMotor) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	vel := x[1]
	output, brake := 0.0, 0.0
	if len(u) > 0 {
		output = u[0]
	}
	if len(u) > 1 {
		brake = u[1]
	}

	if output == 0 && brake > 0 {
		return dynamo.State{vel, -vel / m.Spec.BrakeTimeConstant}
	}
	return dynamo.State{vel, (output*m.Spec.FreeSpeed - vel) / m.Spec.TimeConstant}
}
