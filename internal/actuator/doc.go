// Package actuator defines the hardware-facing collaborators of the position
// control loop.
//
// The control code only ever talks to these small interfaces:
//
//   - [PositionSensor]: encoder readings in device-native units
//   - [Drive]: normalized speed command in [-1, 1] plus idle mode
//   - [GainController]: the closed-loop controller living on the motor
//     controller, present only for closed-loop capable actuators
//
// A [Motor] bundles one named set of these for a single physical actuator.
// The simulated plant in package plant implements all three.
package actuator
