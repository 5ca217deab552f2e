// Package dynamo provides the ODE primitives used by the simulated plant.
//
//   - [State]: vector representing system state
//   - [System]: interface for ODE systems (dX/dt = f(X, u, t))
//   - [Integrator]: numerical stepper interface
//
// # Example
//
//	motor := plant.NewDCMotor(plant.NEO)
//	integ := integrators.NewRK4()
//	x = integ.Step(motor, x, dynamo.Control{duty}, t, dt)
package dynamo
