package integrators

import "github.com/san-kum/posctl/internal/dynamo"

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t float64, dt float64) dynamo.State {
	dx := dyn.Derive(x, u, t)
	result := make(dynamo.State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result
}

// New returns the integrator registered under name, or nil.
func New(name string) dynamo.Integrator {
	switch name {
	case "euler":
		return NewEuler()
	case "rk4", "":
		return NewRK4()
	}
	return nil
}
