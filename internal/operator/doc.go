// Package operator turns button presses into position-control actions and
// runs the periodic control loop.
package operator
