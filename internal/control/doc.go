// Package control provides the closed-loop position controller.
//
// [Position] drives one actuator toward a target position with a command
// proportional to the remaining distance, scaled by the distance that was
// left when the target was set:
//
//	speed = |currentDelta / totalDelta| * MaxSpeed
//
// so the first tick after a new target commands MaxSpeed and the command
// falls linearly to zero on arrival. The controller owns its enabled state;
// [Position.Enable] always re-targets the present position first, so control
// never resumes toward a stale target.
//
// # Usage
//
//	pos, _ := control.NewPosition(motor, control.DefaultPositionConfig(), logger)
//	_ = pos.Enable()
//	_ = pos.Rotate(20)
//	// each tick:
//	speed, err := pos.UpdateSpeed()
package control
