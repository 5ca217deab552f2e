package operator

import (
	"strings"

	"github.com/pkg/errors"
)

// Button names an operator input.
type Button int

const (
	ButtonToggle Button = iota
	ButtonIncrease
	ButtonDecrease
)

var buttonNames = map[Button]string{
	ButtonToggle:   "toggle",
	ButtonIncrease: "increase",
	ButtonDecrease: "decrease",
}

func (b Button) String() string {
	if s, ok := buttonNames[b]; ok {
		return s
	}
	return "unknown"
}

// ParseButton accepts a button name or its gamepad alias (back, y, x).
func ParseButton(s string) (Button, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "toggle", "back":
		return ButtonToggle, nil
	case "increase", "y":
		return ButtonIncrease, nil
	case "decrease", "x":
		return ButtonDecrease, nil
	}
	return 0, errors.Errorf("unknown button %q", s)
}

// Events are the edge events seen during one tick.
type Events struct {
	Toggle   bool
	Increase bool
	Decrease bool
}

func (e Events) Any() bool {
	return e.Toggle || e.Increase || e.Decrease
}

// Merge ORs two event sets.
func (e Events) Merge(o Events) Events {
	return Events{
		Toggle:   e.Toggle || o.Toggle,
		Increase: e.Increase || o.Increase,
		Decrease: e.Decrease || o.Decrease,
	}
}

// Press returns e with b set.
func (e Events) Press(b Button) Events {
	switch b {
	case ButtonToggle:
		e.Toggle = true
	case ButtonIncrease:
		e.Increase = true
	case ButtonDecrease:
		e.Decrease = true
	}
	return e
}

// Buttons is the held state of the operator's buttons.
type Buttons struct {
	Back bool
	X    bool
	Y    bool
}

// EdgeDetector reports a button only on the tick it goes from released to
// pressed.
type EdgeDetector struct {
	prev Buttons
}

func (d *EdgeDetector) Update(b Buttons) Events {
	ev := Events{
		Toggle:   b.Back && !d.prev.Back,
		Decrease: b.X && !d.prev.X,
		Increase: b.Y && !d.prev.Y,
	}
	d.prev = b
	return ev
}

// ErrInputBusy is returned when presses arrive faster than the loop drains
// them.
var ErrInputBusy = errors.New("operator input queue full")

// Input is a buffered queue of presses feeding Loop.Run.
type Input struct {
	ch chan Events
}

func NewInput(size int) *Input {
	if size < 1 {
		size = 1
	}
	return &Input{ch: make(chan Events, size)}
}

// C is the channel to hand to Loop.Run.
func (in *Input) C() <-chan Events { return in.ch }

// Send queues ev without blocking.
func (in *Input) Send(ev Events) error {
	select {
	case in.ch <- ev:
		return nil
	default:
		return ErrInputBusy
	}
}

// Press queues the named button. It has the shape of a telemetry input
// handler.
func (in *Input) Press(name string) error {
	b, err := ParseButton(name)
	if err != nil {
		return err
	}
	return in.Send(Events{}.Press(b))
}
