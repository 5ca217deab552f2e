package tuning_test

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/san-kum/posctl/internal/actuator"
	"github.com/san-kum/posctl/internal/telemetry"
)

type call struct {
	method string
	args   []float64
}

func (c call) String() string { return fmt.Sprintf("%s%v", c.method, c.args) }

// recordingGains is a GainController that remembers every write.
type recordingGains struct {
	calls []call
	fail  map[string]error
}

func newRecordingGains() *recordingGains {
	return &recordingGains{fail: map[string]error{}}
}

func (r *recordingGains) record(method string, args ...float64) error {
	if err := r.fail[method]; err != nil {
		return err
	}
	r.calls = append(r.calls, call{method, args})
	return nil
}

func (r *recordingGains) SetProportionalGain(v float64) error { return r.record("P", v) }
func (r *recordingGains) SetIntegralGain(v float64) error     { return r.record("I", v) }
func (r *recordingGains) SetDerivativeGain(v float64) error   { return r.record("D", v) }
func (r *recordingGains) SetIntegralZone(v float64) error     { return r.record("IZone", v) }
func (r *recordingGains) SetFeedForward(v float64) error      { return r.record("FF", v) }
func (r *recordingGains) SetOutputRange(min, max float64) error {
	return r.record("OutputRange", min, max)
}

func (r *recordingGains) count(method string) int {
	n := 0
	for _, c := range r.calls {
		if c.method == method {
			n++
		}
	}
	return n
}

type fakeSensor struct {
	pos, vel float64
	inverted bool
	err      error
}

func (f *fakeSensor) Position() (float64, error) { return f.pos, f.err }
func (f *fakeSensor) Velocity() (float64, error) { return f.vel, f.err }
func (f *fakeSensor) Inverted() bool             { return f.inverted }

// flakyStore is a Store with no Defaulter support that can be switched off.
type flakyStore struct {
	table *telemetry.Table
	down  bool
	reads int
}

func (f *flakyStore) PublishNumber(key string, v float64) error {
	if f.down {
		return actuator.ErrTelemetryUnavailable
	}
	return f.table.PublishNumber(key, v)
}

func (f *flakyStore) PublishBool(key string, v bool) error {
	if f.down {
		return actuator.ErrTelemetryUnavailable
	}
	return f.table.PublishBool(key, v)
}

func (f *flakyStore) NumberOrDefault(key string, def float64) (float64, error) {
	f.reads++
	if f.down {
		return def, errors.Wrap(actuator.ErrTelemetryUnavailable, key)
	}
	return f.table.NumberOrDefault(key, def)
}

type tracker struct{ target, total float64 }

func (t tracker) Target() float64     { return t.target }
func (t tracker) TotalDelta() float64 { return t.total }

// valueStore serves fixed numbers, including ones a Table would refuse.
type valueStore map[string]float64

func (s valueStore) PublishNumber(string, float64) error { return nil }
func (s valueStore) PublishBool(string, bool) error      { return nil }

func (s valueStore) NumberOrDefault(key string, def float64) (float64, error) {
	if v, ok := s[key]; ok {
		return v, nil
	}
	return def, nil
}
