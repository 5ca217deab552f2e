package tuning

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/san-kum/posctl/internal/actuator"
	"github.com/san-kum/posctl/internal/telemetry"
)

// binding ties one cached gain to its dashboard key and its hardware setter.
type binding struct {
	name   string
	suffix string
	field  func(*actuator.Gains) *float64
	write  func(actuator.GainController, float64) error
}

var scalarBindings = []binding{
	{"p", telemetry.SuffixPGain, func(g *actuator.Gains) *float64 { return &g.P }, actuator.GainController.SetProportionalGain},
	{"i", telemetry.SuffixIGain, func(g *actuator.Gains) *float64 { return &g.I }, actuator.GainController.SetIntegralGain},
	{"d", telemetry.SuffixDGain, func(g *actuator.Gains) *float64 { return &g.D }, actuator.GainController.SetDerivativeGain},
	{"i_zone", telemetry.SuffixIZone, func(g *actuator.Gains) *float64 { return &g.IZone }, actuator.GainController.SetIntegralZone},
	{"ff", telemetry.SuffixFeedForward, func(g *actuator.Gains) *float64 { return &g.FF }, actuator.GainController.SetFeedForward},
}

// Param is one gain as shown to an operator.
type Param struct {
	Name  string
	Key   string
	Value float64
}

// GainSet caches the gains last written to a hardware controller.
type GainSet struct {
	name   string
	hw     actuator.GainController
	cached actuator.Gains
}

// NewGainSet returns a gain set for the named actuator. The cache starts at
// initial; call Push to load it onto the hardware.
func NewGainSet(name string, hw actuator.GainController, initial actuator.Gains) (*GainSet, error) {
	if hw == nil {
		return nil, errors.Errorf("gain set %q needs a gain controller", name)
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &GainSet{name: name, hw: hw, cached: initial}, nil
}

func (s *GainSet) Name() string { return s.name }

// Cached returns the gains believed to be on the hardware.
func (s *GainSet) Cached() actuator.Gains { return s.cached }

// Push writes the whole cache to the hardware.
func (s *GainSet) Push() error {
	return errors.Wrapf(s.cached.Apply(s.hw), "loading gains for %s", s.name)
}

// Params lists the gains with their dashboard keys in display order.
func (s *GainSet) Params() []Param {
	out := make([]Param, 0, len(scalarBindings)+2)
	for _, b := range scalarBindings {
		out = append(out, Param{Name: b.name, Key: telemetry.Key(s.name, b.suffix), Value: *b.field(&s.cached)})
	}
	return append(out,
		Param{Name: "min_output", Key: telemetry.Key(s.name, telemetry.SuffixMinOutput), Value: s.cached.MinOutput},
		Param{Name: "max_output", Key: telemetry.Key(s.name, telemetry.SuffixMaxOutput), Value: s.cached.MaxOutput},
	)
}

// Seed offers every cached gain to the dashboard without replacing values
// already there.
func (s *GainSet) Seed(d telemetry.Defaulter) error {
	var err error
	for _, p := range s.Params() {
		err = multierr.Append(err, d.SetDefaultNumber(p.Key, p.Value))
	}
	return err
}

// Reconcile reads each gain from store, falling back to the cached value,
// and writes through to the hardware only where the two differ. The cache is
// updated only after a successful write, so a failed write is retried on the
// next call. It returns the number of hardware writes made.
func (s *GainSet) Reconcile(store telemetry.Store) (int, error) {
	var (
		writes int
		errs   error
	)
	for _, b := range scalarBindings {
		cached := b.field(&s.cached)
		v, err := s.read(store, b.suffix, *cached)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if v == *cached {
			continue
		}
		if err := b.write(s.hw, v); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "writing %s%s", s.name, b.suffix))
			continue
		}
		*cached = v
		writes++
	}

	// min and max output are one hardware call.
	lo, errLo := s.read(store, telemetry.SuffixMinOutput, s.cached.MinOutput)
	hi, errHi := s.read(store, telemetry.SuffixMaxOutput, s.cached.MaxOutput)
	if errLo != nil || errHi != nil {
		return writes, multierr.Combine(errs, errLo, errHi)
	}
	if lo != s.cached.MinOutput || hi != s.cached.MaxOutput {
		if lo > hi {
			return writes, multierr.Append(errs, errors.Wrapf(actuator.NewOutputRangeError(lo, hi), "%s output range", s.name))
		}
		if err := s.hw.SetOutputRange(lo, hi); err != nil {
			return writes, multierr.Append(errs, errors.Wrapf(err, "writing %s output range", s.name))
		}
		s.cached.MinOutput, s.cached.MaxOutput = lo, hi
		writes++
	}
	return writes, errs
}

func (s *GainSet) read(store telemetry.Store, suffix string, cached float64) (float64, error) {
	key := telemetry.Key(s.name, suffix)
	v, err := store.NumberOrDefault(key, cached)
	if err != nil {
		return cached, errors.Wrapf(err, "reading %s", key)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return cached, errors.Wrapf(actuator.ErrNonFinite, "reading %s", key)
	}
	return v, nil
}
