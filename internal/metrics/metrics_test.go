package metrics

import (
	"testing"

	. "github.com/onsi/gomega"
)

func run(m Metric, pts []Point) float64 {
	m.Reset()
	for _, p := range pts {
		m.Observe(p)
	}
	return m.Value()
}

// approach moves from 0 to 10, overshoots to 10.4 and settles at t=0.5.
var approach = []Point{
	{T: 0.0, Position: 0, Target: 10, Command: 0.7, Enabled: true},
	{T: 0.1, Position: 5, Target: 10, Command: 0.35, Enabled: true},
	{T: 0.2, Position: 9, Target: 10, Command: 0.07, Enabled: true},
	{T: 0.3, Position: 10.4, Target: 10, Command: -0.03, Enabled: true},
	{T: 0.4, Position: 9.95, Target: 10, Command: 0.004, Enabled: true},
	{T: 0.5, Position: 10.005, Target: 10, Command: 0, Enabled: true},
	{T: 0.6, Position: 10.002, Target: 10, Command: 0, Enabled: true},
}

func TestControlEffort(t *testing.T) {
	g := NewWithT(t)
	g.Expect(run(NewControlEffort(), approach)).To(BeNumerically("~", (0.7+0.35+0.07+0.03+0.004)/7, 1e-12))
	g.Expect(NewControlEffort().Value()).To(Equal(0.0))
}

func TestStability(t *testing.T) {
	g := NewWithT(t)
	g.Expect(run(NewStability(0.01), approach)).To(BeNumerically("~", 2.0/7, 1e-12))
	g.Expect(NewStability(0.01).Value()).To(Equal(1.0))

	disabled := []Point{{T: 0, Position: 3, Target: 0}}
	g.Expect(run(NewStability(0.01), disabled)).To(Equal(1.0))
}

func TestSettlingTime(t *testing.T) {
	g := NewWithT(t)
	g.Expect(run(NewSettlingTime(0.01), approach)).To(BeNumerically("~", 0.5, 1e-12))
	g.Expect(run(NewSettlingTime(0.1), approach)).To(BeNumerically("~", 0.4, 1e-12))

	unsettled := approach[:4]
	g.Expect(run(NewSettlingTime(0.01), unsettled)).To(BeNumerically("~", 0.3, 1e-12))
}

func TestSettlingRestartsOnNewTarget(t *testing.T) {
	g := NewWithT(t)
	pts := append([]Point{}, approach...)
	pts = append(pts,
		Point{T: 1.0, Position: 10, Target: 30, Enabled: true},
		Point{T: 1.5, Position: 30, Target: 30, Enabled: true},
	)
	g.Expect(run(NewSettlingTime(0.01), pts)).To(BeNumerically("~", 0.5, 1e-12))
}

func TestOvershoot(t *testing.T) {
	g := NewWithT(t)
	g.Expect(run(NewOvershoot(), approach)).To(BeNumerically("~", 0.4, 1e-12))

	backwards := []Point{
		{T: 0, Position: 0, Target: -5, Enabled: true},
		{T: 1, Position: -5.2, Target: -5, Enabled: true},
		{T: 2, Position: -4.9, Target: -5, Enabled: true},
	}
	g.Expect(run(NewOvershoot(), backwards)).To(BeNumerically("~", 0.2, 1e-12))

	hold := []Point{{T: 0, Position: 1, Target: 1, Enabled: true}, {T: 1, Position: 1.3, Target: 1, Enabled: true}}
	g.Expect(run(NewOvershoot(), hold)).To(Equal(0.0))
}

func TestDefaults(t *testing.T) {
	ms := Defaults(0.01)
	if len(ms) != len(Names()) {
		t.Fatalf("got %d metrics, want %d", len(ms), len(Names()))
	}
	for i, m := range ms {
		if m.Name() != Names()[i] {
			t.Errorf("metric %d named %q, want %q", i, m.Name(), Names()[i])
		}
	}
}
