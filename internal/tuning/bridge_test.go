package tuning_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/san-kum/posctl/internal/actuator"
	"github.com/san-kum/posctl/internal/telemetry"
	"github.com/san-kum/posctl/internal/tuning"
)

func number(t *telemetry.Table, key string) float64 {
	v, ok := t.Number(key)
	Expect(ok).To(BeTrue(), "missing number %q", key)
	return v
}

func boolean(t *telemetry.Table, key string) bool {
	v, ok := t.Bool(key)
	Expect(ok).To(BeTrue(), "missing bool %q", key)
	return v
}

var initial = actuator.Gains{P: 0.1, I: 0, D: 0, IZone: 0, FF: 0, MinOutput: -1, MaxOutput: 1}

var _ = Describe("GainSet", func() {
	var (
		hw  *recordingGains
		set *tuning.GainSet
	)

	BeforeEach(func() {
		hw = newRecordingGains()
		var err error
		set, err = tuning.NewGainSet("Motor", hw, initial)
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects an inverted output range", func() {
		_, err := tuning.NewGainSet("Motor", hw, actuator.Gains{MinOutput: 1, MaxOutput: -1})
		Expect(errors.Is(err, actuator.ErrInvalidOutputRange)).To(BeTrue())
	})

	It("pushes every gain to the hardware", func() {
		Expect(set.Push()).To(Succeed())
		Expect(hw.calls).To(HaveLen(6))
		Expect(hw.calls[5]).To(Equal(call{"OutputRange", []float64{-1, 1}}))
	})

	It("lists params with dashboard keys", func() {
		params := set.Params()
		Expect(params).To(HaveLen(7))
		Expect(params[0]).To(Equal(tuning.Param{Name: "p", Key: "Motor P Gain", Value: 0.1}))
		Expect(params[6].Key).To(Equal("Motor Max Output"))
	})

	It("falls back to the cache when a key is missing", func() {
		writes, err := set.Reconcile(telemetry.NewTable())
		Expect(err).NotTo(HaveOccurred())
		Expect(writes).To(BeZero())
		Expect(hw.calls).To(BeEmpty())
	})

	It("skips non-finite dashboard values", func() {
		writes, err := set.Reconcile(valueStore{"Motor D Gain": math.NaN()})
		Expect(errors.Is(err, actuator.ErrNonFinite)).To(BeTrue())
		Expect(writes).To(BeZero())
		Expect(set.Cached().D).To(Equal(0.0))
	})
})

var _ = Describe("Bridge", func() {
	var (
		hw     *recordingGains
		sensor *fakeSensor
		table  *telemetry.Table
		set    *tuning.GainSet
		bridge *tuning.Bridge
	)

	BeforeEach(func() {
		hw = newRecordingGains()
		sensor = &fakeSensor{pos: 3.5, vel: -0.25, inverted: true}
		table = telemetry.NewTable()
		var err error
		set, err = tuning.NewGainSet("Motor", hw, initial)
		Expect(err).NotTo(HaveOccurred())
		bridge = tuning.NewBridge("Motor", sensor, table, nil)
		bridge.AttachGains(set)
	})

	It("publishes position, rotation and inversion", func() {
		bridge.Sync()
		Expect(number(table, "Motor Position")).To(Equal(3.5))
		Expect(number(table, "Motor Rotation")).To(Equal(-0.25))
		Expect(boolean(table, "Motor Inverted?")).To(BeTrue())
		_, ok := table.Get("Motor Target Postion")
		Expect(ok).To(BeFalse())
	})

	It("publishes the tracker when one is attached", func() {
		bridge.AttachTracker(tracker{target: 40, total: 36.5})
		bridge.Sync()
		Expect(number(table, "Motor Target Postion")).To(Equal(40.0))
		Expect(number(table, "Motor Total Delta")).To(Equal(36.5))
	})

	It("seeds missing gain keys with the cache and writes nothing", func() {
		Expect(bridge.Sync()).To(BeZero())
		Expect(number(table, "Motor P Gain")).To(Equal(0.1))
		Expect(number(table, "Motor Min Output")).To(Equal(-1.0))
		Expect(hw.calls).To(BeEmpty())
	})

	It("reads the cache for a missing key without seeding support", func() {
		store := &flakyStore{table: table}
		bridge = tuning.NewBridge("Motor", sensor, store, nil)
		bridge.AttachGains(set)

		Expect(bridge.Sync()).To(BeZero())
		Expect(hw.calls).To(BeEmpty())
		_, ok := table.Get("Motor P Gain")
		Expect(ok).To(BeFalse())
	})

	It("writes an edited gain exactly once", func() {
		table.SetNumber("Motor P Gain", 0.25)

		Expect(bridge.Sync()).To(Equal(1))
		Expect(hw.calls).To(Equal([]call{{"P", []float64{0.25}}}))
		Expect(set.Cached().P).To(Equal(0.25))

		for i := 0; i < 5; i++ {
			Expect(bridge.Sync()).To(BeZero())
		}
		Expect(hw.count("P")).To(Equal(1))
	})

	It("writes the output range as one pair when either side changes", func() {
		bridge.Sync()
		table.SetNumber("Motor Max Output", 0.5)

		Expect(bridge.Sync()).To(Equal(1))
		Expect(hw.calls).To(Equal([]call{{"OutputRange", []float64{-1, 0.5}}}))

		table.SetNumber("Motor Min Output", -0.5)
		Expect(bridge.Sync()).To(Equal(1))
		Expect(hw.calls[1]).To(Equal(call{"OutputRange", []float64{-0.5, 0.5}}))
		Expect(bridge.Sync()).To(BeZero())
	})

	It("refuses an inverted output range from the dashboard", func() {
		core, logs := observer.New(zapcore.WarnLevel)
		bridge = tuning.NewBridge("Motor", sensor, table, zap.New(core).Sugar())
		bridge.AttachGains(set)
		bridge.Sync()

		table.SetNumber("Motor Min Output", 0.8)
		table.SetNumber("Motor Max Output", 0.2)
		for i := 0; i < 5; i++ {
			Expect(bridge.Sync()).To(BeZero())
		}
		Expect(hw.count("OutputRange")).To(BeZero())
		Expect(set.Cached().MinOutput).To(Equal(-1.0))
		Expect(set.Cached().MaxOutput).To(Equal(1.0))
		Expect(logs.FilterMessage("gain sync incomplete").Len()).To(Equal(1))

		table.SetNumber("Motor Min Output", 0)
		Expect(bridge.Sync()).To(Equal(1))
		Expect(hw.calls).To(Equal([]call{{"OutputRange", []float64{0, 0.2}}}))
	})

	It("writes several edits in one tick", func() {
		table.SetNumber("Motor I Gain", 0.001)
		table.SetNumber("Motor I Zone", 0.2)
		table.SetNumber("Motor Feed Forward", 0.9)
		Expect(bridge.Sync()).To(Equal(3))
		Expect(set.Cached()).To(Equal(actuator.Gains{P: 0.1, I: 0.001, IZone: 0.2, FF: 0.9, MinOutput: -1, MaxOutput: 1}))
	})

	It("retries a failed hardware write on the next tick", func() {
		core, logs := observer.New(zapcore.WarnLevel)
		bridge = tuning.NewBridge("Motor", sensor, table, zap.New(core).Sugar())
		bridge.AttachGains(set)

		hw.fail["D"] = errors.New("CAN timeout")
		table.SetNumber("Motor D Gain", 0.05)

		Expect(bridge.Sync()).To(BeZero())
		Expect(bridge.Sync()).To(BeZero())
		Expect(set.Cached().D).To(Equal(0.0))
		Expect(logs.FilterMessage("gain sync incomplete").Len()).To(Equal(1))

		delete(hw.fail, "D")
		Expect(bridge.Sync()).To(Equal(1))
		Expect(set.Cached().D).To(Equal(0.05))
		Expect(bridge.Sync()).To(BeZero())
	})

	It("keeps the cache when the store is unreachable", func() {
		store := &flakyStore{table: table, down: true}
		bridge = tuning.NewBridge("Motor", sensor, store, nil)
		bridge.AttachGains(set)

		Expect(bridge.Sync()).To(BeZero())
		Expect(store.reads).To(Equal(7))
		Expect(set.Cached()).To(Equal(initial))

		store.down = false
		table.SetNumber("Motor P Gain", 0.3)
		Expect(bridge.Sync()).To(Equal(1))
	})

	It("logs persistent publish failures once per interval", func() {
		core, logs := observer.New(zapcore.WarnLevel)
		store := &flakyStore{table: table, down: true}
		bridge = tuning.NewBridge("Motor", sensor, store, zap.New(core).Sugar())

		for i := 0; i < 20; i++ {
			bridge.Sync()
		}
		Expect(logs.FilterMessage("telemetry publish failed").Len()).To(Equal(1))
	})

	Context("without a gain set", func() {
		It("only publishes", func() {
			open := tuning.NewBridge("Arm", sensor, table, nil)
			table.SetNumber("Arm P Gain", 5)
			Expect(open.Sync()).To(BeZero())
			Expect(open.Gains()).To(BeNil())
			Expect(number(table, "Arm Position")).To(Equal(3.5))
		})
	})

	It("does not publish non-finite sensor readings", func() {
		core, logs := observer.New(zapcore.WarnLevel)
		bridge = tuning.NewBridge("Motor", sensor, table, zap.New(core).Sugar())
		bridge.AttachGains(set)
		bridge.Sync()

		sensor.pos, sensor.vel = math.NaN(), math.Inf(1)
		table.SetNumber("Motor P Gain", 0.2)
		Expect(bridge.Sync()).To(Equal(1))
		Expect(number(table, "Motor Position")).To(Equal(3.5))
		Expect(number(table, "Motor Rotation")).To(Equal(-0.25))
		Expect(logs.FilterMessage("telemetry publish failed").Len()).To(Equal(1))

		version := table.Version()
		for i := 0; i < 5; i++ {
			bridge.Sync()
		}
		Expect(table.Version()).To(Equal(version))
		for _, e := range table.Snapshot() {
			Expect(math.IsNaN(e.Number) || math.IsInf(e.Number, 0)).To(BeFalse(), e.Key)
		}
	})

	It("still syncs gains when the sensor is failing", func() {
		sensor.err = errors.New("encoder unplugged")
		table.SetNumber("Motor P Gain", 0.2)
		Expect(bridge.Sync()).To(Equal(1))
		_, ok := table.Get("Motor Position")
		Expect(ok).To(BeFalse())
		Expect(boolean(table, "Motor Inverted?")).To(BeTrue())
	})
})
