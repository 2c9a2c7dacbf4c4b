package rti

import (
	"errors"
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/san-kum/rtimpc/internal/horizon"
	"github.com/san-kum/rtimpc/internal/layout"
	"github.com/san-kum/rtimpc/internal/solver"
	"github.com/san-kum/rtimpc/internal/telemetry"
)

// steppedClock returns base plus the next offset on every call.
func steppedClock(offsets ...time.Duration) func() time.Time {
	base := time.Unix(1700000000, 0)
	i := 0
	return func() time.Time {
		t := base.Add(offsets[i%len(offsets)])
		i++
		return t
	}
}

var _ = Describe("Controller", func() {
	var (
		mockCtrl *gomock.Controller
		adapter  *MockAdapter
		dims     horizon.Dims
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		adapter = NewMockAdapter(mockCtrl)
		dims = horizon.Dims{NX: 2, NU: 1, N: 3}
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	expectCycle := func(status solver.Status, kkt float64) {
		gomock.InOrder(
			adapter.EXPECT().Prepare(gomock.Any()),
			adapter.EXPECT().Degraded().Return(false),
			adapter.EXPECT().Feedback(gomock.Any(), gomock.Any()).Return(status, kkt),
		)
	}

	Context("construction", func() {
		It("should reject non-positive dimensions", func() {
			_, err := New(horizon.Dims{NX: 0, NU: 1, N: 3}, adapter)
			Expect(errors.Is(err, ErrConfiguration)).To(BeTrue())
		})

		It("should reject a nil adapter", func() {
			_, err := New(dims, nil)
			Expect(errors.Is(err, ErrConfiguration)).To(BeTrue())
		})

		It("should start idle with an infinite KKT value", func() {
			c, err := New(dims, adapter)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Phase()).To(Equal(Idle))
			Expect(math.IsInf(c.KKT(), 1)).To(BeTrue())
		})
	})

	Context("sequencing", func() {
		var c *Controller

		BeforeEach(func() {
			var err error
			c, err = New(dims, adapter)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should refuse feedback while idle", func() {
			_, err := c.Feedback([]float64{1, 0})

			var seqErr *SequenceError
			Expect(errors.As(err, &seqErr)).To(BeTrue())
			Expect(seqErr.Phase).To(Equal(Idle))
			Expect(errors.Is(err, ErrSequence)).To(BeTrue())
			Expect(c.Phase()).To(Equal(Idle))
		})

		It("should refuse a second feedback without a new preparation", func() {
			expectCycle(solver.Converged, 1e-8)
			c.Prepare()
			_, err := c.Feedback([]float64{1, 0})
			Expect(err).NotTo(HaveOccurred())

			_, err = c.Feedback([]float64{1, 0})
			Expect(errors.Is(err, ErrSequence)).To(BeTrue())
		})

		It("should call the adapter in order and hand it the measurement", func() {
			m := []float64{1, 0}
			gomock.InOrder(
				adapter.EXPECT().Prepare(c.Buffer()),
				adapter.EXPECT().Degraded().Return(false),
				adapter.EXPECT().Feedback(c.Buffer(), m).Return(solver.Converged, 1e-8),
			)

			c.Prepare()
			Expect(c.Phase()).To(Equal(Prepared))
			out, err := c.Feedback(m)

			Expect(err).NotTo(HaveOccurred())
			Expect(out.Status).To(Equal(solver.Converged))
			Expect(out.KKT).To(Equal(1e-8))
			Expect(out.Iteration).To(Equal(0))
			Expect(c.Phase()).To(Equal(Solved))
			Expect(c.Iteration()).To(Equal(1))
		})

		It("should reject a misshapen measurement before calling the adapter", func() {
			adapter.EXPECT().Prepare(gomock.Any())
			adapter.EXPECT().Degraded().Return(false)

			c.Prepare()
			_, err := c.Feedback([]float64{1, 0, 0})

			var dimErr *horizon.DimensionError
			Expect(errors.As(err, &dimErr)).To(BeTrue())
			Expect(dimErr.Arg).To(Equal(horizon.ArgMeasurement))
			Expect(c.Phase()).To(Equal(Prepared))
		})

		It("should re-run preparation when prepared twice", func() {
			adapter.EXPECT().Prepare(gomock.Any()).Times(2)
			adapter.EXPECT().Degraded().Return(false).Times(2)

			c.Prepare()
			c.Prepare()
			Expect(c.Phase()).To(Equal(Prepared))
		})

		It("should discard a pending preparation when references change", func() {
			adapter.EXPECT().Prepare(gomock.Any())
			adapter.EXPECT().Degraded().Return(false)

			c.Prepare()
			err := c.SetReference(layout.New(3, 2, layout.RowMajor), layout.New(3, 1, layout.RowMajor))
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Phase()).To(Equal(Idle))
		})

		It("should return to idle on reset", func() {
			expectCycle(solver.Converged, 0)
			c.Prepare()
			_, err := c.Feedback([]float64{1, 0})
			Expect(err).NotTo(HaveOccurred())

			c.ResetGuess()
			Expect(c.Phase()).To(Equal(Idle))
			Expect(c.Buffer().X()).To(HaveEach(0.0))
		})
	})

	Context("outcomes", func() {
		It("should report solver failures as data", func() {
			c, _ := New(dims, adapter)
			gomock.InOrder(
				adapter.EXPECT().Prepare(gomock.Any()),
				adapter.EXPECT().Degraded().Return(true),
				adapter.EXPECT().Feedback(gomock.Any(), gomock.Any()).Return(solver.MaxIterations, 0.3),
			)

			c.Prepare()
			out, err := c.Feedback([]float64{0, 0})

			Expect(err).NotTo(HaveOccurred())
			Expect(out.Status).To(Equal(solver.MaxIterations))
			Expect(out.Degraded).To(BeTrue())
			Expect(c.Phase()).To(Equal(Solved))
		})

		DescribeTable("should keep the KKT value non-negative",
			func(reported, want float64) {
				c, _ := New(dims, adapter)
				expectCycle(solver.Converged, reported)

				c.Prepare()
				out, err := c.Feedback([]float64{0, 0})

				Expect(err).NotTo(HaveOccurred())
				Expect(out.KKT).To(BeNumerically(">=", 0))
				Expect(out.KKT).To(Equal(want))
				Expect(c.KKT()).To(Equal(want))
			},
			Entry("positive", 0.25, 0.25),
			Entry("negative", -2.0, 2.0),
			Entry("NaN", math.NaN(), math.Inf(1)),
		)

		It("should stay finite over a hundred converged cycles", func() {
			c, _ := New(dims, adapter, WithShift(ShiftHorizon))
			adapter.EXPECT().Prepare(c.Buffer()).Times(100)
			adapter.EXPECT().Degraded().Return(false).Times(100)
			adapter.EXPECT().Feedback(c.Buffer(), gomock.Any()).Times(100).DoAndReturn(
				func(buf *horizon.Buffer, m []float64) (solver.Status, float64) {
					copy(buf.X(), m)
					u := buf.U()
					for i := range u {
						u[i] = -0.5 * m[0]
					}
					return solver.Converged, 1e-10
				})

			x := []float64{1, -1}
			for i := 0; i < 100; i++ {
				out, err := c.Cycle(x)

				Expect(err).NotTo(HaveOccurred())
				Expect(out.Status).To(Equal(solver.Converged))
				Expect(out.Iteration).To(Equal(i))
				Expect(out.KKT).To(BeNumerically(">=", 0))
				Expect(math.IsInf(out.KKT, 0) || math.IsNaN(out.KKT)).To(BeFalse())
				Expect(finiteAll(c.Buffer().X())).To(BeTrue(), "cycle %d", i)
				Expect(finiteAll(c.Buffer().U())).To(BeTrue(), "cycle %d", i)
				u := c.Buffer().Control(0)[0]
				x = []float64{x[0] + 0.1*x[1], x[1] + 0.1*u}
			}

			Expect(c.Iteration()).To(Equal(100))
			Expect(c.Phase()).To(Equal(Solved))
		})

		It("should time both phases separately", func() {
			c, _ := New(dims, adapter, WithClock(steppedClock(0, 5*time.Millisecond, 5*time.Millisecond, 6*time.Millisecond)))
			expectCycle(solver.Converged, 0)

			c.Prepare()
			out, err := c.Feedback([]float64{0, 0})

			Expect(err).NotTo(HaveOccurred())
			Expect(c.Timing().Preparation).To(Equal(5 * time.Millisecond))
			Expect(c.Timing().Feedback).To(Equal(time.Millisecond))
			Expect(out.Timing).To(Equal(c.Timing()))
		})

		It("should forward every cycle to the recorder", func() {
			mem := &telemetry.Memory{}
			c, _ := New(dims, adapter, WithRecorder(mem))
			expectCycle(solver.Infeasible, 1)
			expectCycle(solver.Converged, 0)

			for i := 0; i < 2; i++ {
				_, err := c.Cycle([]float64{0, 0})
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(mem.Cycles).To(HaveLen(2))
			Expect(mem.Cycles[0].Status).To(Equal(solver.Infeasible))
			Expect(mem.Cycles[1].Iteration).To(Equal(1))
		})

		It("should log iterations only when verbose", func() {
			core, logs := observer.New(zap.InfoLevel)
			c, _ := New(dims, adapter, WithLogger(zap.New(core)), WithVerbose(true))
			expectCycle(solver.Converged, 0)

			_, err := c.Cycle([]float64{0, 0})

			Expect(err).NotTo(HaveOccurred())
			Expect(logs.FilterMessage("real-time iteration").Len()).To(Equal(1))
		})

		It("should warn about solver errors without verbosity", func() {
			core, logs := observer.New(zap.InfoLevel)
			c, _ := New(dims, adapter, WithLogger(zap.New(core)))
			expectCycle(solver.Infeasible, 1)

			_, err := c.Cycle([]float64{0, 0})

			Expect(err).NotTo(HaveOccurred())
			Expect(logs.FilterMessage("QP solver returned an error code").Len()).To(Equal(1))
			Expect(logs.FilterMessage("real-time iteration").Len()).To(Equal(0))
		})
	})

	Context("shift hook", func() {
		It("should run only between a solved cycle and the next preparation", func() {
			shifts := 0
			c, _ := New(dims, adapter, WithShift(func(*horizon.Buffer) { shifts++ }))
			adapter.EXPECT().Prepare(gomock.Any()).Times(3)
			adapter.EXPECT().Degraded().Return(false).Times(3)
			adapter.EXPECT().Feedback(gomock.Any(), gomock.Any()).Return(solver.Converged, 0.0)

			c.Prepare()
			Expect(shifts).To(Equal(0))
			_, err := c.Feedback([]float64{0, 0})
			Expect(err).NotTo(HaveOccurred())

			c.Prepare()
			Expect(shifts).To(Equal(1))
			c.Prepare()
			Expect(shifts).To(Equal(1))
		})

		It("should advance both trajectories by one stage", func() {
			buf, err := horizon.New(dims)
			Expect(err).NotTo(HaveOccurred())
			states := layout.FromRows([][]float64{{0, 0}, {1, 1}, {2, 2}, {3, 3}}, layout.RowMajor)
			controls := layout.FromRows([][]float64{{10}, {11}, {12}}, layout.RowMajor)
			Expect(buf.SetInitialGuess(states, controls)).To(Succeed())

			ShiftHorizon(buf)

			Expect(buf.X()).To(Equal([]float64{1, 1, 2, 2, 3, 3, 3, 3}))
			Expect(buf.U()).To(Equal([]float64{11, 12, 12}))
		})
	})
})
