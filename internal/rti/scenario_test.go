package rti

import (
	"errors"
	"math"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/rtimpc/internal/horizon"
	"github.com/san-kum/rtimpc/internal/layout"
	"github.com/san-kum/rtimpc/internal/physics"
	"github.com/san-kum/rtimpc/internal/solver"
	"github.com/san-kum/rtimpc/internal/warmstart"
)

func identityMatrix(n int) layout.Matrix {
	m := layout.New(n, n, layout.ColMajor)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

func zeroProblem(d horizon.Dims, x0 []float64) *warmstart.Problem {
	return &warmstart.Problem{
		InitialState: x0,
		StateGuess:   layout.New(d.N+1, d.NX, layout.ColMajor),
		ControlGuess: layout.New(d.N, d.NU, layout.ColMajor),
		StateRef:     layout.New(d.N, d.NX, layout.ColMajor),
		ControlRef:   layout.New(d.N, d.NU, layout.ColMajor),
		Q:            identityMatrix(d.NX),
		R:            identityMatrix(d.NU),
		QT:           identityMatrix(d.NX),
	}
}

func finiteAll(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

var _ = Describe("Real-time iteration on a double integrator", func() {
	var (
		dims horizon.Dims
		c    *Controller
	)

	newController := func(d horizon.Dims, opts ...Option) *Controller {
		gn := solver.NewGaussNewton(physics.SampledDoubleIntegrator(0.1), solver.DefaultOptions())
		ctrl, err := New(d, gn, opts...)
		Expect(err).NotTo(HaveOccurred())
		return ctrl
	}

	BeforeEach(func() {
		dims = horizon.Dims{NX: 2, NU: 1, N: 3}
		c = newController(dims)
	})

	It("should pin the first state to the measurement", func() {
		res, err := c.Step(zeroProblem(dims, []float64{1, 0}))

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Status).To(Equal(solver.Converged))
		Expect(res.KKT).To(BeNumerically(">=", 0))
		Expect(res.States.Rows).To(Equal(4))
		Expect(res.States.Cols).To(Equal(2))
		Expect(res.Controls.Rows).To(Equal(3))
		Expect(res.States.At(0, 0)).To(Equal(1.0))
		Expect(res.States.At(0, 1)).To(Equal(0.0))
		Expect(res.States.Order).To(Equal(layout.ColMajor))
	})

	DescribeTable("should name the control initial guess when its shape is wrong",
		func(rows, cols int) {
			p := zeroProblem(dims, []float64{1, 0})
			p.ControlGuess = layout.New(rows, cols, layout.ColMajor)
			before := append([]float64(nil), c.Buffer().U()...)

			_, err := c.Step(p)

			var dimErr *horizon.DimensionError
			Expect(errors.As(err, &dimErr)).To(BeTrue())
			Expect(dimErr.Arg).To(Equal(horizon.ArgControlGuess))
			Expect(errors.Is(err, horizon.ErrShapeMismatch)).To(BeTrue())
			Expect(strings.Contains(err.Error(), "control initial guess")).To(BeTrue())
			Expect(c.Buffer().U()).To(Equal(before))
			Expect(c.Phase()).To(Equal(Idle))
		},
		Entry("one row per state", 4, 1),
		Entry("too many channels", 3, 2),
	)

	It("should refuse feedback before any preparation", func() {
		_, err := c.Feedback([]float64{1, 0})
		Expect(errors.Is(err, ErrSequence)).To(BeTrue())
	})

	It("should warm start the next cycle from the last solution", func() {
		m := []float64{1, 1}
		_, err := c.Step(zeroProblem(dims, m))
		Expect(err).NotTo(HaveOccurred())
		first := c.Buffer().Controls()

		out, err := c.Cycle(m)

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Status).To(Equal(solver.Converged))
		Expect(out.KKT).To(BeNumerically("<", 1e-12))
		for k, u := range c.Buffer().Controls() {
			Expect(u[0]).To(BeNumerically("~", first[k][0], 1e-9))
		}
	})

	DescribeTable("should stay finite over a long closed loop",
		func(bounded, shifted bool) {
			d := horizon.Dims{NX: 2, NU: 1, N: 20}
			var opts []Option
			if shifted {
				opts = append(opts, WithShift(ShiftHorizon))
			}
			ctrl := newController(d, opts...)
			p := zeroProblem(d, []float64{1, 0})
			p.QT = identityMatrix(2)
			p.QT.Set(0, 0, 10)
			p.QT.Set(1, 1, 10)
			if bounded {
				p.Lower = []float64{-1}
				p.Upper = []float64{1}
			}
			Expect(ctrl.Load(p)).To(Succeed())

			plant := physics.SampledDoubleIntegrator(0.1)
			x := []float64{1, 0}
			start := math.Hypot(x[0], x[1])

			for i := 0; i < 150; i++ {
				out, err := ctrl.Cycle(x)
				Expect(err).NotTo(HaveOccurred())
				Expect(out.KKT).To(BeNumerically(">=", 0))
				Expect(math.IsNaN(out.KKT)).To(BeFalse())
				Expect(finiteAll(ctrl.Buffer().X())).To(BeTrue(), "iteration %d", i)
				Expect(finiteAll(ctrl.Buffer().U())).To(BeTrue(), "iteration %d", i)

				u := ctrl.Buffer().Control(0)
				if bounded {
					Expect(u[0]).To(BeNumerically(">=", -1-1e-12))
					Expect(u[0]).To(BeNumerically("<=", 1+1e-12))
				}
				x = plant.Next(x, u)
			}

			Expect(ctrl.Iteration()).To(Equal(150))
			Expect(math.Hypot(x[0], x[1])).To(BeNumerically("<", start))
		},
		Entry("unbounded", false, false),
		Entry("bounded", true, false),
		Entry("shifted", false, true),
	)
})
