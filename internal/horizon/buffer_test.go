package horizon

import (
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/rtimpc/internal/layout"
)

var _ = Describe("Buffer", func() {
	var (
		buf  *Buffer
		dims Dims
	)

	BeforeEach(func() {
		dims = Dims{NX: 2, NU: 1, N: 3}
		var err error
		buf, err = New(dims)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should reject non-positive dimensions", func() {
		for _, d := range []Dims{{0, 1, 3}, {2, 0, 3}, {2, 1, 0}, {-1, 1, 3}} {
			_, err := New(d)
			Expect(errors.Is(err, ErrConfiguration)).To(BeTrue(), d.String())
		}
	})

	It("should start from zero trajectories and identity weights", func() {
		Expect(buf.X()).To(HaveLen(8))
		Expect(buf.U()).To(HaveLen(3))
		Expect(buf.Q()).To(Equal([]float64{1, 0, 0, 1}))
		Expect(buf.R()).To(Equal([]float64{1}))
		Expect(buf.Bounded()).To(BeFalse())
	})

	It("should map a column-major guess into stage-major storage", func() {
		states := layout.FromRows([][]float64{{1, 2}, {3, 4}, {5, 6}, {7, 8}}, layout.ColMajor)
		controls := layout.FromRows([][]float64{{9}, {10}, {11}}, layout.ColMajor)

		Expect(buf.SetInitialGuess(states, controls)).To(Succeed())
		Expect(buf.X()).To(Equal([]float64{1, 2, 3, 4, 5, 6, 7, 8}))
		Expect(buf.State(2)).To(Equal([]float64{5, 6}))
		Expect(buf.Control(1)).To(Equal([]float64{10}))
	})

	It("should leave the buffer untouched when any argument is misshapen", func() {
		good := layout.FromRows([][]float64{{1, 2}, {3, 4}, {5, 6}, {7, 8}}, layout.RowMajor)
		bad := layout.FromRows([][]float64{{9, 9}, {10, 10}, {11, 11}}, layout.RowMajor)
		before := append([]float64(nil), buf.X()...)

		err := buf.SetInitialGuess(good, bad)

		var dimErr *DimensionError
		Expect(errors.As(err, &dimErr)).To(BeTrue())
		Expect(dimErr.Arg).To(Equal(ArgControlGuess))
		Expect(err.Error()).To(ContainSubstring("control initial guess"))
		Expect(err.Error()).To(ContainSubstring("(3×1)"))
		Expect(errors.Is(err, ErrShapeMismatch)).To(BeTrue())
		Expect(buf.X()).To(Equal(before))
	})

	It("should reject a misshapen terminal weight without touching Q or R", func() {
		q := layout.FromRows([][]float64{{5, 0}, {0, 5}}, layout.RowMajor)
		r := layout.FromRows([][]float64{{2}}, layout.RowMajor)
		qt := layout.FromRows([][]float64{{1, 0, 0}}, layout.RowMajor)

		err := buf.SetWeights(q, r, qt)

		Expect(err).To(MatchError(ContainSubstring("terminal cost weighting matrix")))
		Expect(buf.Q()).To(Equal([]float64{1, 0, 0, 1}))
		Expect(buf.R()).To(Equal([]float64{1}))
	})

	It("should report ragged rows", func() {
		ragged := layout.FromRows([][]float64{{1, 2}, {3}, {4, 5}}, layout.RowMajor)
		u := layout.FromRows([][]float64{{0}, {0}, {0}}, layout.RowMajor)

		err := buf.SetReference(ragged, u)

		Expect(err).To(MatchError(ContainSubstring("ragged")))
	})

	It("should validate control bounds", func() {
		Expect(buf.SetBounds([]float64{-1}, []float64{1})).To(Succeed())
		Expect(buf.Bounded()).To(BeTrue())

		err := buf.SetBounds([]float64{2}, []float64{1})
		Expect(errors.Is(err, ErrInvalidBounds)).To(BeTrue())
		var boundsErr *BoundsError
		Expect(errors.As(err, &boundsErr)).To(BeTrue())
		Expect(boundsErr.Arg).To(Equal(ArgLower))
		Expect(err).To(MatchError(ContainSubstring("control lower bound")))

		err = buf.SetBounds([]float64{0}, []float64{math.NaN()})
		Expect(errors.As(err, &boundsErr)).To(BeTrue())
		Expect(boundsErr.Arg).To(Equal(ArgUpper))

		lb, ub := buf.Bounds()
		Expect(lb).To(Equal([]float64{-1}))
		Expect(ub).To(Equal([]float64{1}))

		buf.ClearBounds()
		Expect(buf.Bounded()).To(BeFalse())
		Expect(math.IsInf(lb[0], -1)).To(BeTrue())
	})

	It("should shift trajectories by one stage", func() {
		states := layout.FromRows([][]float64{{1, 2}, {3, 4}, {5, 6}, {7, 8}}, layout.RowMajor)
		controls := layout.FromRows([][]float64{{9}, {10}, {11}}, layout.RowMajor)
		Expect(buf.SetInitialGuess(states, controls)).To(Succeed())

		Expect(buf.ShiftStates(nil)).To(Succeed())
		Expect(buf.ShiftControls([]float64{0})).To(Succeed())

		Expect(buf.X()).To(Equal([]float64{3, 4, 5, 6, 7, 8, 7, 8}))
		Expect(buf.U()).To(Equal([]float64{10, 11, 0}))
		Expect(buf.ShiftControls([]float64{1, 2})).To(MatchError(ErrShapeMismatch))
	})

	It("should zero the guess on reset", func() {
		copy(buf.X(), []float64{1, 1, 1, 1, 1, 1, 1, 1})
		buf.ResetGuess()
		Expect(buf.X()).To(HaveEach(0.0))
	})
})
