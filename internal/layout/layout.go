// Package layout maps between the storage order a caller hands matrices in
// and the stage-major order used inside the horizon buffer.
//
// A caller matrix of size rows×cols in column-major order stores element
// (stage j, channel i) at offset j + i*rows. In row-major order the same
// element lives at j*cols + i, which is also the internal layout of every
// trajectory, reference and weight in the horizon buffer.
package layout

import "fmt"

type Order int

const (
	RowMajor Order = iota
	ColMajor
)

func (o Order) String() string {
	switch o {
	case RowMajor:
		return "row-major"
	case ColMajor:
		return "column-major"
	default:
		return fmt.Sprintf("order(%d)", int(o))
	}
}

// ParseOrder accepts "row", "row-major", "col", "column-major".
func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "row", "row-major":
		return RowMajor, nil
	case "col", "column", "column-major":
		return ColMajor, nil
	default:
		return RowMajor, fmt.Errorf("layout: unknown order %q", s)
	}
}

// Offset returns the linear offset of element (r, c) of a rows×cols matrix
// stored in the given order.
func Offset(order Order, rows, cols, r, c int) int {
	if order == ColMajor {
		return r + c*rows
	}
	return r*cols + c
}

// Matrix is a dense caller-owned matrix. Data has exactly Rows*Cols entries
// when the matrix is well formed.
type Matrix struct {
	Rows  int
	Cols  int
	Order Order
	Data  []float64
}

func New(rows, cols int, order Order) Matrix {
	return Matrix{Rows: rows, Cols: cols, Order: order, Data: make([]float64, rows*cols)}
}

// Ragged marks the column count of a matrix built from rows of unequal length.
const Ragged = -1

// FromRows packs a row slice into a matrix with the requested order. Ragged
// input yields Cols == Ragged and no data, which shape validation rejects.
func FromRows(rows [][]float64, order Order) Matrix {
	m := Matrix{Rows: len(rows), Order: order}
	if len(rows) == 0 {
		return m
	}
	m.Cols = len(rows[0])
	for _, row := range rows {
		if len(row) != m.Cols {
			m.Cols = Ragged
			return m
		}
	}
	m.Data = make([]float64, m.Rows*m.Cols)
	for r, row := range rows {
		for c, v := range row {
			m.Data[Offset(order, m.Rows, m.Cols, r, c)] = v
		}
	}
	return m
}

// Vector wraps a slice as a single-row matrix.
func Vector(v []float64) Matrix {
	return Matrix{Rows: 1, Cols: len(v), Order: RowMajor, Data: v}
}

func (m Matrix) WellFormed() bool {
	return m.Rows >= 0 && m.Cols >= 0 && len(m.Data) == m.Rows*m.Cols
}

func (m Matrix) Len() int { return m.Rows * m.Cols }

func (m Matrix) At(r, c int) float64 {
	return m.Data[Offset(m.Order, m.Rows, m.Cols, r, c)]
}

func (m Matrix) Set(r, c int, v float64) {
	m.Data[Offset(m.Order, m.Rows, m.Cols, r, c)] = v
}

// ToRows unpacks the matrix into a fresh row slice.
func (m Matrix) ToRows() [][]float64 {
	out := make([][]float64, m.Rows)
	for r := range out {
		out[r] = make([]float64, m.Cols)
		for c := range out[r] {
			out[r][c] = m.At(r, c)
		}
	}
	return out
}

// Gather copies m into dst in stage-major order (dst[r*Cols+c]).
func (m Matrix) Gather(dst []float64) {
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			dst[r*m.Cols+c] = m.Data[Offset(m.Order, m.Rows, m.Cols, r, c)]
		}
	}
}

// Scatter builds a rows×cols matrix in the given order from stage-major src.
func Scatter(src []float64, rows, cols int, order Order) Matrix {
	m := New(rows, cols, order)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			m.Data[Offset(order, rows, cols, r, c)] = src[r*cols+c]
		}
	}
	return m
}
