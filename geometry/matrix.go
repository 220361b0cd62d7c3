package geometry

import (
	"errors"
	"math"

	"github.com/wudi/pdftask/ir/semantic"
)

// Matrix is a PDF transformation matrix [a b c d e f].
type Matrix [6]float64

func Identity() Matrix                { return Matrix{1, 0, 0, 1, 0, 0} }
func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }
func Scale(sx, sy float64) Matrix     { return Matrix{sx, 0, 0, sy, 0, 0} }

// Rotate returns a counter-clockwise rotation by deg degrees.
func Rotate(deg float64) Matrix {
	rad := deg * math.Pi / 180
	c, s := math.Cos(rad), math.Sin(rad)
	return Matrix{c, s, -s, c, 0, 0}
}

// Multiply returns m followed by o.
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

// Apply maps (x, y) through m.
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, errors.New("matrix singular")
	}
	return Matrix{
		m[3] / det, -m[1] / det,
		-m[2] / det, m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det, (m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

// Placement maps an upright canvas of Resolve(p).Points() size onto p's
// default user space, undoing Rotate and UserUnit so the canvas lands on the
// page as displayed.
func Placement(p *semantic.Page) Matrix {
	r, _ := Box(p)
	s := 1 / p.Scale()
	switch semantic.NormalizeRotation(p.Rotate) {
	case 90:
		return Matrix{0, s, -s, 0, r.URX, r.LLY}
	case 180:
		return Matrix{-s, 0, 0, -s, r.URX, r.URY}
	case 270:
		return Matrix{0, -s, s, 0, r.LLX, r.URY}
	default:
		return Matrix{s, 0, 0, s, r.LLX, r.LLY}
	}
}
