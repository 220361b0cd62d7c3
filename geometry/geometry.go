// Package geometry computes the displayed size of a page and the transform
// from an upright canvas onto the page's user space.
package geometry

import (
	"math"

	"github.com/wudi/pdftask/ir/semantic"
)

// PointsPerInch is the PDF default user space unit density.
const PointsPerInch = 72.0

// BoxSource records which page box Resolve used.
type BoxSource int

const (
	BoxCrop BoxSource = iota
	BoxMedia
	BoxFallback
)

func (s BoxSource) String() string {
	switch s {
	case BoxCrop:
		return "CropBox"
	case BoxMedia:
		return "MediaBox"
	default:
		return "Letter"
	}
}

// Letter is the box assumed for pages that declare neither box.
var Letter = semantic.Rectangle{URX: 612, URY: 792}

// PageBox is the displayed page size in inches.
type PageBox struct {
	Width  float64
	Height float64
	Source BoxSource
}

// Points returns the size in points for canvas sizing.
func (b PageBox) Points() (w, h float64) {
	return b.Width * PointsPerInch, b.Height * PointsPerInch
}

// Point is a position in inches measured from the bottom-left corner of the
// displayed page.
type Point struct{ X, Y float64 }

// Box returns the rectangle Resolve measures: CropBox, then MediaBox, then
// Letter.
func Box(p *semantic.Page) (semantic.Rectangle, BoxSource) {
	switch {
	case p.CropBox != nil:
		return *p.CropBox, BoxCrop
	case p.MediaBox != nil:
		return *p.MediaBox, BoxMedia
	default:
		return Letter, BoxFallback
	}
}

// Resolve returns the displayed width and height of p in inches. UserUnit
// scales the box and a quarter-turn Rotate swaps the axes.
func Resolve(p *semantic.Page) PageBox {
	r, src := Box(p)
	u := p.Scale()
	x1, y1, x2, y2 := r.LLX*u, r.LLY*u, r.URX*u, r.URY*u
	w := math.Abs(x2 - x1)
	h := math.Abs(y2 - y1)
	if (p.Rotate/90)%2 != 0 {
		w, h = h, w
	}
	return PageBox{Width: w / PointsPerInch, Height: h / PointsPerInch, Source: src}
}
