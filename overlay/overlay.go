// Package overlay generates one-page watermark and stamp artifacts and merges
// them under or over existing pages.
package overlay

import (
	"context"
	"fmt"

	"github.com/wudi/pdftask/builder"
	"github.com/wudi/pdftask/fonts"
	"github.com/wudi/pdftask/geometry"
	"github.com/wudi/pdftask/lifecycle"
	"github.com/wudi/pdftask/writer"
)

// Kind says where an artifact goes relative to the page content.
type Kind int

const (
	Underlay Kind = iota
	Overlay
)

func (k Kind) String() string {
	if k == Overlay {
		return "overlay"
	}
	return "underlay"
}

// Artifact is a generated one-page PDF on disk, owned by the scope that
// created it.
type Artifact struct {
	Path string
	Box  geometry.PageBox
	Kind Kind
}

const (
	watermarkFont      = fonts.HelveticaBold
	watermarkSize      = 40
	watermarkColor     = "#f2f2f2"
	watermarkAngle     = 30
	watermarkRows      = 9
	watermarkColumns   = 5
	watermarkRowGap    = 1 * geometry.PointsPerInch
	watermarkColumnGap = 2 * geometry.PointsPerInch

	// stampDPI converts image pixels to inches.
	stampDPI = 96
)

// WatermarkPositions returns the baseline origins of the tiled watermark in
// the rotated coordinate system, row by row.
func WatermarkPositions(text string) []geometry.Point {
	tw := fonts.StandardWidth(watermarkFont, watermarkSize, text)
	out := make([]geometry.Point, 0, watermarkRows*watermarkColumns)
	for n := 0; n < watermarkRows; n++ {
		y := tw*float64(n) + float64(n)*watermarkRowGap
		for m := 0; m < watermarkColumns; m++ {
			x := tw*float64(m) + float64(m)*watermarkColumnGap
			out = append(out, geometry.Point{X: x, Y: y})
		}
	}
	return out
}

// ComposeWatermark renders text tiled across a canvas the size of box.
func ComposeWatermark(ctx context.Context, scope *lifecycle.Scope, text string, box geometry.PageBox) (*Artifact, error) {
	color, err := builder.ParseHexColor(watermarkColor)
	if err != nil {
		return nil, err
	}
	w, h := box.Points()
	page := builder.NewBuilder().NewPage(w, h).Concat(geometry.Rotate(watermarkAngle))
	opts := builder.TextOptions{Font: watermarkFont, FontSize: watermarkSize, Color: color}
	for _, pos := range WatermarkPositions(text) {
		page.DrawText(text, pos.X, pos.Y, opts)
	}
	return save(ctx, scope, page.Finish(), box, Underlay)
}

// ComposeStamp places the image at at, in inches from the lower left corner
// of a canvas the size of box. The image is sized at 96 pixels per inch.
func ComposeStamp(ctx context.Context, scope *lifecycle.Scope, imagePath string, box geometry.PageBox, at geometry.Point) (*Artifact, error) {
	img, err := builder.ImageFromFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("stamp image: %w", err)
	}
	w, h := box.Points()
	iw := float64(img.Width) / stampDPI * geometry.PointsPerInch
	ih := float64(img.Height) / stampDPI * geometry.PointsPerInch
	b := builder.NewBuilder().
		NewPage(w, h).
		DrawImage(img, at.X*geometry.PointsPerInch, at.Y*geometry.PointsPerInch, iw, ih).
		Finish()
	return save(ctx, scope, b, box, Overlay)
}

func save(ctx context.Context, scope *lifecycle.Scope, b builder.PDFBuilder, box geometry.PageBox, kind Kind) (*Artifact, error) {
	doc, err := b.Build()
	if err != nil {
		return nil, err
	}
	path, err := scope.TempFile(".pdf")
	if err != nil {
		return nil, err
	}
	if err := writer.WriteFile(ctx, writer.NewWriter(), doc, path, writer.Config{Compress: true, Deterministic: true}); err != nil {
		return nil, fmt.Errorf("write %s artifact: %w", kind, err)
	}
	return &Artifact{Path: path, Box: box, Kind: kind}, nil
}
