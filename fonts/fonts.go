// Package fonts provides metrics and encoding for the standard Type 1 fonts
// used by generated overlays.
package fonts

import (
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"

	"github.com/wudi/pdftask/ir/raw"
)

const (
	Helvetica     = "Helvetica"
	HelveticaBold = "Helvetica-Bold"
	Courier       = "Courier"
	CourierBold   = "Courier-Bold"
)

// missingWidth is used for glyphs outside the tables below.
const missingWidth = 500

// AFM advance widths for WinAnsi codes 32..126, in 1/1000 em.
var helveticaWidths = [95]int{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278,
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278, 584, 584, 584, 556,
	1015, 667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, 722, 778,
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 278, 278, 278, 469, 556,
	333, 556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, 556, 556,
	556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584,
}

var helveticaBoldWidths = [95]int{
	278, 333, 474, 556, 556, 889, 722, 238, 333, 333, 389, 584, 278, 333, 278, 278,
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 333, 333, 584, 584, 584, 611,
	975, 722, 722, 722, 722, 667, 611, 778, 722, 278, 556, 722, 611, 833, 722, 778,
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 333, 278, 333, 584, 556,
	333, 556, 611, 556, 611, 556, 333, 611, 611, 278, 278, 556, 278, 889, 611, 611,
	611, 611, 389, 556, 333, 611, 556, 778, 556, 556, 500, 389, 280, 389, 584,
}

// IsStandard reports whether name is a font this package has metrics for.
func IsStandard(name string) bool {
	switch name {
	case Helvetica, HelveticaBold, Courier, CourierBold:
		return true
	}
	return false
}

// GlyphWidth returns the advance of r in 1/1000 em. Accented letters use the
// width of their base letter. Runes without a WinAnsi code are measured as
// the '?' that EncodeWinAnsi draws in their place.
func GlyphWidth(font string, r rune) int {
	if font == Courier || font == CourierBold {
		return 600
	}
	table := &helveticaWidths
	if font == HelveticaBold {
		table = &helveticaBoldWidths
	}
	if _, ok := charmap.Windows1252.EncodeRune(r); !ok {
		r = '?'
	}
	if r < 32 || r > 126 {
		base := []rune(norm.NFD.String(string(r)))
		if len(base) == 0 || base[0] < 32 || base[0] > 126 {
			return missingWidth
		}
		r = base[0]
	}
	return table[r-32]
}

// StandardWidth measures text set in font at size points.
func StandardWidth(font string, size float64, text string) float64 {
	total := 0
	for _, r := range text {
		total += GlyphWidth(font, r)
	}
	return float64(total) * size / 1000
}

// EncodeWinAnsi converts text to WinAnsiEncoding bytes. Runes without a code
// become '?'.
func EncodeWinAnsi(text string) []byte {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

// StandardFontDict returns a simple font dictionary for one of the standard
// fonts with WinAnsiEncoding.
func StandardFontDict(name string) *raw.DictObj {
	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("Font"))
	d.Set("Subtype", raw.NameLiteral("Type1"))
	d.Set("BaseFont", raw.NameLiteral(name))
	d.Set("Encoding", raw.NameLiteral("WinAnsiEncoding"))
	return d
}
