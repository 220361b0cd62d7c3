// Package builder creates documents: Assemble reorders pages of opened
// sources, and the fluent PDFBuilder draws new pages from scratch.
package builder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wudi/pdftask/contentstream"
	"github.com/wudi/pdftask/fonts"
	"github.com/wudi/pdftask/geometry"
	"github.com/wudi/pdftask/ir/raw"
	"github.com/wudi/pdftask/ir/semantic"
)

// PDFBuilder provides a fluent API for PDF construction.
type PDFBuilder interface {
	NewPage(width, height float64) PageBuilder
	Build() (*semantic.Document, error)
}

// PageBuilder provides a fluent API for page construction.
type PageBuilder interface {
	DrawText(text string, x, y float64, opts TextOptions) PageBuilder
	DrawImage(img *Image, x, y, width, height float64) PageBuilder
	// Concat changes the coordinate system for everything drawn after it.
	Concat(m geometry.Matrix) PageBuilder
	SetRotation(degrees int) PageBuilder
	Finish() PDFBuilder
}

// TextOptions configures text drawing. Font must be one of the standard
// fonts known to package fonts; it defaults to Helvetica at 12pt.
type TextOptions struct {
	Font     string
	FontSize float64
	Color    Color
	// Rotation turns the text counter-clockwise about its origin, in degrees.
	Rotation float64
}

// ErrUnknownFont reports a font without built-in metrics.
var ErrUnknownFont = errors.New("unknown standard font")

// Color represents an RGB color with components in [0, 1].
type Color struct {
	R, G, B float64
}

// ParseHexColor reads "#rrggbb" or "rrggbb".
func ParseHexColor(s string) (Color, error) {
	h := strings.TrimPrefix(s, "#")
	if len(h) != 6 {
		return Color{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return Color{
		R: float64(v>>16&0xff) / 255,
		G: float64(v>>8&0xff) / 255,
		B: float64(v&0xff) / 255,
	}, nil
}

type builderImpl struct {
	pages []*pageBuilderImpl
	err   error
}

type pageBuilderImpl struct {
	parent   *builderImpl
	width    float64
	height   float64
	rotation int
	ops      []contentstream.Operation
	fonts    map[string]string // base font -> resource name
	fontList []string
	images   []*Image
}

// NewBuilder constructs a PDFBuilder.
func NewBuilder() PDFBuilder { return &builderImpl{} }

func (b *builderImpl) NewPage(w, h float64) PageBuilder {
	p := &pageBuilderImpl{parent: b, width: w, height: h, fonts: make(map[string]string)}
	b.pages = append(b.pages, p)
	return p
}

func (p *pageBuilderImpl) DrawText(text string, x, y float64, opts TextOptions) PageBuilder {
	font := opts.Font
	if font == "" {
		font = fonts.Helvetica
	}
	if !fonts.IsStandard(font) {
		if p.parent.err == nil {
			p.parent.err = fmt.Errorf("%w: %s", ErrUnknownFont, font)
		}
		return p
	}
	size := opts.FontSize
	if size <= 0 {
		size = 12
	}
	tm := geometry.Rotate(opts.Rotation)
	tm[4], tm[5] = x, y

	p.ops = append(p.ops,
		contentstream.Op("BT"),
		contentstream.Op("Tf", raw.NameLiteral(p.fontName(font)), raw.Number(size)),
		contentstream.Numbers("rg", opts.Color.R, opts.Color.G, opts.Color.B),
		contentstream.Numbers("Tm", tm[:]...),
		contentstream.Op("Tj", raw.Str(fonts.EncodeWinAnsi(text))),
		contentstream.Op("ET"),
	)
	return p
}

func (p *pageBuilderImpl) fontName(base string) string {
	if name, ok := p.fonts[base]; ok {
		return name
	}
	name := "F" + strconv.Itoa(len(p.fontList)+1)
	p.fonts[base] = name
	p.fontList = append(p.fontList, base)
	return name
}

func (p *pageBuilderImpl) DrawImage(img *Image, x, y, width, height float64) PageBuilder {
	if img == nil {
		return p
	}
	w := width
	if w == 0 {
		w = float64(img.Width)
	}
	h := height
	if h == 0 {
		h = float64(img.Height)
	}
	name := p.imageName(img)
	p.ops = append(p.ops,
		contentstream.Save(),
		contentstream.Numbers("cm", w, 0, 0, h, x, y),
		contentstream.PaintXObject(name),
		contentstream.Restore(),
	)
	return p
}

func (p *pageBuilderImpl) imageName(img *Image) string {
	for i, known := range p.images {
		if known == img {
			return "Im" + strconv.Itoa(i+1)
		}
	}
	p.images = append(p.images, img)
	return "Im" + strconv.Itoa(len(p.images))
}

func (p *pageBuilderImpl) Concat(m geometry.Matrix) PageBuilder {
	p.ops = append(p.ops, contentstream.Concat(m))
	return p
}

func (p *pageBuilderImpl) SetRotation(degrees int) PageBuilder {
	p.rotation = semantic.NormalizeRotation(degrees)
	return p
}

func (p *pageBuilderImpl) Finish() PDFBuilder { return p.parent }

// Build lays the pages out in a fresh object arena with the catalog as
// object 1 and the page tree root as object 2.
func (b *builderImpl) Build() (*semantic.Document, error) {
	if b.err != nil {
		return nil, b.err
	}
	arena := raw.NewDocument()
	catalog := raw.Dict()
	catalog.Set("Type", raw.NameLiteral("Catalog"))
	catalogRef := arena.Add(catalog)
	tree := raw.Dict()
	tree.Set("Type", raw.NameLiteral("Pages"))
	treeRef := arena.Add(tree)
	catalog.Set("Pages", raw.RefObj{R: treeRef})
	arena.Trailer.Set("Root", raw.RefObj{R: catalogRef})

	doc := &semantic.Document{Version: arena.Version, Raw: arena}
	kids := raw.NewArray()
	for i, pb := range b.pages {
		page := pb.materialize(arena, treeRef)
		page.Index = i
		doc.Pages = append(doc.Pages, page)
		kids.Append(raw.RefObj{R: page.Ref})
	}
	tree.Set("Kids", kids)
	tree.Set("Count", raw.NumberInt(int64(len(doc.Pages))))
	return doc, nil
}

func (p *pageBuilderImpl) materialize(arena *raw.Document, parent raw.ObjectRef) *semantic.Page {
	box := &semantic.Rectangle{URX: p.width, URY: p.height}

	ops := make([]contentstream.Operation, 0, len(p.ops)+2)
	ops = append(ops, contentstream.Save())
	ops = append(ops, p.ops...)
	ops = append(ops, contentstream.Restore())
	contents := arena.Add(raw.NewStream(raw.Dict(), contentstream.Encode(ops)))

	resources := raw.Dict()
	if len(p.fontList) > 0 {
		fontDict := raw.Dict()
		for _, base := range p.fontList {
			fontDict.Set(p.fonts[base], raw.RefObj{R: arena.Add(fonts.StandardFontDict(base))})
		}
		resources.Set("Font", fontDict)
	}
	if len(p.images) > 0 {
		xobjects := raw.Dict()
		for i, img := range p.images {
			xobjects.Set("Im"+strconv.Itoa(i+1), raw.RefObj{R: img.addTo(arena)})
		}
		resources.Set("XObject", xobjects)
	}

	dict := raw.Dict()
	dict.Set("Type", raw.NameLiteral("Page"))
	dict.Set("Parent", raw.RefObj{R: parent})
	dict.Set("MediaBox", box.Array())
	dict.Set("Resources", resources)
	dict.Set("Contents", raw.RefObj{R: contents})
	if p.rotation != 0 {
		dict.Set("Rotate", raw.NumberInt(int64(p.rotation)))
	}
	ref := arena.Add(dict)
	return &semantic.Page{
		MediaBox: box,
		Rotate:   p.rotation,
		Ref:      ref,
		Dict:     dict,
		Source:   arena,
	}
}
