package builder

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdftask/contentstream"
	"github.com/wudi/pdftask/fonts"
	"github.com/wudi/pdftask/geometry"
	"github.com/wudi/pdftask/ir/raw"
	"github.com/wudi/pdftask/ir/semantic"
)

func pageContent(t *testing.T, p *semantic.Page) []contentstream.Operation {
	t.Helper()
	ref, ok := p.Dict.Get("Contents")
	require.True(t, ok, "page has no contents")
	st, ok := p.Source.Resolve(ref).(*raw.StreamObj)
	require.True(t, ok, "contents is not a stream")
	ops, err := contentstream.Parse(st.Data)
	require.NoError(t, err)
	return ops
}

func operators(ops []contentstream.Operation) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.Operator
	}
	return out
}

func TestBuilderDrawText(t *testing.T) {
	doc, err := NewBuilder().
		NewPage(200, 100).
		DrawText("Hi", 10, 20, TextOptions{Font: fonts.HelveticaBold, FontSize: 40, Color: Color{R: 1}}).
		Finish().
		Build()
	require.NoError(t, err)
	require.Equal(t, 1, doc.PageCount())

	page := doc.Pages[0]
	assert.Equal(t, &semantic.Rectangle{URX: 200, URY: 100}, page.MediaBox)
	ops := pageContent(t, page)
	assert.Equal(t, []string{"q", "BT", "Tf", "rg", "Tm", "Tj", "ET", "Q"}, operators(ops))
	assert.Equal(t, raw.NameLiteral("F1"), ops[2].Operands[0])
	assert.Equal(t, raw.Numbers(1, 0, 0, 1, 10, 20).Items, ops[4].Operands)

	res, ok := page.Source.ResolveDict(mustGet(t, page.Dict, "Resources"))
	require.True(t, ok)
	fontRes, ok := page.Source.ResolveDict(mustGet(t, res, "Font"))
	require.True(t, ok)
	font, ok := page.Source.ResolveDict(mustGet(t, fontRes, "F1"))
	require.True(t, ok)
	base, _ := font.Name("BaseFont")
	assert.Equal(t, fonts.HelveticaBold, base)
}

func mustGet(t *testing.T, d *raw.DictObj, key string) raw.Object {
	t.Helper()
	v, ok := d.Get(key)
	require.True(t, ok, "missing /%s", key)
	return v
}

func TestBuilderLaysOutCatalogFirst(t *testing.T) {
	doc, err := NewBuilder().NewPage(10, 10).SetRotation(-90).Finish().NewPage(20, 20).Finish().Build()
	require.NoError(t, err)
	catalog, ok := doc.Raw.Catalog()
	require.True(t, ok)
	assert.Equal(t, raw.RefObj{R: raw.ObjectRef{Num: 2}}, mustGet(t, catalog, "Pages"))
	assert.Equal(t, 270, doc.Pages[0].Rotate)
	assert.Equal(t, 1, doc.Pages[1].Index)
	tree, _ := doc.Raw.ResolveDict(raw.Ref(2, 0))
	count, _ := tree.Int("Count")
	assert.EqualValues(t, 2, count)
}

func TestBuilderRejectsUnknownFont(t *testing.T) {
	_, err := NewBuilder().NewPage(10, 10).DrawText("x", 0, 0, TextOptions{Font: "Comic Sans"}).Finish().Build()
	assert.True(t, errors.Is(err, ErrUnknownFont))
}

func TestBuilderConcatAndImage(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, color.NRGBA{R: 255, A: 255})
	src.Set(1, 0, color.NRGBA{})
	img := FromImage(src)
	require.NotNil(t, img.SMask)
	assert.Equal(t, []byte{255, 0, 0, 0, 0, 0}, img.Data)
	assert.Equal(t, []byte{255, 0}, img.SMask.Data)

	doc, err := NewBuilder().
		NewPage(100, 100).
		Concat(geometry.Rotate(90)).
		DrawImage(img, 5, 6, 30, 15).
		Finish().
		Build()
	require.NoError(t, err)
	ops := pageContent(t, doc.Pages[0])
	assert.Equal(t, []string{"q", "cm", "q", "cm", "Do", "Q", "Q"}, operators(ops))
	assert.Equal(t, raw.Numbers(30, 0, 0, 15, 5, 6).Items, ops[3].Operands)

	res, _ := doc.Raw.ResolveDict(mustGet(t, doc.Pages[0].Dict, "Resources"))
	xobjects, _ := doc.Raw.ResolveDict(mustGet(t, res, "XObject"))
	im, ok := doc.Raw.ResolveDict(mustGet(t, xobjects, "Im1"))
	require.True(t, ok)
	_, hasMask := im.Get("SMask")
	assert.True(t, hasMask)
}

func TestImageFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sig.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 3, 2))))
	require.NoError(t, f.Close())

	img, err := ImageFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Width)
	assert.Equal(t, 2, img.Height)
	assert.Nil(t, img.SMask)

	_, err = ImageFromFile(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#f2f2f2")
	require.NoError(t, err)
	assert.InDelta(t, 242.0/255, c.R, 1e-12)
	assert.Equal(t, c.R, c.B)

	_, err = ParseHexColor("#fff")
	assert.Error(t, err)
	_, err = ParseHexColor("zzzzzz")
	assert.True(t, err != nil && strings.Contains(err.Error(), "zzzzzz"))
}
