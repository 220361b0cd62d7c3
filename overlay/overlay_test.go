package overlay

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdftask/builder"
	"github.com/wudi/pdftask/contentstream"
	"github.com/wudi/pdftask/filters"
	"github.com/wudi/pdftask/fonts"
	"github.com/wudi/pdftask/geometry"
	"github.com/wudi/pdftask/ir/raw"
	"github.com/wudi/pdftask/ir/semantic"
	"github.com/wudi/pdftask/lifecycle"
	"github.com/wudi/pdftask/observability"
	"github.com/wudi/pdftask/parser"
)

func newScope(t *testing.T) *lifecycle.Scope {
	t.Helper()
	s := lifecycle.NewScope(observability.NopLogger{}, lifecycle.WithTempDir(t.TempDir()))
	t.Cleanup(s.Close)
	return s
}

// artifactOps parses the artifact back and returns its page and operations.
func artifactOps(t *testing.T, art *Artifact) (*semantic.Page, []contentstream.Operation) {
	t.Helper()
	doc, err := parser.OpenFile(context.Background(), art.Path, parser.Config{})
	require.NoError(t, err)
	require.Equal(t, 1, doc.PageCount())
	return doc.Pages[0], streamOps(t, doc.Pages[0], contentItems(doc.Pages[0])...)
}

func streamOps(t *testing.T, p *semantic.Page, items ...raw.Object) []contentstream.Operation {
	t.Helper()
	var ops []contentstream.Operation
	for _, item := range items {
		st, ok := p.Source.Resolve(item).(*raw.StreamObj)
		require.True(t, ok)
		data, err := filters.Default(filters.Limits{}).DecodeStream(context.Background(), p.Source, st)
		require.NoError(t, err)
		parsed, err := contentstream.Parse(data)
		require.NoError(t, err)
		ops = append(ops, parsed...)
	}
	return ops
}

func count(ops []contentstream.Operation, operator string) int {
	n := 0
	for _, op := range ops {
		if op.Operator == operator {
			n++
		}
	}
	return n
}

func TestWatermarkPositions(t *testing.T) {
	tw := fonts.StandardWidth(fonts.HelveticaBold, 40, "DRAFT")
	pos := WatermarkPositions("DRAFT")
	require.Len(t, pos, 45)
	assert.Equal(t, geometry.Point{}, pos[0])
	assert.Equal(t, geometry.Point{X: tw + 144, Y: 0}, pos[1])
	assert.Equal(t, geometry.Point{X: 4*tw + 4*144, Y: 0}, pos[4])
	assert.Equal(t, geometry.Point{X: 0, Y: tw + 72}, pos[5])
	assert.Equal(t, geometry.Point{X: 4*tw + 4*144, Y: 8*tw + 8*72}, pos[44])
}

func TestComposeWatermark(t *testing.T) {
	scope := newScope(t)
	box := geometry.PageBox{Width: 8.5, Height: 11, Source: geometry.BoxMedia}
	art, err := ComposeWatermark(context.Background(), scope, "CONFIDENTIAL", box)
	require.NoError(t, err)
	assert.Equal(t, Underlay, art.Kind)
	assert.Equal(t, 1, scope.Len())

	page, ops := artifactOps(t, art)
	assert.Equal(t, &semantic.Rectangle{URX: 612, URY: 792}, page.MediaBox)
	assert.Equal(t, 45, count(ops, "Tj"))
	var cm contentstream.Operation
	for _, op := range ops {
		if op.Operator == "cm" {
			cm = op
			break
		}
	}
	require.Len(t, cm.Operands, 6)
	c, _ := cm.Operands[0].(raw.NumberObj)
	assert.InDelta(t, 0.866025, c.Float(), 1e-6)

	scope.Close()
	_, err = os.Stat(art.Path)
	assert.True(t, os.IsNotExist(err), "artifact should be removed with its scope")
}

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sig.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))))
	require.NoError(t, f.Close())
	return path
}

func TestComposeStamp(t *testing.T) {
	scope := newScope(t)
	box := geometry.PageBox{Width: 8.5, Height: 11}
	art, err := ComposeStamp(context.Background(), scope, writePNG(t, 96, 48), box, geometry.Point{X: 1, Y: 2})
	require.NoError(t, err)
	assert.Equal(t, Overlay, art.Kind)

	_, ops := artifactOps(t, art)
	var placed []raw.Object
	for _, op := range ops {
		if op.Operator == "cm" {
			placed = op.Operands
		}
	}
	assert.Equal(t, raw.Numbers(72, 0, 0, 36, 72, 144).Items, placed)
	assert.Equal(t, 1, count(ops, "Do"))

	_, err = ComposeStamp(context.Background(), scope, filepath.Join(t.TempDir(), "none.png"), box, geometry.Point{})
	assert.Error(t, err)
}

func targetPage(t *testing.T, rotation int) *semantic.Document {
	t.Helper()
	doc, err := builder.NewBuilder().
		NewPage(200, 100).
		DrawText("body", 10, 10, builder.TextOptions{}).
		SetRotation(rotation).
		Finish().
		Build()
	require.NoError(t, err)
	return doc
}

func TestMergeUnderlay(t *testing.T) {
	scope := newScope(t)
	doc := targetPage(t, 90)
	page := doc.Pages[0]
	origRes, _ := page.Source.ResolveDict(mustGet(t, page.Dict, "Resources"))

	art, err := ComposeWatermark(context.Background(), scope, "X", geometry.Resolve(page))
	require.NoError(t, err)
	require.NoError(t, Merge(context.Background(), page, art))

	items := contentItems(page)
	require.Len(t, items, 2)
	first := streamOps(t, page, items[0])
	require.Equal(t, []string{"q", "cm", "Do", "Q"}, names(first))
	assert.Equal(t, raw.Numbers(0, 1, -1, 0, 200, 0).Items, first[1].Operands)
	assert.Equal(t, raw.NameLiteral("Fx0"), first[2].Operands[0])
	assert.Equal(t, 1, count(streamOps(t, page, items[1]), "Tj"))

	res, _ := page.Source.ResolveDict(mustGet(t, page.Dict, "Resources"))
	xobjects, _ := page.Source.ResolveDict(mustGet(t, res, "XObject"))
	form, ok := mustGet(t, xobjects, "Fx0").(*raw.StreamObj)
	require.True(t, ok)
	sub, _ := form.Dict.Name("Subtype")
	assert.Equal(t, "Form", sub)
	assert.Equal(t, raw.Numbers(0, 0, 100, 200).Items, mustGet(t, form.Dict, "BBox").(*raw.ArrayObj).Items)
	formRes, ok := form.Dict.Get("Resources")
	require.True(t, ok)
	_, isDict := formRes.(*raw.DictObj)
	assert.True(t, isDict, "form resources must be inlined")

	_, touched := origRes.Get("XObject")
	assert.False(t, touched, "source resources must not change")
}

func TestMergeOverlayClosesOpenSaves(t *testing.T) {
	scope := newScope(t)
	arena := raw.NewDocument()
	contents := arena.Add(raw.NewStream(raw.Dict(), []byte("q 1 0 0 1 5 5 cm 0 g")))
	dict := raw.Dict()
	dict.Set("Type", raw.NameLiteral("Page"))
	dict.Set("Contents", raw.RefObj{R: contents})
	page := &semantic.Page{MediaBox: &semantic.Rectangle{URX: 612, URY: 792}, Dict: dict, Source: arena}

	art, err := ComposeStamp(context.Background(), scope, writePNG(t, 10, 10), geometry.Resolve(page), geometry.Point{X: 1, Y: 1})
	require.NoError(t, err)
	require.NoError(t, Merge(context.Background(), page, art))

	items := contentItems(page)
	require.Len(t, items, 3)
	assert.Equal(t, raw.RefObj{R: contents}, items[1])
	ops := streamOps(t, page, items...)
	assert.Equal(t, []string{"q", "q", "cm", "g", "Q", "Q", "q", "cm", "Do", "Q"}, names(ops))
}

func TestWatermarkDocumentAndStampPage(t *testing.T) {
	scope := newScope(t)
	doc, err := builder.NewBuilder().NewPage(612, 792).Finish().NewPage(300, 300).Finish().Build()
	require.NoError(t, err)

	require.NoError(t, WatermarkDocument(context.Background(), scope, doc, "Sample"))
	for _, p := range doc.Pages {
		assert.Len(t, contentItems(p), 2)
	}
	assert.Equal(t, 2, scope.Len())

	require.NoError(t, StampPage(context.Background(), scope, doc, 2, writePNG(t, 4, 4), geometry.Point{}))
	assert.Len(t, contentItems(doc.Pages[1]), 4)

	err = StampPage(context.Background(), scope, doc, 3, writePNG(t, 4, 4), geometry.Point{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "2 pages"))
}

func names(ops []contentstream.Operation) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.Operator
	}
	return out
}

func mustGet(t *testing.T, d *raw.DictObj, key string) raw.Object {
	t.Helper()
	v, ok := d.Get(key)
	require.True(t, ok, "missing /%s", key)
	return v
}
