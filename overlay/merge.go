package overlay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/wudi/pdftask/builder"
	"github.com/wudi/pdftask/contentstream"
	"github.com/wudi/pdftask/filters"
	"github.com/wudi/pdftask/geometry"
	"github.com/wudi/pdftask/ir/raw"
	"github.com/wudi/pdftask/ir/semantic"
	"github.com/wudi/pdftask/lifecycle"
	"github.com/wudi/pdftask/parser"
)

// ErrEmptyArtifact reports an artifact file without pages.
var ErrEmptyArtifact = errors.New("artifact has no pages")

// Merge draws the artifact's page under or over page. The artifact canvas is
// upright as the page is displayed, so it is mapped through the page's
// rotation and user unit. Only page's own dictionary is changed; objects
// shared with its source arena are copied before modification.
func Merge(ctx context.Context, page *semantic.Page, art *Artifact) error {
	doc, err := parser.OpenFile(ctx, art.Path, parser.Config{})
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	if doc.PageCount() == 0 {
		return ErrEmptyArtifact
	}
	pipeline := filters.Default(filters.Limits{})
	form, err := formXObject(ctx, pipeline, doc.Pages[0])
	if err != nil {
		return err
	}
	if page.Dict == nil {
		page.Dict = raw.Dict()
	}
	name := addXObject(page, form)
	draw := contentstream.Encode([]contentstream.Operation{
		contentstream.Save(),
		contentstream.Concat(geometry.Placement(page)),
		contentstream.PaintXObject(name),
		contentstream.Restore(),
	})

	existing := contentItems(page)
	var items []raw.Object
	switch art.Kind {
	case Underlay:
		items = append(items, raw.NewStream(raw.Dict(), draw))
		items = append(items, existing...)
	default:
		depth := openSaves(ctx, pipeline, page.Source, existing)
		var post bytes.Buffer
		post.WriteString("\n")
		for i := 0; i <= depth; i++ {
			post.WriteString("Q\n")
		}
		post.Write(draw)
		items = append(items, raw.NewStream(raw.Dict(), []byte("q\n")))
		items = append(items, existing...)
		items = append(items, raw.NewStream(raw.Dict(), post.Bytes()))
	}
	page.Dict.Set("Contents", raw.NewArray(items...))
	return nil
}

// formXObject turns an artifact page into a self-contained form.
func formXObject(ctx context.Context, pipeline *filters.Pipeline, p *semantic.Page) (*raw.StreamObj, error) {
	var content bytes.Buffer
	for _, item := range contentItems(p) {
		st, ok := p.Source.Resolve(item).(*raw.StreamObj)
		if !ok {
			continue
		}
		data, err := pipeline.DecodeStream(ctx, p.Source, st)
		if err != nil {
			return nil, fmt.Errorf("artifact content: %w", err)
		}
		content.Write(data)
		content.WriteByte('\n')
	}
	box, _ := geometry.Box(p)
	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("XObject"))
	d.Set("Subtype", raw.NameLiteral("Form"))
	d.Set("BBox", box.Array())
	if res, ok := p.Dict.Get("Resources"); ok {
		d.Set("Resources", p.Source.Inline(res))
	}
	return raw.NewStream(d, content.Bytes()), nil
}

// addXObject registers form under a name unused by the page's resources.
func addXObject(page *semantic.Page, form *raw.StreamObj) string {
	var res *raw.DictObj
	if v, ok := page.Dict.Get("Resources"); ok {
		res, _ = page.Source.ResolveDict(v)
	}
	res = raw.ShallowCopy(res)
	var xobjects *raw.DictObj
	if v, ok := res.Get("XObject"); ok {
		xobjects, _ = page.Source.ResolveDict(v)
	}
	xobjects = raw.ShallowCopy(xobjects)

	name := ""
	for i := 0; ; i++ {
		name = "Fx" + strconv.Itoa(i)
		if _, taken := xobjects.Get(name); !taken {
			break
		}
	}
	xobjects.Set(name, form)
	res.Set("XObject", xobjects)
	page.Dict.Set("Resources", res)
	return name
}

// contentItems lists the page's content streams as stored, references
// included.
func contentItems(p *semantic.Page) []raw.Object {
	v, ok := p.Dict.Get("Contents")
	if !ok {
		return nil
	}
	if arr, ok := p.Source.ResolveArray(v); ok {
		return append([]raw.Object(nil), arr.Items...)
	}
	if _, ok := p.Source.Resolve(v).(*raw.StreamObj); ok {
		return []raw.Object{v}
	}
	return nil
}

// openSaves counts q operators the existing content leaves open. Content that
// cannot be decoded or parsed counts as balanced.
func openSaves(ctx context.Context, pipeline *filters.Pipeline, src *raw.Document, items []raw.Object) int {
	var content bytes.Buffer
	for _, item := range items {
		st, ok := src.Resolve(item).(*raw.StreamObj)
		if !ok {
			continue
		}
		data, err := pipeline.DecodeStream(ctx, src, st)
		if err != nil {
			return 0
		}
		content.Write(data)
		content.WriteByte('\n')
	}
	ops, err := contentstream.Parse(content.Bytes())
	if err != nil {
		return 0
	}
	return contentstream.Depth(ops)
}

// WatermarkDocument underlays a watermark sized to each page.
func WatermarkDocument(ctx context.Context, scope *lifecycle.Scope, doc *semantic.Document, text string) error {
	for _, p := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		art, err := ComposeWatermark(ctx, scope, text, geometry.Resolve(p))
		if err != nil {
			return fmt.Errorf("page %d: %w", p.Index+1, err)
		}
		if err := Merge(ctx, p, art); err != nil {
			return fmt.Errorf("page %d: %w", p.Index+1, err)
		}
	}
	return nil
}

// StampPage overlays the image on the 1-based page n at at inches.
func StampPage(ctx context.Context, scope *lifecycle.Scope, doc *semantic.Document, n int, imagePath string, at geometry.Point) error {
	p, ok := doc.Page(n)
	if !ok {
		return fmt.Errorf("stamp page %d: %w: document has %d pages", n, builder.ErrPageIndexOutOfRange, doc.PageCount())
	}
	art, err := ComposeStamp(ctx, scope, imagePath, geometry.Resolve(p), at)
	if err != nil {
		return err
	}
	return Merge(ctx, p, art)
}
