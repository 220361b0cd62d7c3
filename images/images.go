// Package images finds the image XObjects a page draws and either exports
// them as files or blanks them out.
package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/wudi/pdftask/filters"
	"github.com/wudi/pdftask/ir/raw"
	"github.com/wudi/pdftask/ir/semantic"
)

// ErrUnsupportedImage reports an image that cannot be exported.
var ErrUnsupportedImage = errors.New("unsupported image")

// Asset is one exported image.
type Asset struct {
	// Page is the 1-based page the image is drawn on.
	Page int
	// Name is the resource name, e.g. "Im0".
	Name   string
	Width  int
	Height int
	// Ext is ".jpg" or ".jp2" for passed-through streams, ".png" otherwise.
	Ext  string
	Data []byte
}

// Skipped names an image Extract could not export.
type Skipped struct {
	Page int
	Name string
	Err  error
}

// Extract exports every image XObject in the page resources of doc. JPEG and
// JPEG 2000 data is copied as stored; 8-bit gray, RGB and CMYK rasters are
// encoded as PNG. Other images are reported in the skipped list.
func Extract(ctx context.Context, doc *semantic.Document, pipeline *filters.Pipeline) ([]Asset, []Skipped, error) {
	var assets []Asset
	var skipped []Skipped
	for _, p := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		xobjects := pageXObjects(p)
		if xobjects == nil {
			continue
		}
		for _, name := range xobjects.Keys() {
			st, ok := imageStream(p.Source, xobjects.KV[name])
			if !ok {
				continue
			}
			asset, err := export(ctx, pipeline, p.Source, st)
			if err != nil {
				if ctx.Err() != nil {
					return nil, nil, ctx.Err()
				}
				skipped = append(skipped, Skipped{Page: p.Index + 1, Name: name, Err: err})
				continue
			}
			asset.Page = p.Index + 1
			asset.Name = name
			assets = append(assets, asset)
		}
	}
	return assets, skipped, nil
}

// Remove replaces every image XObject in the page resources of doc with a
// blank 1x1 stencil mask and reports how many were replaced. Pages keep
// their content streams, so the images' placement is unchanged. Objects
// shared with the source arena are copied before modification.
func Remove(doc *semantic.Document) int {
	n := 0
	for _, p := range doc.Pages {
		xobjects := pageXObjects(p)
		if xobjects == nil {
			continue
		}
		var names []string
		for _, name := range xobjects.Keys() {
			if _, ok := imageStream(p.Source, xobjects.KV[name]); ok {
				names = append(names, name)
			}
		}
		if len(names) == 0 {
			continue
		}
		res, _ := p.Source.ResolveDict(p.Dict.KV["Resources"])
		res = raw.ShallowCopy(res)
		xobjects = raw.ShallowCopy(xobjects)
		for _, name := range names {
			xobjects.Set(name, blank())
		}
		res.Set("XObject", xobjects)
		p.Dict.Set("Resources", res)
		n += len(names)
	}
	return n
}

// blank returns a fresh 1x1 stencil mask that paints nothing.
func blank() *raw.StreamObj {
	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("XObject"))
	d.Set("Subtype", raw.NameLiteral("Image"))
	d.Set("Width", raw.NumberInt(1))
	d.Set("Height", raw.NumberInt(1))
	d.Set("BitsPerComponent", raw.NumberInt(1))
	d.Set("ImageMask", raw.Bool(true))
	d.Set("Decode", raw.NewArray(raw.NumberInt(0), raw.NumberInt(1)))
	return raw.NewStream(d, []byte{0xFF})
}

func pageXObjects(p *semantic.Page) *raw.DictObj {
	if p.Dict == nil {
		return nil
	}
	v, ok := p.Dict.Get("Resources")
	if !ok {
		return nil
	}
	res, ok := p.Source.ResolveDict(v)
	if !ok {
		return nil
	}
	v, ok = res.Get("XObject")
	if !ok {
		return nil
	}
	xobjects, _ := p.Source.ResolveDict(v)
	return xobjects
}

func imageStream(src *raw.Document, o raw.Object) (*raw.StreamObj, bool) {
	st, ok := src.Resolve(o).(*raw.StreamObj)
	if !ok || st.Dict == nil {
		return nil, false
	}
	subtype, _ := st.Dict.Name("Subtype")
	return st, subtype == "Image"
}

func export(ctx context.Context, pipeline *filters.Pipeline, src *raw.Document, st *raw.StreamObj) (Asset, error) {
	w, _ := st.Dict.Int("Width")
	h, _ := st.Dict.Int("Height")
	asset := Asset{Width: int(w), Height: int(h)}
	if asset.Width <= 0 || asset.Height <= 0 {
		return asset, fmt.Errorf("%w: size %dx%d", ErrUnsupportedImage, w, h)
	}

	names, params := filters.StreamFilters(src, st.Dict)
	if n := len(names); n > 0 {
		switch names[n-1] {
		case "DCTDecode", "JPXDecode":
			data, err := pipeline.Decode(ctx, st.Data, names[:n-1], params)
			if err != nil {
				return asset, err
			}
			asset.Ext = ".jpg"
			if names[n-1] == "JPXDecode" {
				asset.Ext = ".jp2"
			}
			asset.Data = data
			return asset, nil
		}
	}

	if mask, ok := st.Dict.Get("ImageMask"); ok {
		if b, _ := src.Resolve(mask).(raw.BoolObj); b.V {
			return asset, fmt.Errorf("%w: stencil mask", ErrUnsupportedImage)
		}
	}
	if bpc, _ := st.Dict.Int("BitsPerComponent"); bpc != 8 {
		return asset, fmt.Errorf("%w: %d bits per component", ErrUnsupportedImage, bpc)
	}
	comps, err := components(src, st.Dict)
	if err != nil {
		return asset, err
	}
	data, err := pipeline.DecodeStream(ctx, src, st)
	if err != nil {
		return asset, err
	}
	if len(data)/comps/asset.Width < asset.Height {
		return asset, fmt.Errorf("%w: %d bytes for %dx%d", ErrUnsupportedImage, len(data), asset.Width, asset.Height)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, raster(data, comps, asset.Width, asset.Height)); err != nil {
		return asset, err
	}
	asset.Ext = ".png"
	asset.Data = buf.Bytes()
	return asset, nil
}

// components reports the samples per pixel of a device or ICC based color
// space.
func components(src *raw.Document, dict *raw.DictObj) (int, error) {
	v, _ := dict.Get("ColorSpace")
	cs := src.Resolve(v)
	if arr, ok := cs.(*raw.ArrayObj); ok && arr.Len() == 2 {
		family, _ := src.Resolve(arr.Items[0]).(raw.NameObj)
		if family.Val == "ICCBased" {
			if profile, ok := src.ResolveDict(arr.Items[1]); ok {
				if n, ok := profile.Int("N"); ok && (n == 1 || n == 3 || n == 4) {
					return int(n), nil
				}
			}
		}
	}
	name, _ := cs.(raw.NameObj)
	switch name.Val {
	case "DeviceGray":
		return 1, nil
	case "DeviceRGB":
		return 3, nil
	case "DeviceCMYK":
		return 4, nil
	}
	return 0, fmt.Errorf("%w: color space %v", ErrUnsupportedImage, cs)
}

func raster(data []byte, comps, w, h int) image.Image {
	rect := image.Rect(0, 0, w, h)
	switch comps {
	case 1:
		return &image.Gray{Pix: data[:w*h], Stride: w, Rect: rect}
	case 4:
		// PDF CMYK samples are ink amounts, as image.CMYK expects.
		return &image.CMYK{Pix: data[:w*h*4], Stride: w * 4, Rect: rect}
	}
	img := image.NewNRGBA(rect)
	for i := 0; i < w*h; i++ {
		copy(img.Pix[i*4:], data[i*3:i*3+3])
		img.Pix[i*4+3] = 0xFF
	}
	return img
}
