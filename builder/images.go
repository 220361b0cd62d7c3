package builder

import (
	"fmt"
	"image"
	_ "image/gif" // Register decoders
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/wudi/pdftask/ir/raw"
)

// Image is an 8-bit raster ready to be placed on a page.
type Image struct {
	Width  int
	Height int
	// ColorSpace is DeviceRGB or DeviceGray.
	ColorSpace string
	Data       []byte
	// SMask holds per-pixel alpha when the source image is not opaque.
	SMask *Image
}

// ImageFromFile decodes a PNG, JPEG, GIF, BMP, TIFF or WebP file.
func ImageFromFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return FromImage(img), nil
}

// FromImage converts a Go image. Transparency becomes a soft mask.
func FromImage(src image.Image) *Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(nrgba, nrgba.Bounds(), src, bounds.Min, draw.Src)

	pixels := make([]byte, 0, w*h*3)
	alpha := make([]byte, 0, w*h)
	hasAlpha := false
	for i := 0; i < w*h; i++ {
		offset := i * 4
		pixels = append(pixels, nrgba.Pix[offset], nrgba.Pix[offset+1], nrgba.Pix[offset+2])
		a := nrgba.Pix[offset+3]
		alpha = append(alpha, a)
		if a < 255 {
			hasAlpha = true
		}
	}

	img := &Image{Width: w, Height: h, ColorSpace: "DeviceRGB", Data: pixels}
	if hasAlpha {
		img.SMask = &Image{Width: w, Height: h, ColorSpace: "DeviceGray", Data: alpha}
	}
	return img
}

// addTo stores the image XObject and its mask in arena.
func (img *Image) addTo(arena *raw.Document) raw.ObjectRef {
	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("XObject"))
	d.Set("Subtype", raw.NameLiteral("Image"))
	d.Set("Width", raw.NumberInt(int64(img.Width)))
	d.Set("Height", raw.NumberInt(int64(img.Height)))
	d.Set("ColorSpace", raw.NameLiteral(img.ColorSpace))
	d.Set("BitsPerComponent", raw.NumberInt(8))
	if img.SMask != nil {
		d.Set("SMask", raw.RefObj{R: img.SMask.addTo(arena)})
	}
	return arena.Add(raw.NewStream(d, img.Data))
}
