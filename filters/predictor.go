package filters

import (
	"errors"

	"github.com/wudi/pdftask/ir/raw"
)

// applyPredictor reverses TIFF (2) and PNG (10-15) predictors.
func applyPredictor(data []byte, params *raw.DictObj) ([]byte, error) {
	if params == nil {
		return data, nil
	}
	predictor := intParam(params, "Predictor", 1)
	if predictor <= 1 {
		return data, nil
	}
	colors := intParam(params, "Colors", 1)
	bpc := intParam(params, "BitsPerComponent", 8)
	columns := intParam(params, "Columns", 1)
	if colors < 1 || bpc < 1 || columns < 1 {
		return nil, errors.New("invalid predictor parameters")
	}
	bpp := (colors*bpc + 7) / 8
	rowLen := (colors*bpc*columns + 7) / 8
	if predictor == 2 {
		return tiffPredictor(data, rowLen, bpp, bpc), nil
	}
	return pngPredictor(data, rowLen, bpp)
}

func intParam(d *raw.DictObj, key string, def int) int {
	if v, ok := d.Int(key); ok {
		return int(v)
	}
	return def
}

func tiffPredictor(data []byte, rowLen, bpp, bpc int) []byte {
	if bpc != 8 {
		// sub-byte samples are left as-is
		return data
	}
	out := append([]byte(nil), data...)
	for row := 0; row+rowLen <= len(out); row += rowLen {
		for i := bpp; i < rowLen; i++ {
			out[row+i] += out[row+i-bpp]
		}
	}
	return out
}

func pngPredictor(data []byte, rowLen, bpp int) ([]byte, error) {
	stride := rowLen + 1
	rows := len(data) / stride
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	cur := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		line := data[r*stride : (r+1)*stride]
		ft := line[0]
		copy(cur, line[1:])
		switch ft {
		case 0:
		case 1:
			for i := bpp; i < rowLen; i++ {
				cur[i] += cur[i-bpp]
			}
		case 2:
			for i := 0; i < rowLen; i++ {
				cur[i] += prev[i]
			}
		case 3:
			for i := 0; i < rowLen; i++ {
				var left byte
				if i >= bpp {
					left = cur[i-bpp]
				}
				cur[i] += byte((int(left) + int(prev[i])) / 2)
			}
		case 4:
			for i := 0; i < rowLen; i++ {
				var left, upLeft byte
				if i >= bpp {
					left = cur[i-bpp]
					upLeft = prev[i-bpp]
				}
				cur[i] += paeth(left, prev[i], upLeft)
			}
		default:
			return nil, errors.New("invalid png filter type")
		}
		out = append(out, cur...)
		prev, cur = cur, prev
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
