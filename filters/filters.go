package filters

import (
	"bytes"
	"context"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/wudi/pdftask/ir/raw"
)

// ErrUnsupportedFilter reports a filter with no registered decoder.
var ErrUnsupportedFilter = errors.New("unsupported filter")

// ErrLimitExceeded reports a decoded payload larger than Limits allow.
var ErrLimitExceeded = errors.New("decoded size exceeds limit")

type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params *raw.DictObj) ([]byte, error)
}

type Limits struct {
	MaxDecompressedSize int64
}

type Pipeline struct {
	decoders map[string]Decoder
	limits   Limits
}

// NewPipeline constructs a pipeline with provided decoders and limits.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	p := &Pipeline{decoders: make(map[string]Decoder, len(decoders)), limits: limits}
	for _, d := range decoders {
		p.decoders[d.Name()] = d
	}
	return p
}

// Default returns a pipeline with every decoder this package provides.
func Default(limits Limits) *Pipeline {
	return NewPipeline([]Decoder{NewFlateDecoder(), NewASCIIHexDecoder(), NewASCII85Decoder()}, limits)
}

// Decode applies the named filters in order.
func (p *Pipeline) Decode(ctx context.Context, input []byte, filterNames []string, params []*raw.DictObj) ([]byte, error) {
	data := input
	for i, name := range filterNames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dec, ok := p.decoders[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilter, name)
		}
		var param *raw.DictObj
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, ErrLimitExceeded
		}
		data = out
	}
	return data, nil
}

// DecodeStream decodes a stream according to its /Filter and /DecodeParms.
// doc resolves indirect filter entries and may be nil.
func (p *Pipeline) DecodeStream(ctx context.Context, doc *raw.Document, s *raw.StreamObj) ([]byte, error) {
	names, params := StreamFilters(doc, s.Dict)
	if len(names) == 0 {
		return s.Data, nil
	}
	return p.Decode(ctx, s.Data, names, params)
}

// StreamFilters lists the filter chain of a stream dictionary.
func StreamFilters(doc *raw.Document, dict *raw.DictObj) ([]string, []*raw.DictObj) {
	if dict == nil {
		return nil, nil
	}
	filterObj, ok := dict.Get("Filter")
	if !ok {
		return nil, nil
	}
	var names []string
	switch v := doc.Resolve(filterObj).(type) {
	case raw.NameObj:
		names = []string{v.Val}
	case *raw.ArrayObj:
		for _, it := range v.Items {
			if n, ok := doc.Resolve(it).(raw.NameObj); ok {
				names = append(names, n.Val)
			}
		}
	}
	var params []*raw.DictObj
	if parmsObj, ok := dict.Get("DecodeParms"); ok {
		switch v := doc.Resolve(parmsObj).(type) {
		case *raw.DictObj:
			params = []*raw.DictObj{v}
		case *raw.ArrayObj:
			for _, it := range v.Items {
				d, _ := doc.ResolveDict(it)
				params = append(params, d)
			}
		}
	}
	return names, params
}

type flateDecoder struct{}

func (flateDecoder) Name() string { return "FlateDecode" }
func NewFlateDecoder() Decoder    { return flateDecoder{} }

func (flateDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(in))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil {
		// truncated streams are common; keep what inflated cleanly
		if !errors.Is(err, io.ErrUnexpectedEOF) || out.Len() == 0 {
			return nil, err
		}
	}
	return applyPredictor(out.Bytes(), params)
}

type asciiHexDecoder struct{}

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }
func NewASCIIHexDecoder() Decoder    { return asciiHexDecoder{} }

func (asciiHexDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	clean := make([]byte, 0, len(in))
	for _, c := range in {
		if c == '>' {
			break
		}
		if c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0 {
			continue
		}
		clean = append(clean, c)
	}
	// an odd final digit is padded with 0
	if len(clean)%2 == 1 {
		clean = append(clean, '0')
	}
	result := make([]byte, hex.DecodedLen(len(clean)))
	n, err := hex.Decode(result, clean)
	if err != nil {
		return nil, err
	}
	return result[:n], nil
}

type ascii85Decoder struct{}

func (ascii85Decoder) Name() string { return "ASCII85Decode" }
func NewASCII85Decoder() Decoder    { return ascii85Decoder{} }

func (ascii85Decoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	trimmed = bytes.TrimPrefix(trimmed, []byte("<~"))
	if i := bytes.Index(trimmed, []byte("~>")); i >= 0 {
		trimmed = trimmed[:i]
	}
	out := make([]byte, len(trimmed)*4+4)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

// FlateEncode compresses data with zlib framing as FlateDecode expects.
func FlateEncode(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
