package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/wudi/pdftask/filters"
	"github.com/wudi/pdftask/ir/raw"
	"github.com/wudi/pdftask/scanner"
)

// ErrNoXRef reports a file whose cross-reference data could not be located.
var ErrNoXRef = errors.New("xref not found")

type EntryKind int

const (
	EntryFree EntryKind = iota
	EntryInUse
	EntryCompressed
)

// Entry locates one object. Offset is valid for in-use entries; Stream and
// Index for objects stored in an object stream.
type Entry struct {
	Kind   EntryKind
	Offset int64
	Gen    int
	Stream int
	Index  int
}

// Table is the merged cross-reference data of every revision in a file.
type Table struct {
	entries  map[int]Entry
	Trailer  *raw.DictObj
	Repaired bool
	Sections int
}

func newTable() *Table { return &Table{entries: make(map[int]Entry), Trailer: raw.Dict()} }

func (t *Table) Lookup(objNum int) (Entry, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.Kind == EntryFree {
		return Entry{}, false
	}
	return e, true
}

// Objects lists every in-use or compressed object number in ascending order.
func (t *Table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k, e := range t.entries {
		if e.Kind != EntryFree {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}

// add keeps the first entry seen for a number; revisions are visited newest first.
func (t *Table) add(num int, e Entry) {
	if _, exists := t.entries[num]; exists {
		return
	}
	t.entries[num] = e
}

// mergeTrailer fills keys missing from the newest trailer.
func (t *Table) mergeTrailer(d *raw.DictObj) {
	for _, k := range d.Keys() {
		switch k {
		case "Prev", "XRefStm", "Type", "W", "Index", "Filter", "DecodeParms", "Length":
			continue
		}
		if _, ok := t.Trailer.Get(k); !ok {
			t.Trailer.Set(k, d.KV[k])
		}
	}
}

type ResolverConfig struct {
	MaxXRefDepth int
	Filters      *filters.Pipeline
}

// Resolve reads the xref chain starting at the last startxref. When the chain
// is unusable it rebuilds the table by scanning the file.
func Resolve(ctx context.Context, data []byte, cfg ResolverConfig) (*Table, error) {
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = 64
	}
	if cfg.Filters == nil {
		cfg.Filters = filters.Default(filters.Limits{})
	}
	t, err := resolveChain(ctx, data, cfg)
	if err == nil {
		if _, ok := t.Trailer.Get("Root"); ok {
			return t, nil
		}
		err = errors.New("trailer has no /Root")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	repaired, rerr := Repair(ctx, data, cfg)
	if rerr != nil {
		return nil, fmt.Errorf("resolve xref: %v; repair: %w", err, rerr)
	}
	return repaired, nil
}

func resolveChain(ctx context.Context, data []byte, cfg ResolverConfig) (*Table, error) {
	offset, err := startXRef(data)
	if err != nil {
		return nil, err
	}
	t := newTable()
	visited := make(map[int64]bool)
	for depth := 0; offset >= 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if depth >= cfg.MaxXRefDepth {
			return nil, errors.New("xref chain too deep")
		}
		if visited[offset] {
			break
		}
		visited[offset] = true
		trailer, err := readSection(data, offset, t, cfg)
		if err != nil {
			return nil, err
		}
		t.Sections++
		t.mergeTrailer(trailer)
		if stm, ok := trailer.Int("XRefStm"); ok && !visited[stm] {
			visited[stm] = true
			if _, err := readSection(data, stm, t, cfg); err != nil {
				return nil, fmt.Errorf("hybrid xref stream: %w", err)
			}
		}
		prev, ok := trailer.Int("Prev")
		if !ok {
			break
		}
		offset = prev
	}
	return t, nil
}

func startXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, fmt.Errorf("%w: startxref missing", ErrNoXRef)
	}
	s := scanner.New(data, scanner.Config{})
	_ = s.Seek(int64(idx + len("startxref")))
	tok, err := s.Next()
	if err != nil || tok.Type != scanner.TokenNumber || !tok.IsInt {
		return 0, fmt.Errorf("%w: bad startxref value", ErrNoXRef)
	}
	if tok.Int <= 0 || tok.Int >= int64(len(data)) {
		return 0, fmt.Errorf("%w: offset %d out of range", ErrNoXRef, tok.Int)
	}
	return tok.Int, nil
}

func readSection(data []byte, offset int64, t *Table, cfg ResolverConfig) (*raw.DictObj, error) {
	if offset < 0 || offset >= int64(len(data)) {
		return nil, fmt.Errorf("xref offset out of range: %d", offset)
	}
	s := scanner.New(data, scanner.Config{})
	_ = s.Seek(offset)
	tok, err := s.Next()
	if err != nil {
		return nil, fmt.Errorf("read xref at %d: %w", offset, err)
	}
	if tok.Type == scanner.TokenKeyword && tok.Str == "xref" {
		return readTable(s, t)
	}
	if err := s.Seek(offset); err != nil {
		return nil, err
	}
	return readStream(s, t, cfg)
}

func readTable(s *scanner.Scanner, t *Table) (*raw.DictObj, error) {
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, errors.New("unexpected end of xref section")
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			obj, err := s.ReadObject()
			if err != nil {
				return nil, fmt.Errorf("parse trailer: %w", err)
			}
			dict, ok := obj.(*raw.DictObj)
			if !ok {
				return nil, errors.New("trailer is not a dictionary")
			}
			return dict, nil
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt {
			return nil, fmt.Errorf("invalid xref subsection header at %d", tok.Pos)
		}
		countTok, err := s.Next()
		if err != nil || countTok.Type != scanner.TokenNumber || !countTok.IsInt {
			return nil, fmt.Errorf("invalid xref subsection count at %d", tok.Pos)
		}
		start := int(tok.Int)
		for i := 0; i < int(countTok.Int); i++ {
			off, err1 := s.Next()
			gen, err2 := s.Next()
			kind, err3 := s.Next()
			if err1 != nil || err2 != nil || err3 != nil || off.Type != scanner.TokenNumber || gen.Type != scanner.TokenNumber {
				return nil, errors.New("unexpected end of xref section")
			}
			num := start + i
			switch kind.Str {
			case "n":
				// some writers emit entries with offset 0 for deleted objects
				if off.Int == 0 {
					t.add(num, Entry{Kind: EntryFree})
					continue
				}
				t.add(num, Entry{Kind: EntryInUse, Offset: off.Int, Gen: int(gen.Int)})
			case "f":
				t.add(num, Entry{Kind: EntryFree, Gen: int(gen.Int)})
			default:
				return nil, fmt.Errorf("invalid xref entry type %q", kind.Str)
			}
		}
	}
}

func readStream(s *scanner.Scanner, t *Table, cfg ResolverConfig) (*raw.DictObj, error) {
	_, obj, err := s.ReadIndirect(nil)
	if err != nil {
		return nil, fmt.Errorf("read xref stream: %w", err)
	}
	stream, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, errors.New("xref offset does not point at a stream")
	}
	if typ, _ := stream.Dict.Name("Type"); typ != "XRef" {
		return nil, fmt.Errorf("unexpected xref stream type %q", typ)
	}
	data, err := cfg.Filters.DecodeStream(context.Background(), nil, stream)
	if err != nil {
		return nil, fmt.Errorf("decode xref stream: %w", err)
	}
	widths, err := intArray(stream.Dict, "W")
	if err != nil || len(widths) != 3 {
		return nil, errors.New("xref stream /W must have three entries")
	}
	size, _ := stream.Dict.Int("Size")
	index, err := intArray(stream.Dict, "Index")
	if err != nil || len(index) == 0 {
		index = []int64{0, size}
	}
	rowLen := int(widths[0] + widths[1] + widths[2])
	if rowLen <= 0 {
		return nil, errors.New("xref stream rows are empty")
	}
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		first, count := index[i], index[i+1]
		for n := int64(0); n < count; n++ {
			if pos+rowLen > len(data) {
				return stream.Dict, nil
			}
			row := data[pos : pos+rowLen]
			pos += rowLen
			typ := int64(1)
			if widths[0] > 0 {
				typ = field(row[:widths[0]])
			}
			f2 := field(row[widths[0] : widths[0]+widths[1]])
			f3 := field(row[widths[0]+widths[1]:])
			num := int(first + n)
			switch typ {
			case 0:
				t.add(num, Entry{Kind: EntryFree, Gen: int(f3)})
			case 1:
				t.add(num, Entry{Kind: EntryInUse, Offset: f2, Gen: int(f3)})
			case 2:
				t.add(num, Entry{Kind: EntryCompressed, Stream: int(f2), Index: int(f3)})
			}
		}
	}
	return stream.Dict, nil
}

func field(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

func intArray(d *raw.DictObj, key string) ([]int64, error) {
	o, ok := d.Get(key)
	if !ok {
		return nil, fmt.Errorf("missing /%s", key)
	}
	arr, ok := o.(*raw.ArrayObj)
	if !ok {
		return nil, fmt.Errorf("/%s is not an array", key)
	}
	out := make([]int64, 0, arr.Len())
	for _, it := range arr.Items {
		n, ok := it.(raw.NumberObj)
		if !ok {
			return nil, fmt.Errorf("/%s holds a non-number", key)
		}
		out = append(out, n.Int())
	}
	return out, nil
}

// String describes an entry for diagnostics.
func (e Entry) String() string {
	switch e.Kind {
	case EntryInUse:
		return "offset " + strconv.FormatInt(e.Offset, 10)
	case EntryCompressed:
		return fmt.Sprintf("stream %d index %d", e.Stream, e.Index)
	}
	return "free"
}
