package xref

import (
	"context"
	"errors"
	"regexp"
	"strconv"

	"github.com/wudi/pdftask/filters"
	"github.com/wudi/pdftask/ir/raw"
	"github.com/wudi/pdftask/scanner"
)

var objHeader = regexp.MustCompile(`(?m)(?:^|[\r\n\s])(\d+)[ \t\r\n\f\x00]+(\d+)[ \t\r\n\f\x00]+obj\b`)

// Repair scans the entire file for "<num> <gen> obj" headers and trailer
// dictionaries and rebuilds the table. Later definitions win, matching
// incremental updates appended to the file.
func Repair(ctx context.Context, data []byte, cfg ResolverConfig) (*Table, error) {
	if cfg.Filters == nil {
		cfg.Filters = filters.Default(filters.Limits{})
	}
	t := newTable()
	t.Repaired = true
	offsets := make(map[int]Entry)
	for _, m := range objHeader.FindAllSubmatchIndex(data, -1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		num, err1 := strconv.Atoi(string(data[m[2]:m[3]]))
		gen, err2 := strconv.Atoi(string(data[m[4]:m[5]]))
		if err1 != nil || err2 != nil {
			continue
		}
		offsets[num] = Entry{Kind: EntryInUse, Offset: int64(m[2]), Gen: gen}
	}
	if len(offsets) == 0 {
		return nil, errors.New("repair failed: no objects found")
	}
	for num, e := range offsets {
		t.entries[num] = e
	}

	var catalog, xrefTrailer *raw.ObjectRef
	for num, e := range offsets {
		s := scanner.New(data, scanner.Config{})
		_ = s.Seek(e.Offset)
		ref, obj, err := s.ReadIndirect(nil)
		if err != nil {
			continue
		}
		dict, ok := obj.(*raw.DictObj)
		if st, isStream := obj.(*raw.StreamObj); isStream {
			dict, ok = st.Dict, true
		}
		if !ok {
			continue
		}
		switch typ, _ := dict.Name("Type"); typ {
		case "Catalog":
			r := ref
			catalog = &r
		case "XRef":
			if _, hasRoot := dict.Get("Root"); hasRoot && (xrefTrailer == nil || num > xrefTrailer.Num) {
				r := ref
				xrefTrailer = &r
				t.mergeTrailer(dict)
			}
		case "ObjStm":
			if st, isStream := obj.(*raw.StreamObj); isStream {
				indexObjectStream(ctx, t, num, st, cfg)
			}
		}
	}

	// the last trailer in the file is the newest
	s := scanner.New(data, scanner.Config{})
	for _, idx := range trailerOffsets(data) {
		_ = s.Seek(int64(idx))
		obj, err := s.ReadObject()
		if err != nil {
			continue
		}
		if dict, ok := obj.(*raw.DictObj); ok {
			fresh := raw.Dict()
			for _, k := range dict.Keys() {
				fresh.Set(k, dict.KV[k])
			}
			for _, k := range t.Trailer.Keys() {
				if _, ok := fresh.Get(k); !ok {
					fresh.Set(k, t.Trailer.KV[k])
				}
			}
			t.Trailer = fresh
		}
	}
	if root, ok := t.Trailer.Get("Root"); ok {
		if ref, isRef := root.(raw.RefObj); isRef {
			if _, found := t.entries[ref.R.Num]; !found {
				t.Trailer.Delete("Root")
			}
		}
	}
	if _, ok := t.Trailer.Get("Root"); !ok && catalog != nil {
		t.Trailer.Set("Root", raw.RefObj{R: *catalog})
	}
	if _, ok := t.Trailer.Get("Root"); !ok {
		return nil, errors.New("repair failed: no document catalog")
	}
	t.Trailer.Delete("Prev")
	t.Trailer.Delete("XRefStm")
	return t, nil
}

var trailerKeyword = regexp.MustCompile(`trailer[\s]*<<`)

func trailerOffsets(data []byte) []int {
	var out []int
	for _, m := range trailerKeyword.FindAllIndex(data, -1) {
		out = append(out, m[1]-2)
	}
	return out
}

func indexObjectStream(ctx context.Context, t *Table, streamNum int, st *raw.StreamObj, cfg ResolverConfig) {
	n, _ := st.Dict.Int("N")
	decoded, err := cfg.Filters.DecodeStream(ctx, nil, st)
	if err != nil {
		return
	}
	s := scanner.New(decoded, scanner.Config{})
	for i := 0; i < int(n); i++ {
		numTok, err := s.Next()
		if err != nil || numTok.Type != scanner.TokenNumber {
			return
		}
		if _, err := s.Next(); err != nil {
			return
		}
		num := int(numTok.Int)
		if _, exists := t.entries[num]; !exists {
			t.entries[num] = Entry{Kind: EntryCompressed, Stream: streamNum, Index: i}
		}
	}
}
