package parser

import (
	"fmt"
	"math"

	"github.com/wudi/pdftask/ir/raw"
	"github.com/wudi/pdftask/ir/semantic"
)

// inheritable lists page attributes that may be set on an ancestor /Pages node.
var inheritable = []string{"Resources", "MediaBox", "CropBox", "Rotate"}

const maxTreeDepth = 64

type pageWalker struct {
	doc     *raw.Document
	visited map[raw.ObjectRef]bool
	pages   []*semantic.Page
}

// collectPages flattens the page tree in document order. Inherited attributes
// are copied onto each page dictionary; nodes reached twice are skipped.
func collectPages(doc *raw.Document, catalog *raw.DictObj) ([]*semantic.Page, error) {
	root, ok := catalog.Get("Pages")
	if !ok {
		return nil, fmt.Errorf("%w: catalog has no /Pages", ErrMalformed)
	}
	w := &pageWalker{doc: doc, visited: make(map[raw.ObjectRef]bool)}
	if err := w.walk(root, raw.Dict(), 0); err != nil {
		return nil, err
	}
	return w.pages, nil
}

func (w *pageWalker) walk(node raw.Object, inherited *raw.DictObj, depth int) error {
	if depth > maxTreeDepth {
		return fmt.Errorf("%w: page tree deeper than %d", ErrMalformed, maxTreeDepth)
	}
	var ref raw.ObjectRef
	if r, ok := node.(raw.RefObj); ok {
		if w.visited[r.R] {
			return nil
		}
		w.visited[r.R] = true
		ref = r.R
	}
	dict, ok := w.doc.ResolveDict(node)
	if !ok {
		return nil
	}
	typ, _ := dict.Name("Type")
	kidsObj, hasKids := dict.Get("Kids")
	if typ == "Pages" || (typ != "Page" && hasKids) {
		next := raw.ShallowCopy(inherited)
		for _, key := range inheritable {
			if v, ok := dict.Get(key); ok {
				next.Set(key, v)
			}
		}
		kids, ok := w.doc.ResolveArray(kidsObj)
		if !ok {
			return nil
		}
		for _, kid := range kids.Items {
			if err := w.walk(kid, next, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	w.pages = append(w.pages, w.page(ref, dict, inherited))
	return nil
}

func (w *pageWalker) page(ref raw.ObjectRef, dict, inherited *raw.DictObj) *semantic.Page {
	pd := raw.ShallowCopy(dict)
	for _, key := range inheritable {
		if _, ok := pd.Get(key); !ok {
			if v, ok := inherited.Get(key); ok {
				pd.Set(key, v)
			}
		}
	}
	p := &semantic.Page{
		Index:    len(w.pages),
		Ref:      ref,
		Dict:     pd,
		Source:   w.doc,
		MediaBox: w.rect(pd, "MediaBox"),
		CropBox:  w.rect(pd, "CropBox"),
	}
	if v, ok := pd.Get("UserUnit"); ok {
		if n, ok := w.doc.ResolveNumber(v); ok && n > 0 {
			p.UserUnit = n
		}
	}
	if v, ok := pd.Get("Rotate"); ok {
		if n, ok := w.doc.ResolveNumber(v); ok {
			p.Rotate = semantic.NormalizeRotation(int(math.Round(n/90)) * 90)
		}
	}
	return p
}

func (w *pageWalker) rect(d *raw.DictObj, key string) *semantic.Rectangle {
	v, ok := d.Get(key)
	if !ok {
		return nil
	}
	return RectangleFrom(w.doc, v)
}

// RectangleFrom reads a four-number array. Corners are normalised so LLX <=
// URX and LLY <= URY. It returns nil for anything else.
func RectangleFrom(doc *raw.Document, o raw.Object) *semantic.Rectangle {
	arr, ok := doc.ResolveArray(o)
	if !ok || arr.Len() != 4 {
		return nil
	}
	var v [4]float64
	for i, it := range arr.Items {
		n, ok := doc.ResolveNumber(it)
		if !ok {
			return nil
		}
		v[i] = n
	}
	return &semantic.Rectangle{
		LLX: math.Min(v[0], v[2]),
		LLY: math.Min(v[1], v[3]),
		URX: math.Max(v[0], v[2]),
		URY: math.Max(v[1], v[3]),
	}
}
