package writer

import (
	"github.com/wudi/pdftask/ir/raw"
)

// sourceRef identifies an object within one source arena.
type sourceRef struct {
	doc *raw.Document
	ref raw.ObjectRef
}

// closure collects renumbered copies of everything reachable from the
// output pages.
type closure struct {
	objects map[int]raw.Object
	next    int
	mapped  map[sourceRef]int
	// pages maps a source page to the first output page made from it.
	pages map[sourceRef]int
}

func newClosure(first int) *closure {
	return &closure{
		objects: make(map[int]raw.Object),
		next:    first,
		mapped:  make(map[sourceRef]int),
		pages:   make(map[sourceRef]int),
	}
}

func (c *closure) alloc() int {
	n := c.next
	c.next++
	return n
}

// copyObject copies o from src. References are followed and renumbered;
// references to pages outside the output, or to page tree nodes, become null.
func (c *closure) copyObject(src *raw.Document, o raw.Object) raw.Object {
	switch v := o.(type) {
	case raw.RefObj:
		return c.copyRef(src, v.R)
	case *raw.DictObj:
		if v == nil {
			return raw.NullObj{}
		}
		out := raw.Dict()
		for _, k := range v.Keys() {
			out.Set(k, c.copyObject(src, v.KV[k]))
		}
		return out
	case *raw.ArrayObj:
		if v == nil {
			return raw.NullObj{}
		}
		out := &raw.ArrayObj{Items: make([]raw.Object, len(v.Items))}
		for i, item := range v.Items {
			out.Items[i] = c.copyObject(src, item)
		}
		return out
	case *raw.StreamObj:
		// streams must be indirect
		n := c.alloc()
		c.objects[n] = c.copyStream(src, v)
		return raw.Ref(n, 0)
	case nil:
		return raw.NullObj{}
	}
	return o
}

func (c *closure) copyStream(src *raw.Document, s *raw.StreamObj) *raw.StreamObj {
	dict := raw.Dict()
	if s.Dict != nil {
		for _, k := range s.Dict.Keys() {
			if k == "Length" {
				continue
			}
			dict.Set(k, c.copyObject(src, s.Dict.KV[k]))
		}
	}
	return raw.NewStream(dict, s.Data)
}

func (c *closure) copyRef(src *raw.Document, ref raw.ObjectRef) raw.Object {
	key := sourceRef{doc: src, ref: ref}
	if n, ok := c.pages[key]; ok {
		return raw.Ref(n, 0)
	}
	if n, ok := c.mapped[key]; ok {
		return raw.Ref(n, 0)
	}
	target, ok := src.Get(ref)
	if !ok || target == nil {
		return raw.NullObj{}
	}
	if isPageNode(target) {
		return raw.NullObj{}
	}
	n := c.alloc()
	c.mapped[key] = n
	if s, ok := target.(*raw.StreamObj); ok {
		c.objects[n] = c.copyStream(src, s)
	} else {
		c.objects[n] = c.copyObject(src, target)
	}
	return raw.Ref(n, 0)
}

func isPageNode(o raw.Object) bool {
	d, ok := o.(*raw.DictObj)
	if !ok {
		return false
	}
	typ, _ := d.Name("Type")
	return typ == "Page" || typ == "Pages"
}
