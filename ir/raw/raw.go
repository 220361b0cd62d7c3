package raw

import (
	"fmt"
	"sort"
)

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
	IsIndirect() bool
}

// maxResolveDepth bounds chains of references pointing at references.
const maxResolveDepth = 32

// Document is the arena holding every indirect object of one PDF file.
// Pages reference objects in the arena they were read from.
type Document struct {
	Objects   map[ObjectRef]Object
	Trailer   *DictObj
	Version   string // e.g., "1.7"
	Encrypted bool
}

// NewDocument returns an empty arena.
func NewDocument() *Document {
	return &Document{Objects: make(map[ObjectRef]Object), Trailer: Dict(), Version: "1.7"}
}

// Get returns the indirect object stored under ref.
func (d *Document) Get(ref ObjectRef) (Object, bool) {
	if d == nil {
		return nil, false
	}
	o, ok := d.Objects[ref]
	return o, ok
}

// Resolve follows references until a direct object is reached. Dangling
// references resolve to null.
func (d *Document) Resolve(o Object) Object {
	for i := 0; i < maxResolveDepth; i++ {
		ref, ok := o.(RefObj)
		if !ok {
			return o
		}
		target, found := d.Get(ref.R)
		if !found || target == nil {
			return NullObj{}
		}
		o = target
	}
	return NullObj{}
}

// ResolveDict resolves o and returns it as a dictionary. Streams yield their
// dictionary.
func (d *Document) ResolveDict(o Object) (*DictObj, bool) {
	if o == nil {
		return nil, false
	}
	switch v := d.Resolve(o).(type) {
	case *DictObj:
		return v, true
	case *StreamObj:
		return v.Dict, v.Dict != nil
	}
	return nil, false
}

// ResolveArray resolves o and returns it as an array.
func (d *Document) ResolveArray(o Object) (*ArrayObj, bool) {
	if o == nil {
		return nil, false
	}
	a, ok := d.Resolve(o).(*ArrayObj)
	return a, ok
}

// ResolveNumber resolves o and returns its numeric value.
func (d *Document) ResolveNumber(o Object) (float64, bool) {
	if o == nil {
		return 0, false
	}
	n, ok := d.Resolve(o).(NumberObj)
	if !ok {
		return 0, false
	}
	return n.Float(), true
}

// Add stores obj under the next free object number.
func (d *Document) Add(obj Object) ObjectRef {
	if d.Objects == nil {
		d.Objects = make(map[ObjectRef]Object)
	}
	ref := ObjectRef{Num: d.MaxObjectNumber() + 1}
	d.Objects[ref] = obj
	return ref
}

// MaxObjectNumber reports the highest object number in the arena.
func (d *Document) MaxObjectNumber() int {
	max := 0
	for ref := range d.Objects {
		if ref.Num > max {
			max = ref.Num
		}
	}
	return max
}

// Refs returns every object reference in ascending order.
func (d *Document) Refs() []ObjectRef {
	refs := make([]ObjectRef, 0, len(d.Objects))
	for ref := range d.Objects {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num != refs[j].Num {
			return refs[i].Num < refs[j].Num
		}
		return refs[i].Gen < refs[j].Gen
	})
	return refs
}

// Catalog returns the document catalog named by the trailer /Root entry.
func (d *Document) Catalog() (*DictObj, bool) {
	if d == nil || d.Trailer == nil {
		return nil, false
	}
	root, ok := d.Trailer.Get("Root")
	if !ok {
		return nil, false
	}
	return d.ResolveDict(root)
}
