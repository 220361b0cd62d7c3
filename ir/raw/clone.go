package raw

// Clone returns a deep copy of o. References are copied as references;
// stream payloads are shared since they are never mutated in place.
func Clone(o Object) Object {
	switch v := o.(type) {
	case *DictObj:
		return CloneDict(v)
	case *ArrayObj:
		if v == nil {
			return v
		}
		out := &ArrayObj{Items: make([]Object, len(v.Items))}
		for i, it := range v.Items {
			out.Items[i] = Clone(it)
		}
		return out
	case *StreamObj:
		if v == nil {
			return v
		}
		return &StreamObj{Dict: CloneDict(v.Dict), Data: v.Data}
	case StringObj:
		return StringObj{Bytes: append([]byte(nil), v.Bytes...), Hex: v.Hex}
	default:
		return o
	}
}

// CloneDict deep-copies a dictionary.
func CloneDict(d *DictObj) *DictObj {
	if d == nil {
		return nil
	}
	out := &DictObj{KV: make(map[string]Object, len(d.KV))}
	for k, v := range d.KV {
		out.KV[k] = Clone(v)
	}
	return out
}

// ShallowCopy copies the top level of a dictionary.
func ShallowCopy(d *DictObj) *DictObj {
	out := &DictObj{KV: make(map[string]Object)}
	if d == nil {
		return out
	}
	for k, v := range d.KV {
		out.KV[k] = v
	}
	return out
}

// Inline resolves every reference reachable from o against doc and returns
// a tree of direct objects, so the result no longer depends on doc.
// Objects already inlined are shared; a reference cycle is cut with null.
func (d *Document) Inline(o Object) Object {
	in := &inliner{doc: d, done: make(map[ObjectRef]Object), active: make(map[ObjectRef]bool)}
	return in.inline(o)
}

type inliner struct {
	doc    *Document
	done   map[ObjectRef]Object
	active map[ObjectRef]bool
}

func (in *inliner) inline(o Object) Object {
	switch v := o.(type) {
	case RefObj:
		if got, ok := in.done[v.R]; ok {
			return got
		}
		if in.active[v.R] {
			return NullObj{}
		}
		target, ok := in.doc.Get(v.R)
		if !ok {
			return NullObj{}
		}
		in.active[v.R] = true
		out := in.inline(target)
		delete(in.active, v.R)
		in.done[v.R] = out
		return out
	case *DictObj:
		if v == nil {
			return NullObj{}
		}
		out := &DictObj{KV: make(map[string]Object, len(v.KV))}
		for k, val := range v.KV {
			out.KV[k] = in.inline(val)
		}
		return out
	case *ArrayObj:
		if v == nil {
			return NullObj{}
		}
		out := &ArrayObj{Items: make([]Object, len(v.Items))}
		for i, it := range v.Items {
			out.Items[i] = in.inline(it)
		}
		return out
	case *StreamObj:
		if v == nil {
			return NullObj{}
		}
		dict, _ := in.inline(v.Dict).(*DictObj)
		if dict == nil {
			dict = Dict()
		}
		return &StreamObj{Dict: dict, Data: v.Data}
	default:
		return o
	}
}
