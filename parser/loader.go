package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdftask/filters"
	"github.com/wudi/pdftask/ir/raw"
	"github.com/wudi/pdftask/scanner"
	"github.com/wudi/pdftask/security"
	"github.com/wudi/pdftask/xref"
)

// objectLoader reads indirect objects out of the file bytes using the
// resolved cross-reference table.
type objectLoader struct {
	data     []byte
	table    *xref.Table
	filters  *filters.Pipeline
	security security.Handler
	// skip lists objects that are never decrypted (the /Encrypt dictionary).
	skip   map[int]bool
	objstm map[int]map[int]raw.Object
}

func newObjectLoader(data []byte, table *xref.Table, pipeline *filters.Pipeline) *objectLoader {
	return &objectLoader{
		data:     data,
		table:    table,
		filters:  pipeline,
		security: security.NoopHandler(),
		skip:     make(map[int]bool),
		objstm:   make(map[int]map[int]raw.Object),
	}
}

// loadAll reads every object listed in the table. Objects that fail to parse
// are left out and resolve to null, the usual reader behavior for damaged
// files.
func (l *objectLoader) loadAll(ctx context.Context) (map[raw.ObjectRef]raw.Object, error) {
	out := make(map[raw.ObjectRef]raw.Object)
	for _, num := range l.table.Objects() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if num == 0 {
			continue
		}
		ref, obj, err := l.load(ctx, num)
		if err != nil {
			continue
		}
		out[ref] = obj
	}
	return out, nil
}

func (l *objectLoader) load(ctx context.Context, num int) (raw.ObjectRef, raw.Object, error) {
	e, ok := l.table.Lookup(num)
	if !ok {
		return raw.ObjectRef{}, nil, fmt.Errorf("object %d not in xref", num)
	}
	if e.Kind == xref.EntryCompressed {
		obj, err := l.loadCompressed(ctx, num, e)
		return raw.ObjectRef{Num: num}, obj, err
	}
	ref, obj, err := l.loadPlain(num, e)
	if err != nil {
		return ref, nil, err
	}
	obj, err = l.decrypt(ref, obj)
	return ref, obj, err
}

// loadPlain parses the object at its xref offset without decrypting it.
func (l *objectLoader) loadPlain(num int, e xref.Entry) (raw.ObjectRef, raw.Object, error) {
	if e.Offset < 0 || e.Offset >= int64(len(l.data)) {
		return raw.ObjectRef{}, nil, fmt.Errorf("object %d: offset %d out of range", num, e.Offset)
	}
	s := scanner.New(l.data, scanner.Config{})
	if err := s.Seek(e.Offset); err != nil {
		return raw.ObjectRef{}, nil, err
	}
	ref, obj, err := s.ReadIndirect(l.streamLength)
	if err != nil {
		return ref, nil, fmt.Errorf("object %d: %w", num, err)
	}
	if ref.Num != num {
		return ref, nil, fmt.Errorf("object %d: header names object %d", num, ref.Num)
	}
	return ref, obj, nil
}

// streamLength resolves an indirect /Length. The target is read directly;
// it cannot itself be a stream.
func (l *objectLoader) streamLength(o raw.Object) (int64, bool) {
	ref, ok := o.(raw.RefObj)
	if !ok {
		return 0, false
	}
	e, ok := l.table.Lookup(ref.R.Num)
	if !ok || e.Kind != xref.EntryInUse {
		return 0, false
	}
	s := scanner.New(l.data, scanner.Config{})
	if err := s.Seek(e.Offset); err != nil {
		return 0, false
	}
	_, obj, err := s.ReadIndirect(nil)
	if err != nil {
		return 0, false
	}
	n, ok := obj.(raw.NumberObj)
	if !ok {
		return 0, false
	}
	return n.Int(), true
}

func (l *objectLoader) loadCompressed(ctx context.Context, num int, e xref.Entry) (raw.Object, error) {
	objs, ok := l.objstm[e.Stream]
	if !ok {
		var err error
		objs, err = l.readObjectStream(ctx, e.Stream)
		if err != nil {
			return nil, err
		}
		l.objstm[e.Stream] = objs
	}
	obj, ok := objs[num]
	if !ok {
		return nil, fmt.Errorf("object %d not found in object stream %d", num, e.Stream)
	}
	return obj, nil
}

func (l *objectLoader) readObjectStream(ctx context.Context, streamNum int) (map[int]raw.Object, error) {
	e, ok := l.table.Lookup(streamNum)
	if !ok || e.Kind != xref.EntryInUse {
		return nil, fmt.Errorf("object stream %d missing", streamNum)
	}
	ref, obj, err := l.loadPlain(streamNum, e)
	if err != nil {
		return nil, err
	}
	obj, err = l.decrypt(ref, obj)
	if err != nil {
		return nil, err
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, fmt.Errorf("object stream %d is not a stream", streamNum)
	}
	n, _ := st.Dict.Int("N")
	first, _ := st.Dict.Int("First")
	decoded, err := l.filters.DecodeStream(ctx, nil, st)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", streamNum, err)
	}
	if first < 0 || first > int64(len(decoded)) {
		return nil, fmt.Errorf("object stream %d: /First out of range", streamNum)
	}

	s := scanner.New(decoded[:first], scanner.Config{})
	type slot struct{ num, off int }
	var slots []slot
	for i := int64(0); i < n; i++ {
		numTok, err1 := s.Next()
		offTok, err2 := s.Next()
		if err1 != nil || err2 != nil || numTok.Type != scanner.TokenNumber || offTok.Type != scanner.TokenNumber {
			break
		}
		slots = append(slots, slot{num: int(numTok.Int), off: int(offTok.Int)})
	}
	objs := make(map[int]raw.Object, len(slots))
	body := scanner.New(decoded, scanner.Config{})
	for _, sl := range slots {
		if err := body.Seek(first + int64(sl.off)); err != nil {
			continue
		}
		o, err := body.ReadObject()
		if err != nil {
			continue
		}
		objs[sl.num] = o
	}
	return objs, nil
}

// inlinePlain loads o without decryption and replaces references inside it
// with their targets. Used for the /Encrypt dictionary, which is read before
// a security handler exists.
func (l *objectLoader) inlinePlain(o raw.Object, depth int) (raw.Object, error) {
	if depth > 16 {
		return nil, errors.New("encryption dictionary nests too deeply")
	}
	switch v := o.(type) {
	case raw.RefObj:
		e, ok := l.table.Lookup(v.R.Num)
		if !ok {
			return raw.NullObj{}, nil
		}
		var target raw.Object
		var err error
		if e.Kind == xref.EntryCompressed {
			target, err = l.loadCompressed(context.Background(), v.R.Num, e)
		} else {
			_, target, err = l.loadPlain(v.R.Num, e)
		}
		if err != nil {
			return nil, err
		}
		return l.inlinePlain(target, depth+1)
	case *raw.DictObj:
		out := raw.Dict()
		for _, k := range v.Keys() {
			item, err := l.inlinePlain(v.KV[k], depth+1)
			if err != nil {
				return nil, err
			}
			out.Set(k, item)
		}
		return out, nil
	case *raw.ArrayObj:
		out := raw.NewArray()
		for _, it := range v.Items {
			item, err := l.inlinePlain(it, depth+1)
			if err != nil {
				return nil, err
			}
			out.Append(item)
		}
		return out, nil
	}
	return o, nil
}

func (l *objectLoader) decrypt(ref raw.ObjectRef, obj raw.Object) (raw.Object, error) {
	if !l.security.IsEncrypted() || l.skip[ref.Num] {
		return obj, nil
	}
	return l.decryptValue(ref, obj)
}

func (l *objectLoader) decryptValue(ref raw.ObjectRef, obj raw.Object) (raw.Object, error) {
	switch v := obj.(type) {
	case raw.StringObj:
		dec, err := l.security.Decrypt(ref, v.Bytes, security.DataClassString)
		if err != nil {
			return nil, err
		}
		return raw.StringObj{Bytes: dec, Hex: v.Hex}, nil
	case *raw.ArrayObj:
		for i, item := range v.Items {
			dec, err := l.decryptValue(ref, item)
			if err != nil {
				return nil, err
			}
			v.Items[i] = dec
		}
		return v, nil
	case *raw.DictObj:
		for key, item := range v.KV {
			dec, err := l.decryptValue(ref, item)
			if err != nil {
				return nil, err
			}
			v.KV[key] = dec
		}
		return v, nil
	case *raw.StreamObj:
		typ, _ := v.Dict.Name("Type")
		if typ == "XRef" {
			return v, nil
		}
		if _, err := l.decryptValue(ref, v.Dict); err != nil {
			return nil, err
		}
		class := security.DataClassStream
		if typ == "Metadata" {
			class = security.DataClassMetadataStream
		}
		dec, err := l.security.Decrypt(ref, v.Data, class)
		if err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", ref, err)
		}
		v.Data = dec
		v.Dict.Set("Length", raw.NumberInt(int64(len(dec))))
		return v, nil
	}
	return obj, nil
}
