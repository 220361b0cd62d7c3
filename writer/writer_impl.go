package writer

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdftask/filters"
	"github.com/wudi/pdftask/ir/raw"
	"github.com/wudi/pdftask/ir/semantic"
	"github.com/wudi/pdftask/security"
)

// ErrNoPages is returned for a document without pages.
var ErrNoPages = errors.New("document has no pages")

const (
	catalogNum = 1
	pagesNum   = 2
)

type impl struct{ interceptors []Interceptor }

func (w *impl) Write(ctx context.Context, doc *semantic.Document, out io.Writer, cfg Config) error {
	if doc == nil || len(doc.Pages) == 0 {
		return ErrNoPages
	}
	random := cfg.Rand
	if random == nil {
		random = rand.Reader
	}

	c := newClosure(pagesNum + 1)
	pageNums := make([]int, len(doc.Pages))
	for i, p := range doc.Pages {
		pageNums[i] = c.alloc()
		if p.Source != nil && p.Ref.Num != 0 {
			key := sourceRef{doc: p.Source, ref: p.Ref}
			if _, ok := c.pages[key]; !ok {
				c.pages[key] = pageNums[i]
			}
		}
	}
	kids := raw.NewArray()
	for i, p := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.objects[pageNums[i]] = c.pageDict(p)
		kids.Append(raw.Ref(pageNums[i], 0))
	}
	tree := raw.Dict()
	tree.Set("Type", raw.NameLiteral("Pages"))
	tree.Set("Kids", kids)
	tree.Set("Count", raw.NumberInt(int64(len(doc.Pages))))
	c.objects[pagesNum] = tree

	catalog := raw.Dict()
	catalog.Set("Type", raw.NameLiteral("Catalog"))
	catalog.Set("Pages", raw.Ref(pagesNum, 0))
	c.objects[catalogNum] = catalog

	trailer := raw.Dict()
	trailer.Set("Root", raw.Ref(catalogNum, 0))
	if doc.Info != nil {
		n := c.alloc()
		c.objects[n] = c.copyObject(doc.Raw, doc.Info)
		trailer.Set("Info", raw.Ref(n, 0))
	}

	if err := w.compress(c, cfg); err != nil {
		return err
	}
	id, err := fileID(c, cfg, random)
	if err != nil {
		return err
	}
	trailer.Set("ID", raw.NewArray(raw.HexStr(id[0]), raw.HexStr(id[1])))

	version := doc.Version
	if version == "" {
		version = "1.7"
	}
	if cfg.Encryption != nil {
		handler, encDict, err := security.BuildAES256Encryption(
			cfg.Encryption.UserPassword,
			cfg.Encryption.OwnerPassword,
			cfg.Encryption.Permissions,
			cfg.Encryption.EncryptMetadata,
			random,
		)
		if err != nil {
			return fmt.Errorf("encryption setup: %w", err)
		}
		if err := encryptObjects(c, handler); err != nil {
			return err
		}
		n := c.alloc()
		c.objects[n] = encDict
		trailer.Set("Encrypt", raw.Ref(n, 0))
		if version < "1.7" {
			version = "1.7"
		}
		if version == "1.7" {
			catalog.Set("Extensions", adbeExtension())
		}
	}
	trailer.Set("Size", raw.NumberInt(int64(c.next)))
	return w.emit(ctx, out, version, c, trailer)
}

// pageDict copies a page dictionary, pointing it at the new page tree.
func (c *closure) pageDict(p *semantic.Page) *raw.DictObj {
	d := raw.Dict()
	if p.Dict != nil {
		for _, k := range p.Dict.Keys() {
			if k == "Parent" {
				continue
			}
			d.Set(k, c.copyObject(p.Source, p.Dict.KV[k]))
		}
	}
	d.Set("Type", raw.NameLiteral("Page"))
	d.Set("Parent", raw.Ref(pagesNum, 0))
	if _, ok := d.Get("MediaBox"); !ok && p.MediaBox != nil {
		d.Set("MediaBox", p.MediaBox.Array())
	}
	if p.Rotate != 0 {
		d.Set("Rotate", raw.NumberInt(int64(semantic.NormalizeRotation(p.Rotate))))
	} else {
		d.Delete("Rotate")
	}
	return d
}

func adbeExtension() *raw.DictObj {
	adbe := raw.Dict()
	adbe.Set("BaseVersion", raw.NameLiteral("1.7"))
	adbe.Set("ExtensionLevel", raw.NumberInt(8))
	ext := raw.Dict()
	ext.Set("ADBE", adbe)
	return ext
}

func (w *impl) compress(c *closure, cfg Config) error {
	for _, obj := range c.objects {
		s, ok := obj.(*raw.StreamObj)
		if !ok {
			continue
		}
		if cfg.Compress && len(s.Data) > 0 {
			if _, filtered := s.Dict.Get("Filter"); !filtered {
				enc, err := filters.FlateEncode(s.Data, cfg.level())
				if err != nil {
					return fmt.Errorf("compress stream: %w", err)
				}
				s.Data = enc
				s.Dict.Set("Filter", raw.NameLiteral("FlateDecode"))
			}
		}
		s.Dict.Set("Length", raw.NumberInt(int64(len(s.Data))))
	}
	return nil
}

// fileID returns the two /ID strings. Deterministic IDs hash the serialized
// objects, so identical input yields identical output.
func fileID(c *closure, cfg Config, random io.Reader) ([2][]byte, error) {
	if cfg.Deterministic {
		h := sha256.New()
		for n := 1; n < c.next; n++ {
			if o, ok := c.objects[n]; ok {
				fmt.Fprintf(h, "%d ", n)
				h.Write(raw.Serialize(o))
			}
		}
		sum := h.Sum(nil)[:16]
		return [2][]byte{sum, append([]byte(nil), sum...)}, nil
	}
	id := make([]byte, 16)
	if _, err := io.ReadFull(random, id); err != nil {
		return [2][]byte{}, fmt.Errorf("file id: %w", err)
	}
	return [2][]byte{id, append([]byte(nil), id...)}, nil
}

func encryptObjects(c *closure, h security.Handler) error {
	for n := 1; n < c.next; n++ {
		obj, ok := c.objects[n]
		if !ok {
			continue
		}
		enc, err := encryptValue(h, raw.ObjectRef{Num: n}, obj)
		if err != nil {
			return fmt.Errorf("encrypt object %d: %w", n, err)
		}
		c.objects[n] = enc
	}
	return nil
}

func encryptValue(h security.Handler, ref raw.ObjectRef, obj raw.Object) (raw.Object, error) {
	switch v := obj.(type) {
	case raw.StringObj:
		enc, err := h.Encrypt(ref, v.Bytes, security.DataClassString)
		if err != nil {
			return nil, err
		}
		return raw.StringObj{Bytes: enc, Hex: v.Hex}, nil
	case *raw.ArrayObj:
		for i, item := range v.Items {
			enc, err := encryptValue(h, ref, item)
			if err != nil {
				return nil, err
			}
			v.Items[i] = enc
		}
		return v, nil
	case *raw.DictObj:
		for _, k := range v.Keys() {
			enc, err := encryptValue(h, ref, v.KV[k])
			if err != nil {
				return nil, err
			}
			v.KV[k] = enc
		}
		return v, nil
	case *raw.StreamObj:
		if _, err := encryptValue(h, ref, v.Dict); err != nil {
			return nil, err
		}
		class := security.DataClassStream
		if typ, _ := v.Dict.Name("Type"); typ == "Metadata" {
			if !h.EncryptMetadata() {
				return v, nil
			}
			class = security.DataClassMetadataStream
		}
		enc, err := h.Encrypt(ref, v.Data, class)
		if err != nil {
			return nil, err
		}
		v.Data = enc
		v.Dict.Set("Length", raw.NumberInt(int64(len(enc))))
		return v, nil
	}
	return obj, nil
}

func (w *impl) emit(ctx context.Context, out io.Writer, version string, c *closure, trailer *raw.DictObj) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", version)
	offsets := make([]int64, c.next)
	for n := 1; n < c.next; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		obj, ok := c.objects[n]
		if !ok {
			continue
		}
		ref := raw.ObjectRef{Num: n}
		for _, i := range w.interceptors {
			if err := i.BeforeWrite(ctx, ref, obj); err != nil {
				return err
			}
		}
		offsets[n] = int64(buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n", n)
		raw.AppendObject(&buf, obj)
		buf.WriteString("\nendobj\n")
		for _, i := range w.interceptors {
			if err := i.AfterWrite(ctx, ref, int64(buf.Len())-offsets[n]); err != nil {
				return err
			}
		}
	}
	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", c.next)
	for n := 1; n < c.next; n++ {
		if _, ok := c.objects[n]; ok {
			fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[n])
		} else {
			buf.WriteString("0000000000 65535 f \n")
		}
	}
	buf.WriteString("trailer\n")
	raw.AppendObject(&buf, trailer)
	fmt.Fprintf(&buf, "\nstartxref\n%d\n%%EOF\n", xrefOffset)

	_, err := out.Write(buf.Bytes())
	return err
}
