// Package parser opens PDF files into the page-level model used by the
// assembly engine.
package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/wudi/pdftask/filters"
	"github.com/wudi/pdftask/ir/raw"
	"github.com/wudi/pdftask/ir/semantic"
	"github.com/wudi/pdftask/security"
	"github.com/wudi/pdftask/xref"
)

// ErrInvalidPassword is returned when an encrypted source cannot be opened
// with the supplied password.
var ErrInvalidPassword = security.ErrInvalidPassword

// ErrMalformed reports a file without a usable catalog or page tree.
var ErrMalformed = errors.New("malformed document")

// ErrSourceTooLarge reports a source above Config.MaxSourceBytes.
var ErrSourceTooLarge = errors.New("source exceeds size limit")

// Config controls how a source is opened.
type Config struct {
	Password string
	// MaxSourceBytes rejects larger inputs when positive.
	MaxSourceBytes int64
	// MaxDecompressedSize bounds any single decoded stream when positive.
	MaxDecompressedSize int64
	XRef                xref.ResolverConfig
}

// OpenFile opens the PDF at path.
func OpenFile(ctx context.Context, path string, cfg Config) (*semantic.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	doc, err := Open(ctx, f, info.Size(), cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Open reads size bytes from r and parses them.
func Open(ctx context.Context, r io.ReaderAt, size int64, cfg Config) (*semantic.Document, error) {
	if cfg.MaxSourceBytes > 0 && size > cfg.MaxSourceBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrSourceTooLarge, size)
	}
	data := make([]byte, size)
	if _, err := r.ReadAt(data, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read source: %w", err)
	}
	return OpenBytes(ctx, data, cfg)
}

// OpenBytes parses an in-memory PDF.
func OpenBytes(ctx context.Context, data []byte, cfg Config) (*semantic.Document, error) {
	if cfg.MaxSourceBytes > 0 && int64(len(data)) > cfg.MaxSourceBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrSourceTooLarge, len(data))
	}
	pipeline := filters.Default(filters.Limits{MaxDecompressedSize: cfg.MaxDecompressedSize})
	xcfg := cfg.XRef
	if xcfg.Filters == nil {
		xcfg.Filters = pipeline
	}
	table, err := xref.Resolve(ctx, data, xcfg)
	if err != nil {
		return nil, fmt.Errorf("resolve xref: %w", err)
	}

	loader := newObjectLoader(data, table, pipeline)
	handler, err := setupSecurity(loader, table.Trailer, cfg.Password)
	if err != nil {
		return nil, err
	}
	loader.security = handler

	objects, err := loader.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	rawDoc := &raw.Document{
		Objects:   objects,
		Trailer:   table.Trailer,
		Version:   headerVersion(data),
		Encrypted: handler.IsEncrypted(),
	}
	catalog, ok := rawDoc.Catalog()
	if !ok {
		return nil, fmt.Errorf("%w: catalog missing", ErrMalformed)
	}
	if v, ok := catalog.Name("Version"); ok && v > rawDoc.Version {
		rawDoc.Version = v
	}

	pages, err := collectPages(rawDoc, catalog)
	if err != nil {
		return nil, err
	}
	doc := &semantic.Document{
		Pages:     pages,
		Version:   rawDoc.Version,
		Encrypted: handler.IsEncrypted(),
		Revision:  handler.Revision(),
		Raw:       rawDoc,
	}
	if info, ok := table.Trailer.Get("Info"); ok {
		doc.Info, _ = rawDoc.ResolveDict(info)
	}
	return doc, nil
}

func setupSecurity(l *objectLoader, trailer *raw.DictObj, password string) (security.Handler, error) {
	encObj, ok := trailer.Get("Encrypt")
	if !ok {
		return security.NoopHandler(), nil
	}
	if ref, isRef := encObj.(raw.RefObj); isRef {
		l.skip[ref.R.Num] = true
	}
	inlined, err := l.inlinePlain(encObj, 0)
	if err != nil {
		return nil, fmt.Errorf("read encryption dictionary: %w", err)
	}
	encDict, ok := inlined.(*raw.DictObj)
	if !ok {
		return nil, fmt.Errorf("%w: /Encrypt is not a dictionary", ErrMalformed)
	}
	handler, err := (&security.HandlerBuilder{}).
		WithEncryptDict(encDict).
		WithFileID(firstFileID(trailer)).
		Build()
	if err != nil {
		return nil, fmt.Errorf("security setup: %w", err)
	}
	if err := handler.Authenticate(password); err != nil {
		return nil, fmt.Errorf("security setup: %w", err)
	}
	// object streams read while locating /Encrypt were not decrypted
	l.objstm = make(map[int]map[int]raw.Object)
	return handler, nil
}

func firstFileID(trailer *raw.DictObj) []byte {
	idObj, ok := trailer.Get("ID")
	if !ok {
		return nil
	}
	arr, ok := idObj.(*raw.ArrayObj)
	if !ok || arr.Len() == 0 {
		return nil
	}
	if s, ok := arr.Items[0].(raw.StringObj); ok {
		return s.Bytes
	}
	return nil
}

var headerRE = regexp.MustCompile(`%PDF-(\d\.\d)`)

func headerVersion(data []byte) string {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	if m := headerRE.FindSubmatch(head); m != nil {
		return string(m[1])
	}
	return "1.7"
}
