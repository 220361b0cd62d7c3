// Package writer serializes assembled documents. Every object a page
// references is copied out of its source arena and renumbered, so pages from
// several sources can share one output file.
package writer

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zlib"

	"github.com/wudi/pdftask/ir/raw"
	"github.com/wudi/pdftask/ir/semantic"
	"github.com/wudi/pdftask/security"
)

type Config struct {
	// Compress flate-encodes streams that carry no filter.
	Compress bool
	// CompressionLevel is a zlib level; 0 selects the default.
	CompressionLevel int
	// Deterministic derives /ID from the content instead of random bytes.
	Deterministic bool
	Encryption    *Encryption
	// Rand feeds file IDs and encryption salts; crypto/rand when nil.
	Rand io.Reader
}

// Encryption protects the output with the AES-256 standard security handler.
// An empty OwnerPassword reuses UserPassword.
type Encryption struct {
	UserPassword    string
	OwnerPassword   string
	Permissions     security.Permissions
	EncryptMetadata bool
}

func (c Config) level() int {
	if c.CompressionLevel == 0 {
		return zlib.DefaultCompression
	}
	return c.CompressionLevel
}

type Writer interface {
	Write(ctx context.Context, doc *semantic.Document, w io.Writer, cfg Config) error
}

// Interceptor observes each indirect object as it is written.
type Interceptor interface {
	BeforeWrite(ctx context.Context, ref raw.ObjectRef, obj raw.Object) error
	AfterWrite(ctx context.Context, ref raw.ObjectRef, bytesWritten int64) error
}

type WriterBuilder struct{ interceptors []Interceptor }

func (b *WriterBuilder) WithInterceptor(i Interceptor) *WriterBuilder {
	b.interceptors = append(b.interceptors, i)
	return b
}
func (b *WriterBuilder) Build() Writer { return &impl{interceptors: b.interceptors} }

// NewWriter returns a writer without interceptors.
func NewWriter() Writer { return &impl{} }

// WriteFile writes doc to path, replacing any existing file only once the
// whole document has been written.
func WriteFile(ctx context.Context, w Writer, doc *semantic.Document, path string, cfg Config) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pdftask-*")
	if err != nil {
		return err
	}
	if err := w.Write(ctx, doc, tmp, cfg); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
