// Package organize runs complete assembly jobs: open the sources, build the
// output from a task, optionally watermark or stamp it, and write it out.
// Every intermediate file lives in a scope that is closed when the job ends,
// whether it succeeds or not.
package organize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wudi/pdftask/builder"
	"github.com/wudi/pdftask/config"
	"github.com/wudi/pdftask/geometry"
	"github.com/wudi/pdftask/images"
	"github.com/wudi/pdftask/ir/raw"
	"github.com/wudi/pdftask/ir/semantic"
	"github.com/wudi/pdftask/lifecycle"
	"github.com/wudi/pdftask/observability"
	"github.com/wudi/pdftask/overlay"
	"github.com/wudi/pdftask/parser"
	"github.com/wudi/pdftask/security"
	"github.com/wudi/pdftask/task"
	"github.com/wudi/pdftask/writer"
)

var (
	// ErrNoSources is returned when a request names no input files.
	ErrNoSources = errors.New("no source documents")
	// ErrTooManySources reports more inputs than Limits.MaxSources.
	ErrTooManySources = errors.New("too many source documents")
	// ErrTooManyPages reports output above Limits.MaxPages.
	ErrTooManyPages = errors.New("too many output pages")
)

// Plan derives the action sequence from the page counts of the opened
// sources. It is used instead of a task string by the preset commands.
type Plan func(pageCounts []int) (task.Sequence, error)

// Request describes one organize job.
type Request struct {
	Sources []string
	// Task is the action string; ignored when Plan is set.
	Task string
	Plan Plan
	// FilesPassword is the password map for encrypted sources.
	FilesPassword string
	// OutputPassword encrypts the result when set.
	OutputPassword string
	// Watermark text; empty uses the configured text when Watermark.Always
	// is set, and skips watermarking otherwise.
	Watermark string
	// RemoveImages blanks every image the output pages draw.
	RemoveImages bool
	Output       string
}

// Result summarizes a finished job.
type Result struct {
	Output  string
	Pages   int
	Sources int
	Bytes   int64
}

// Service runs jobs with shared configuration.
type Service struct {
	cfg    *config.Config
	logger observability.Logger
	tracer observability.Tracer
}

type Option func(*Service)

// WithTracer reports job stages to t.
func WithTracer(t observability.Tracer) Option { return func(s *Service) { s.tracer = t } }

// NewService returns a service. A nil cfg uses config.DefaultConfig.
func NewService(cfg *config.Config, logger observability.Logger, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = observability.NopLogger{}
	}
	s := &Service{cfg: cfg, logger: logger, tracer: observability.NopTracer()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) newScope() *lifecycle.Scope {
	var opts []lifecycle.Option
	if s.cfg.Temp.Dir != "" {
		opts = append(opts, lifecycle.WithTempDir(s.cfg.Temp.Dir))
	}
	return lifecycle.NewScope(s.logger, opts...)
}

// stage runs fn inside a span named after the stage.
func (s *Service) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := s.tracer.StartSpan(ctx, "organize."+name)
	defer span.Finish()
	if err := fn(ctx); err != nil {
		span.SetError(err)
		return err
	}
	return nil
}

// Run executes req.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	logger := s.logger.With(observability.String("output", req.Output))
	scope := s.newScope()
	defer scope.Close()

	if err := s.checkSources(req.Sources); err != nil {
		return nil, err
	}
	var seq task.Sequence
	var passwords task.PasswordMap
	err := s.stage(ctx, "parse", func(context.Context) error {
		var err error
		if req.Plan == nil {
			if seq, err = task.Parse(req.Task); err != nil {
				return err
			}
		}
		if passwords, err = s.parsePasswords(req.FilesPassword); err != nil {
			return err
		}
		return s.checkOutputPassword(req.OutputPassword)
	})
	if err != nil {
		return nil, err
	}

	var docs []*semantic.Document
	err = s.stage(ctx, "open", func(ctx context.Context) error {
		var err error
		docs, err = s.openAll(ctx, req.Sources, passwords)
		return err
	})
	if err != nil {
		return nil, err
	}
	if req.Plan != nil {
		if seq, err = req.Plan(pageCounts(docs)); err != nil {
			return nil, err
		}
	}

	var out *semantic.Document
	err = s.stage(ctx, "build", func(context.Context) error {
		var err error
		if out, err = builder.Assemble(seq, docs); err != nil {
			return err
		}
		return s.checkPages(out)
	})
	if err != nil {
		return nil, err
	}

	if req.RemoveImages {
		err = s.stage(ctx, "strip", func(context.Context) error {
			n := images.Remove(out)
			logger.Debug("images removed", observability.Int("images", n))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if text := s.watermarkText(req.Watermark); text != "" {
		err = s.stage(ctx, "watermark", func(ctx context.Context) error {
			return overlay.WatermarkDocument(ctx, scope, out, text)
		})
		if err != nil {
			return nil, err
		}
	}

	res := &Result{Output: req.Output, Pages: out.PageCount(), Sources: len(docs)}
	err = s.stage(ctx, "write", func(ctx context.Context) error {
		n, err := s.write(ctx, out, req.Output, req.OutputPassword)
		res.Bytes = n
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Info("organize finished",
		observability.Int("pages", res.Pages),
		observability.Int("sources", res.Sources),
		observability.Int64("bytes", res.Bytes),
		observability.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (s *Service) checkSources(sources []string) error {
	if len(sources) == 0 {
		return ErrNoSources
	}
	if limit := s.cfg.Limits.MaxSources; limit > 0 && len(sources) > limit {
		return fmt.Errorf("%w: %d > %d", ErrTooManySources, len(sources), limit)
	}
	return nil
}

func (s *Service) checkPages(doc *semantic.Document) error {
	if limit := s.cfg.Limits.MaxPages; limit > 0 && doc.PageCount() > limit {
		return fmt.Errorf("%w: %d > %d", ErrTooManyPages, doc.PageCount(), limit)
	}
	return nil
}

func (s *Service) parsePasswords(m string) (task.PasswordMap, error) {
	var opts []task.PasswordMapOption
	if s.cfg.Passwords.Strict {
		opts = append(opts, task.WithStrict())
	}
	return task.ParsePasswordMap(m, opts...)
}

func (s *Service) checkOutputPassword(pw string) error {
	if pw == "" || !s.cfg.Passwords.EnforcePolicy {
		return nil
	}
	return task.ValidatePassword(pw)
}

func (s *Service) watermarkText(text string) string {
	if text != "" {
		return text
	}
	if s.cfg.Watermark.Always {
		return s.cfg.Watermark.Text
	}
	return ""
}

func (s *Service) parserConfig(password string) parser.Config {
	return parser.Config{
		Password:            password,
		MaxSourceBytes:      s.cfg.Limits.MaxSourceBytes,
		MaxDecompressedSize: s.cfg.Limits.MaxDecompressedSize,
	}
}

// openAll opens every source concurrently. Each goroutine writes only its
// own slot.
func (s *Service) openAll(ctx context.Context, paths []string, passwords task.PasswordMap) ([]*semantic.Document, error) {
	docs := make([]*semantic.Document, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			doc, err := parser.OpenFile(gctx, path, s.parserConfig(passwords.For(i)))
			if err != nil {
				return fmt.Errorf("source %d: %w", i, err)
			}
			s.logger.Debug("source opened",
				observability.Int("index", i),
				observability.String("path", path),
				observability.Int("pages", doc.PageCount()),
			)
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

func pageCounts(docs []*semantic.Document) []int {
	counts := make([]int, len(docs))
	for i, d := range docs {
		counts[i] = d.PageCount()
	}
	return counts
}

// byteCounter totals the bytes of written objects.
type byteCounter struct{ n int64 }

func (c *byteCounter) BeforeWrite(context.Context, raw.ObjectRef, raw.Object) error { return nil }
func (c *byteCounter) AfterWrite(_ context.Context, _ raw.ObjectRef, n int64) error {
	c.n += n
	return nil
}

func (s *Service) write(ctx context.Context, doc *semantic.Document, path, password string) (int64, error) {
	counter := &byteCounter{}
	w := (&writer.WriterBuilder{}).WithInterceptor(counter).Build()
	cfg := writer.Config{
		Compress:         s.cfg.Writer.Compress,
		CompressionLevel: s.cfg.Writer.CompressionLevel,
		Deterministic:    s.cfg.Writer.Deterministic,
	}
	if password != "" {
		cfg.Encryption = &writer.Encryption{UserPassword: password, Permissions: security.AllPermissions()}
	}
	if err := writer.WriteFile(ctx, w, doc, path, cfg); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	return counter.n, nil
}

// Split writes one file per range into dir, named after the source.
func (s *Service) Split(ctx context.Context, source, password, ranges, dir string) ([]string, error) {
	seqs, err := task.Split(0, ranges)
	if err != nil {
		return nil, err
	}
	docs, err := s.openAll(ctx, []string{source}, task.PasswordMap{"0": password})
	if err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var outputs []string
	for i, seq := range seqs {
		out, err := builder.Assemble(seq, docs)
		if err != nil {
			return nil, fmt.Errorf("range %d: %w", i+1, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("%s-%d.pdf", base, i+1))
		if _, err := s.write(ctx, out, path, ""); err != nil {
			return nil, err
		}
		outputs = append(outputs, path)
	}
	s.logger.Info("split finished", observability.String("source", source), observability.Int("files", len(outputs)))
	return outputs, nil
}

// SignRequest stamps an image onto one page.
type SignRequest struct {
	Source   string
	Password string
	Image    string
	Page     int
	// At is the image's lower left corner in inches.
	At     geometry.Point
	Output string
}

// Sign stamps req.Image on req.Page and writes the whole document.
func (s *Service) Sign(ctx context.Context, req SignRequest) (*Result, error) {
	scope := s.newScope()
	defer scope.Close()

	docs, err := s.openAll(ctx, []string{req.Source}, task.PasswordMap{"0": req.Password})
	if err != nil {
		return nil, err
	}
	out, err := builder.Assemble(task.Merge(pageCounts(docs)), docs)
	if err != nil {
		return nil, err
	}
	err = s.stage(ctx, "stamp", func(ctx context.Context) error {
		return overlay.StampPage(ctx, scope, out, req.Page, req.Image, req.At)
	})
	if err != nil {
		return nil, err
	}
	n, err := s.write(ctx, out, req.Output, "")
	if err != nil {
		return nil, err
	}
	return &Result{Output: req.Output, Pages: out.PageCount(), Sources: 1, Bytes: n}, nil
}

// PageInfo describes one page as displayed.
type PageInfo struct {
	Number int
	Box    geometry.PageBox
	Rotate int
}

// Inspect reports the displayed geometry of every page of path.
func (s *Service) Inspect(ctx context.Context, path, password string) ([]PageInfo, error) {
	doc, err := parser.OpenFile(ctx, path, s.parserConfig(password))
	if err != nil {
		return nil, err
	}
	infos := make([]PageInfo, len(doc.Pages))
	for i, p := range doc.Pages {
		infos[i] = PageInfo{Number: i + 1, Box: geometry.Resolve(p), Rotate: p.Rotate}
	}
	return infos, nil
}
