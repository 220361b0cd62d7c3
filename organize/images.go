package organize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/wudi/pdftask/filters"
	"github.com/wudi/pdftask/images"
	"github.com/wudi/pdftask/observability"
	"github.com/wudi/pdftask/task"
)

// ExtractResult summarizes an image export.
type ExtractResult struct {
	Output  string
	Images  int
	Skipped int
}

// ExtractImages writes every image the pages of source draw into the zip
// archive output. Entries are named <source>-page<N>-img<M><ext>, numbered
// from 1 per page. Images that cannot be exported are logged and left out.
func (s *Service) ExtractImages(ctx context.Context, source, password, output string) (*ExtractResult, error) {
	docs, err := s.openAll(ctx, []string{source}, task.PasswordMap{"0": password})
	if err != nil {
		return nil, err
	}
	pipeline := filters.Default(filters.Limits{MaxDecompressedSize: s.cfg.Limits.MaxDecompressedSize})
	var assets []images.Asset
	var skipped []images.Skipped
	err = s.stage(ctx, "extract", func(ctx context.Context) error {
		var err error
		assets, skipped, err = images.Extract(ctx, docs[0], pipeline)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, sk := range skipped {
		s.logger.Warn("image skipped",
			observability.Int("page", sk.Page),
			observability.String("name", sk.Name),
			observability.Error("error", sk.Err),
		)
	}

	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	err = s.stage(ctx, "write", func(context.Context) error {
		return writeZip(output, base, assets)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("images extracted",
		observability.String("output", output),
		observability.Int("images", len(assets)),
		observability.Int("skipped", len(skipped)),
	)
	return &ExtractResult{Output: output, Images: len(assets), Skipped: len(skipped)}, nil
}

// writeZip stages the archive next to path and renames it into place.
func writeZip(path, base string, assets []images.Asset) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pdftask-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	zw := zip.NewWriter(tmp)
	page, seq := 0, 0
	for _, a := range assets {
		if a.Page != page {
			page, seq = a.Page, 0
		}
		seq++
		w, err := zw.Create(fmt.Sprintf("%s-page%d-img%d%s", base, a.Page, seq, a.Ext))
		if err != nil {
			tmp.Close()
			return err
		}
		if _, err := w.Write(a.Data); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
