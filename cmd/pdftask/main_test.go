package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wudi/pdftask/builder"
	"github.com/wudi/pdftask/organize"
	"github.com/wudi/pdftask/parser"
	"github.com/wudi/pdftask/writer"
)

func writeSource(t *testing.T, dir string, pages int) string {
	t.Helper()
	b := builder.NewBuilder()
	for i := 0; i < pages; i++ {
		b = b.NewPage(612, 792).DrawText(fmt.Sprintf("page %d", i+1), 72, 72, builder.TextOptions{}).Finish()
	}
	doc, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	path := filepath.Join(dir, "in.pdf")
	if err := writer.WriteFile(context.Background(), writer.NewWriter(), doc, path, writer.Config{Compress: true}); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

// testConfig writes a configuration that keeps artifacts in a fresh
// directory and returns its path and that directory.
func testConfig(t *testing.T) (string, string) {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(t.TempDir(), "pdftask.yaml")
	data := fmt.Sprintf("temp:\n  dir: %s\nlogging:\n  level: error\n", tmp)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path, tmp
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	cfgPath, _ := testConfig(t)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"--config", cfgPath}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func pageCount(t *testing.T, path string) int {
	t.Helper()
	doc, err := parser.OpenFile(context.Background(), path, parser.Config{})
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	return doc.PageCount()
}

func TestOrganizeCommand(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, 3)
	out := filepath.Join(dir, "out.pdf")

	code, stdout, stderr := execute(t, "organize", "--task", "0:3-1#90,0:1-2#0", "-o", out, src)
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "wrote "+out+" (3 pages") {
		t.Fatalf("unexpected output %q", stdout)
	}
	if n := pageCount(t, out); n != 3 {
		t.Fatalf("expected 3 pages, got %d", n)
	}
}

func TestPresetCommands(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, 4)
	cases := []struct {
		name  string
		args  []string
		pages int
	}{
		{"merge", []string{"merge", src, src}, 8},
		{"sort", []string{"sort", "--pages", "4,1-2", src}, 3},
		{"delete", []string{"delete", "--pages", "2,3", src}, 2},
		{"rotate", []string{"rotate", "--angle", "180", src}, 4},
		{"watermark", []string{"watermark", "--text", "DRAFT", src}, 4},
		{"remove-images", []string{"remove-images", src}, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), tc.name+".pdf")
			code, _, stderr := execute(t, append(tc.args, "-o", out)...)
			if code != 0 {
				t.Fatalf("exit code %d: %s", code, stderr)
			}
			if n := pageCount(t, out); n != tc.pages {
				t.Fatalf("expected %d pages, got %d", tc.pages, n)
			}
		})
	}
}

func TestSplitCommand(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, 3)
	outDir := filepath.Join(dir, "parts")

	code, stdout, stderr := execute(t, "split", "--ranges", "1,2-3", "--out-dir", outDir, src)
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr)
	}
	lines := strings.Fields(stdout)
	want := []string{filepath.Join(outDir, "in-1.pdf"), filepath.Join(outDir, "in-2.pdf")}
	if len(lines) != 2 || lines[0] != want[0] || lines[1] != want[1] {
		t.Fatalf("unexpected split output %q", stdout)
	}
}

func TestSignCommand(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, 2)
	img := filepath.Join(dir, "sig.png")
	f, err := os.Create(img)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, image.NewNRGBA(image.Rect(0, 0, 10, 10))); err != nil {
		t.Fatal(err)
	}
	f.Close()

	out := filepath.Join(dir, "signed.pdf")
	code, _, stderr := execute(t, "sign", "--image", img, "--page", "2", "--x", "1", "--y", "2", "-o", out, src)
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr)
	}
	if n := pageCount(t, out); n != 2 {
		t.Fatalf("expected 2 pages, got %d", n)
	}
}

func TestExtractImagesCommand(t *testing.T) {
	dir := t.TempDir()
	doc, err := builder.NewBuilder().
		NewPage(200, 200).DrawImage(builder.FromImage(image.NewGray(image.Rect(0, 0, 4, 4))), 0, 0, 40, 40).Finish().
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	src := filepath.Join(dir, "pics.pdf")
	if err := writer.WriteFile(context.Background(), writer.NewWriter(), doc, src, writer.Config{}); err != nil {
		t.Fatalf("write source: %v", err)
	}

	out := filepath.Join(dir, "pics.zip")
	code, stdout, stderr := execute(t, "extract-images", "-o", out, src)
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "1 images, 0 skipped") {
		t.Fatalf("unexpected output %q", stdout)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("archive missing: %v", err)
	}
}

func TestInfoCommand(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, 1)

	code, stdout, stderr := execute(t, "info", src)
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "PAGE") || !strings.Contains(stdout, "8.50") || !strings.Contains(stdout, "11.00") {
		t.Fatalf("unexpected info output:\n%s", stdout)
	}
}

func TestExitCodes(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, 1)
	out := filepath.Join(dir, "out.pdf")

	code, _, stderr := execute(t, "organize", "--task", "0:1-1#45", "-o", out, src)
	if code != organize.CategorySyntax.ExitCode() {
		t.Fatalf("expected syntax exit code, got %d: %s", code, stderr)
	}
	if !strings.Contains(stderr, "syntax error") {
		t.Fatalf("unexpected stderr %q", stderr)
	}

	code, _, _ = execute(t, "organize", "--task", "0:2-1#0", "-o", out, src)
	if code != organize.CategoryBuild.ExitCode() {
		t.Fatalf("expected build exit code, got %d", code)
	}

	code, _, _ = execute(t, "rotate", "--angle", "45", "-o", out, src)
	if code != exitUsage {
		t.Fatalf("expected usage exit code, got %d", code)
	}

	code, _, _ = execute(t, "info", "--no-such-flag", src)
	if code != exitUsage {
		t.Fatalf("expected usage exit code for unknown flag, got %d", code)
	}

	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("failed runs must not leave an output file")
	}
}

func TestWatermarkLeavesNoArtifacts(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, 2)
	cfgPath, tmp := testConfig(t)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--config", cfgPath, "watermark", "-o", filepath.Join(dir, "out.pdf"), src}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr.String())
	}
	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty temp dir, found %d entries", len(entries))
	}
}
