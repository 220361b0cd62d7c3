package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdftask/ir/raw"
	"github.com/wudi/pdftask/ir/semantic"
)

// classicPDF lays out objects 1..n in order and appends a classic xref table.
func classicPDF(objects ...string) []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, body := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xrefAt := buf.Len()
	fmt.Fprintf(buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%EOF\n", len(objects)+1, xrefAt)
	return buf.Bytes()
}

func TestOpenBytesInheritsPageAttributes(t *testing.T) {
	data := classicPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 /MediaBox [0 0 612 792] /Rotate 90 /Resources << >> >>",
		"<< /Type /Page /Parent 2 0 R >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 100] /CropBox [10 10 110 60] /Rotate -90 /UserUnit 2 >>",
	)
	doc, err := OpenBytes(context.Background(), data, Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if doc.PageCount() != 2 {
		t.Fatalf("expected 2 pages, got %d", doc.PageCount())
	}
	if doc.Version != "1.4" {
		t.Fatalf("unexpected version %q", doc.Version)
	}

	first := doc.Pages[0]
	if diff := cmp.Diff(&semantic.Rectangle{URX: 612, URY: 792}, first.MediaBox); diff != "" {
		t.Fatalf("inherited MediaBox mismatch (-want +got):\n%s", diff)
	}
	if first.CropBox != nil || first.Rotate != 90 || first.UserUnit != 0 {
		t.Fatalf("unexpected first page attributes: %+v", first)
	}
	if _, ok := first.Dict.Get("Resources"); !ok {
		t.Fatalf("inherited /Resources missing")
	}
	if first.Ref != (raw.ObjectRef{Num: 3}) {
		t.Fatalf("unexpected page ref %v", first.Ref)
	}

	second := doc.Pages[1]
	if second.Rotate != 270 || second.UserUnit != 2 {
		t.Fatalf("unexpected second page attributes: rotate=%d unit=%v", second.Rotate, second.UserUnit)
	}
	if diff := cmp.Diff(&semantic.Rectangle{LLX: 10, LLY: 10, URX: 110, URY: 60}, second.CropBox); diff != "" {
		t.Fatalf("CropBox mismatch:\n%s", diff)
	}
}

func TestOpenBytesSkipsPageTreeCycles(t *testing.T) {
	data := classicPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R 2 0 R 3 0 R] /Count 1 >>",
		"<< /Type /Page /MediaBox [0 0 10 10] >>",
	)
	doc, err := OpenBytes(context.Background(), data, Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if doc.PageCount() != 1 {
		t.Fatalf("expected cycle and repeat to be skipped, got %d pages", doc.PageCount())
	}
}

func TestOpenBytesReadsObjectStreams(t *testing.T) {
	header := "3 0 4 60 "
	page := "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 300 400] >>"
	body := page + "\n"
	// object 4 is a plain dictionary at offset 60 inside the body
	for len(body) < 60 {
		body += " "
	}
	body += "<< /Producer (objstm) >>"
	stmData := header + body

	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.5\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	off5 := buf.Len()
	fmt.Fprintf(buf, "5 0 obj\n<< /Type /ObjStm /N 2 /First %d /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(header), len(stmData), stmData)
	off6 := buf.Len()
	rows := [][]byte{
		{0, 0, 0, 0},
		{1, byte(off1 >> 8), byte(off1), 0},
		{1, byte(off2 >> 8), byte(off2), 0},
		{2, 0, 5, 0},
		{2, 0, 5, 1},
		{1, byte(off5 >> 8), byte(off5), 0},
		{1, byte(off6 >> 8), byte(off6), 0},
	}
	var xs []byte
	for _, r := range rows {
		xs = append(xs, r...)
	}
	fmt.Fprintf(buf, "6 0 obj\n<< /Type /XRef /Size 7 /W [1 2 1] /Root 1 0 R /Info 4 0 R /Length %d >>\nstream\n", len(xs))
	buf.Write(xs)
	fmt.Fprintf(buf, "\nendstream\nendobj\nstartxref\n%d\n%%EOF\n", off6)

	doc, err := OpenBytes(context.Background(), buf.Bytes(), Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if doc.PageCount() != 1 {
		t.Fatalf("expected 1 page, got %d", doc.PageCount())
	}
	if mb := doc.Pages[0].MediaBox; mb == nil || mb.URX != 300 || mb.URY != 400 {
		t.Fatalf("page from object stream has wrong MediaBox: %+v", mb)
	}
	if doc.Info == nil {
		t.Fatalf("info dictionary from object stream missing")
	}
	if p, ok := doc.Info.Get("Producer"); !ok || string(p.(raw.StringObj).Bytes) != "objstm" {
		t.Fatalf("unexpected producer %v", p)
	}
}

func TestOpenRejectsOversizedSource(t *testing.T) {
	data := classicPDF("<< /Type /Catalog /Pages 2 0 R >>", "<< /Type /Pages /Kids [] /Count 0 >>")
	_, err := Open(context.Background(), bytes.NewReader(data), int64(len(data)), Config{MaxSourceBytes: 10})
	if !errors.Is(err, ErrSourceTooLarge) {
		t.Fatalf("expected ErrSourceTooLarge, got %v", err)
	}
}

func TestOpenBytesRequiresPageTree(t *testing.T) {
	data := classicPDF("<< /Type /Catalog >>")
	_, err := OpenBytes(context.Background(), data, Config{})
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestRectangleFromNormalisesCorners(t *testing.T) {
	r := RectangleFrom(nil, raw.Numbers(100, 200, 0, 50))
	want := &semantic.Rectangle{LLX: 0, LLY: 50, URX: 100, URY: 200}
	if diff := cmp.Diff(want, r); diff != "" {
		t.Fatalf("unexpected rectangle:\n%s", diff)
	}
	if RectangleFrom(nil, raw.Numbers(1, 2, 3)) != nil {
		t.Fatalf("three-element array should not be a rectangle")
	}
}
