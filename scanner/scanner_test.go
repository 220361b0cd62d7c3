package scanner

import (
	"errors"
	"io"
	"testing"

	"github.com/wudi/pdftask/ir/raw"
)

func nextToken(t *testing.T, s *Scanner) Token {
	t.Helper()
	tok, err := s.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tok
}

func TestScanner_BasicTokens(t *testing.T) {
	s := New([]byte("%PDF-1.7\n1 0 obj\n<< /Name /Value /Nums [1 2.5 -3] /Flag true /Null null >>\nendobj"), Config{})

	tok := nextToken(t, s)
	if tok.Type != TokenNumber || !tok.IsInt || tok.Int != 1 {
		t.Fatalf("expected object number 1, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenNumber || tok.Int != 0 {
		t.Fatalf("expected generation number 0, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenKeyword || tok.Str != "obj" {
		t.Fatalf("expected obj keyword, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenDict {
		t.Fatalf("expected dict start, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Name" {
		t.Fatalf("expected Name key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Value" {
		t.Fatalf("expected Value name, got %+v", tok)
	}
	nextToken(t, s) // /Nums
	if tok = nextToken(t, s); tok.Type != TokenArray {
		t.Fatalf("expected array start, got %+v", tok)
	}
	if tok = nextToken(t, s); !tok.IsInt || tok.Int != 1 {
		t.Fatalf("expected 1, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.IsInt || tok.Float != 2.5 {
		t.Fatalf("expected 2.5, got %+v", tok)
	}
	if tok = nextToken(t, s); !tok.IsInt || tok.Int != -3 {
		t.Fatalf("expected -3, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenKeyword || tok.Str != "]" {
		t.Fatalf("expected array end, got %+v", tok)
	}
	nextToken(t, s) // /Flag
	if tok = nextToken(t, s); tok.Type != TokenBoolean || !tok.Bool {
		t.Fatalf("expected true, got %+v", tok)
	}
	nextToken(t, s) // /Null
	if tok = nextToken(t, s); tok.Type != TokenNull {
		t.Fatalf("expected null, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Str != ">>" {
		t.Fatalf("expected dict end, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Str != "endobj" {
		t.Fatalf("expected endobj, got %+v", tok)
	}
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestScanner_References(t *testing.T) {
	s := New([]byte("[12 0 R 5 7]"), Config{})
	obj, err := s.ReadObject()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	arr := obj.(*raw.ArrayObj)
	if arr.Len() != 3 {
		t.Fatalf("expected 3 items, got %d", arr.Len())
	}
	if ref, ok := arr.Items[0].(raw.RefObj); !ok || ref.R != (raw.ObjectRef{Num: 12}) {
		t.Fatalf("expected 12 0 R, got %#v", arr.Items[0])
	}
	if n := arr.Items[2].(raw.NumberObj); n.Int() != 7 {
		t.Fatalf("expected trailing 7, got %#v", n)
	}
}

func TestScanner_Strings(t *testing.T) {
	s := New([]byte(`(a\(b\)c\n\101 (nested)) <48 65 6C6C 6>`), Config{})
	tok := nextToken(t, s)
	if got := string(tok.Bytes); got != "a(b)c\nA (nested)" {
		t.Fatalf("unexpected literal %q", got)
	}
	tok = nextToken(t, s)
	if !tok.Hex || string(tok.Bytes) != "Hell`" {
		t.Fatalf("unexpected hex %q", tok.Bytes)
	}
}

func TestScanner_NameEscapes(t *testing.T) {
	s := New([]byte("/A#20B/C"), Config{})
	if tok := nextToken(t, s); tok.Str != "A B" {
		t.Fatalf("expected decoded name, got %q", tok.Str)
	}
	if tok := nextToken(t, s); tok.Str != "C" {
		t.Fatalf("expected C, got %q", tok.Str)
	}
}

func TestScanner_UnterminatedString(t *testing.T) {
	s := New([]byte("(abc"), Config{})
	if _, err := s.Next(); !errors.Is(err, ErrSyntax) {
		t.Fatalf("expected syntax error, got %v", err)
	}
}

func TestScanner_DepthLimit(t *testing.T) {
	s := New([]byte("[[[[1]]]]"), Config{MaxDepth: 3})
	if _, err := s.ReadObject(); !errors.Is(err, ErrSyntax) {
		t.Fatalf("expected depth error, got %v", err)
	}
}

func TestReadIndirectStreamWithDirectLength(t *testing.T) {
	s := New([]byte("4 0 obj\n<< /Length 5 >>\nstream\nhello\nendstream\nendobj\n"), Config{})
	ref, obj, err := s.ReadIndirect(nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if ref.Num != 4 {
		t.Fatalf("unexpected ref %v", ref)
	}
	st := obj.(*raw.StreamObj)
	if string(st.Data) != "hello" {
		t.Fatalf("unexpected data %q", st.Data)
	}
}

func TestReadIndirectStreamWithIndirectLength(t *testing.T) {
	s := New([]byte("4 0 obj\n<< /Length 9 0 R >>\nstream\r\nab\ncd\nendstream\nendobj\n"), Config{})
	_, obj, err := s.ReadIndirect(func(o raw.Object) (int64, bool) { return 5, true })
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := string(obj.(*raw.StreamObj).Data); got != "ab\ncd" {
		t.Fatalf("unexpected data %q", got)
	}
}

func TestReadIndirectStreamWrongLengthFallsBack(t *testing.T) {
	s := New([]byte("4 0 obj\n<< /Length 99 >>\nstream\nhello\nendstream\nendobj\n"), Config{})
	_, obj, err := s.ReadIndirect(nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := string(obj.(*raw.StreamObj).Data); got != "hello" {
		t.Fatalf("unexpected data %q", got)
	}
}

func TestDictDropsNullValues(t *testing.T) {
	s := New([]byte("<< /A null /B 1 >>"), Config{})
	obj, err := s.ReadObject()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	d := obj.(*raw.DictObj)
	if _, ok := d.Get("A"); ok {
		t.Fatalf("null entry should be dropped")
	}
	if v, _ := d.Int("B"); v != 1 {
		t.Fatalf("expected B=1")
	}
}
