package scanner

import (
	"bytes"
	"errors"
	"io"

	"github.com/wudi/pdftask/ir/raw"
)

// LengthResolver resolves an indirect /Length value of a stream.
type LengthResolver func(raw.Object) (int64, bool)

// ReadObject parses one direct object at the current position.
func (s *Scanner) ReadObject() (raw.Object, error) {
	tok, err := s.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, s.syntaxErr("unexpected end of data")
		}
		return nil, err
	}
	return s.objectFrom(tok)
}

func (s *Scanner) objectFrom(tok Token) (raw.Object, error) {
	switch tok.Type {
	case TokenDict:
		return s.parseDict()
	case TokenArray:
		return s.parseArray()
	case TokenName:
		return raw.NameLiteral(tok.Str), nil
	case TokenString:
		return raw.StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case TokenNumber:
		if tok.IsInt {
			return raw.NumberInt(tok.Int), nil
		}
		return raw.NumberFloat(tok.Float), nil
	case TokenBoolean:
		return raw.Bool(tok.Bool), nil
	case TokenNull:
		return raw.NullObj{}, nil
	case TokenRef:
		return raw.RefObj{R: tok.Ref}, nil
	}
	return nil, s.syntaxErr("unexpected keyword %q", tok.Str)
}

func (s *Scanner) enter() error {
	s.depth++
	if s.depth > s.cfg.MaxDepth {
		s.depth--
		return s.syntaxErr("nesting deeper than %d", s.cfg.MaxDepth)
	}
	return nil
}

func (s *Scanner) parseArray() (raw.Object, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	defer func() { s.depth-- }()
	arr := raw.NewArray()
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, s.syntaxErr("unterminated array")
		}
		if tok.Type == TokenKeyword && tok.Str == "]" {
			return arr, nil
		}
		obj, err := s.objectFrom(tok)
		if err != nil {
			return nil, err
		}
		arr.Append(obj)
	}
}

func (s *Scanner) parseDict() (raw.Object, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	defer func() { s.depth-- }()
	dict := raw.Dict()
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, s.syntaxErr("unterminated dictionary")
		}
		if tok.Type == TokenKeyword && tok.Str == ">>" {
			return dict, nil
		}
		if tok.Type != TokenName {
			return nil, s.syntaxErr("dictionary key must be a name")
		}
		val, err := s.ReadObject()
		if err != nil {
			return nil, err
		}
		// a null value is equivalent to an absent key
		if _, isNull := val.(raw.NullObj); isNull {
			continue
		}
		dict.Set(tok.Str, val)
	}
}

// ReadIndirect parses "num gen obj ... endobj" at the current position.
// Streams are returned with their payload still encoded.
func (s *Scanner) ReadIndirect(length LengthResolver) (raw.ObjectRef, raw.Object, error) {
	num, err := s.Next()
	if err != nil || num.Type != TokenNumber || !num.IsInt {
		return raw.ObjectRef{}, nil, s.syntaxErr("expected object number")
	}
	gen, err := s.Next()
	if err != nil || gen.Type != TokenNumber || !gen.IsInt {
		return raw.ObjectRef{}, nil, s.syntaxErr("expected generation number")
	}
	kw, err := s.Next()
	if err != nil || kw.Type != TokenKeyword || kw.Str != "obj" {
		return raw.ObjectRef{}, nil, s.syntaxErr("expected obj keyword")
	}
	ref := raw.ObjectRef{Num: int(num.Int), Gen: int(gen.Int)}
	obj, err := s.ReadObject()
	if err != nil {
		return ref, nil, err
	}
	save := s.pos
	next, err := s.Next()
	if err == nil && next.Type == TokenKeyword && next.Str == "stream" {
		dict, ok := obj.(*raw.DictObj)
		if !ok {
			return ref, nil, s.syntaxErr("stream without dictionary")
		}
		data, err := s.readStreamData(dict, length)
		if err != nil {
			return ref, nil, err
		}
		return ref, raw.NewStream(dict, data), nil
	}
	// endobj is optional in damaged files
	if err != nil || next.Type != TokenKeyword || next.Str != "endobj" {
		s.pos = save
	}
	return ref, obj, nil
}

var (
	endstream = []byte("endstream")
	endobj    = []byte("endobj")
)

func (s *Scanner) readStreamData(dict *raw.DictObj, length LengthResolver) ([]byte, error) {
	// 'stream' is followed by CRLF or LF; a lone CR is tolerated
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
		s.pos++
	}
	start := s.pos
	if n, ok := declaredLength(dict, length); ok && n >= 0 && start+n <= int64(len(s.data)) {
		end := start + n
		probe := end
		for probe < int64(len(s.data)) && isWhitespace(s.data[probe]) {
			probe++
		}
		if bytes.HasPrefix(s.data[probe:], endstream) {
			s.pos = probe + int64(len(endstream))
			s.skipEndObj()
			return s.data[start:end], nil
		}
	}
	idx := bytes.Index(s.data[start:], endstream)
	if idx < 0 {
		return nil, s.syntaxErr("endstream not found")
	}
	end := start + int64(idx)
	s.pos = end + int64(len(endstream))
	if end > start && s.data[end-1] == '\n' {
		end--
	}
	if end > start && s.data[end-1] == '\r' {
		end--
	}
	s.skipEndObj()
	return s.data[start:end], nil
}

func (s *Scanner) skipEndObj() {
	save := s.pos
	s.skipWSAndComments()
	if bytes.HasPrefix(s.data[s.pos:], endobj) {
		s.pos += int64(len(endobj))
		return
	}
	s.pos = save
}

func declaredLength(dict *raw.DictObj, length LengthResolver) (int64, bool) {
	v, ok := dict.Get("Length")
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case raw.NumberObj:
		return n.Int(), true
	case raw.RefObj:
		if length != nil {
			return length(n)
		}
	}
	return 0, false
}

// ReadContent reads one element of a content stream: either an operand
// object or an operator keyword.
func (s *Scanner) ReadContent() (raw.Object, string, error) {
	tok, err := s.Next()
	if err != nil {
		return nil, "", err
	}
	if tok.Type == TokenKeyword {
		return nil, tok.Str, nil
	}
	o, err := s.objectFrom(tok)
	return o, "", err
}
