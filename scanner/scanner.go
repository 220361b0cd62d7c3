package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/wudi/pdftask/ir/raw"
)

type TokenType int

const (
	TokenDict    TokenType = iota // '<<'
	TokenArray                    // '['
	TokenName                     // '/Name'
	TokenString                   // literal or hex string
	TokenNumber                   // numeric value
	TokenBoolean                  // true/false
	TokenNull                     // null
	TokenRef                      // indirect ref '5 0 R'
	TokenKeyword                  // other keywords (obj, endobj, stream, >>, ], etc.)
)

// Token is one lexical element. Only the fields matching Type are set.
type Token struct {
	Type  TokenType
	Str   string // names and keywords
	Bytes []byte // string payload
	Hex   bool
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Ref   raw.ObjectRef
	Pos   int64
}

type Config struct {
	MaxStringLength int64
	MaxDepth        int
}

// ErrSyntax is wrapped by every malformed-input error.
var ErrSyntax = errors.New("pdf syntax error")

// Scanner tokenizes an in-memory PDF byte slice.
type Scanner struct {
	data  []byte
	pos   int64
	cfg   Config
	depth int
}

// New returns a scanner positioned at the start of data.
func New(data []byte, cfg Config) *Scanner {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 256
	}
	return &Scanner{data: data, cfg: cfg}
}

func (s *Scanner) Position() int64 { return s.pos }
func (s *Scanner) Data() []byte    { return s.data }

func (s *Scanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return fmt.Errorf("seek %d: out of range", offset)
	}
	s.pos = offset
	return nil
}

func (s *Scanner) syntaxErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w at offset %d: %s", ErrSyntax, s.pos, fmt.Sprintf(format, args...))
}

// Next returns the next token or io.EOF.
func (s *Scanner) Next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peekAhead(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDict, Str: "<<", Pos: start}, nil
		}
		return s.scanHexString()
	case '>':
		if s.peekAhead(1) == '>' {
			s.pos += 2
			return Token{Type: TokenKeyword, Str: ">>", Pos: start}, nil
		}
		s.pos++
		return Token{Type: TokenKeyword, Str: ">", Pos: start}, nil
	case '[':
		s.pos++
		return Token{Type: TokenArray, Str: "[", Pos: start}, nil
	case ']':
		s.pos++
		return Token{Type: TokenKeyword, Str: "]", Pos: start}, nil
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	case '{', '}':
		s.pos++
		return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
	}
	if isDigitStart(c) {
		return s.scanNumberOrRef()
	}
	if isRegular(c) {
		return s.scanKeyword()
	}
	s.pos++
	return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
}

func (s *Scanner) skipWSAndComments() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && !isEOL(s.data[s.pos]) {
				s.pos++
			}
			continue
		}
		return
	}
}

func (s *Scanner) peekAhead(n int64) byte {
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *Scanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // skip '/'
	var out bytes.Buffer
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) && isHex(s.data[s.pos+1]) && isHex(s.data[s.pos+2]) {
			out.WriteByte(fromHex(s.data[s.pos+1])<<4 | fromHex(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		out.WriteByte(c)
		s.pos++
	}
	return Token{Type: TokenName, Str: out.String(), Pos: start}, nil
}

func (s *Scanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // skip '('
	var buf bytes.Buffer
	depth := 1
	for depth > 0 {
		if s.pos >= int64(len(s.data)) {
			return Token{}, s.syntaxErr("unterminated literal string")
		}
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= int64(len(s.data)) {
				return Token{}, s.syntaxErr("unterminated literal string")
			}
			esc := s.data[s.pos]
			s.pos++
			switch {
			case esc == '\r':
				if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case esc == '\n':
			case esc >= '0' && esc <= '7':
				val := int(esc - '0')
				for k := 0; k < 2 && s.pos < int64(len(s.data)); k++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = val<<3 + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
			default:
				buf.WriteByte(translateEscape(esc))
			}
		case '(':
			depth++
			buf.WriteByte(c)
		case ')':
			depth--
			if depth > 0 {
				buf.WriteByte(c)
			}
		default:
			buf.WriteByte(c)
		}
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, s.syntaxErr("literal string too long")
		}
	}
	return Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start}, nil
}

func (s *Scanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // skip '<'
	var out []byte
	var hi byte
	half := false
	for {
		if s.pos >= int64(len(s.data)) {
			return Token{}, s.syntaxErr("unterminated hex string")
		}
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			break
		}
		if isWhitespace(c) {
			continue
		}
		if !isHex(c) {
			return Token{}, s.syntaxErr("invalid hex digit %q", c)
		}
		if half {
			out = append(out, hi<<4|fromHex(c))
		} else {
			hi = fromHex(c)
		}
		half = !half
	}
	// odd number of nibbles: the last one is padded with 0
	if half {
		out = append(out, hi<<4)
	}
	if s.cfg.MaxStringLength > 0 && int64(len(out)) > s.cfg.MaxStringLength {
		return Token{}, s.syntaxErr("hex string too long")
	}
	return Token{Type: TokenString, Bytes: out, Hex: true, Pos: start}, nil
}

func (s *Scanner) scanKeyword() (Token, error) {
	start := s.pos
	for s.pos < int64(len(s.data)) && isRegular(s.data[s.pos]) {
		s.pos++
	}
	kw := string(s.data[start:s.pos])
	switch kw {
	case "true", "false":
		return Token{Type: TokenBoolean, Bool: kw == "true", Str: kw, Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Str: kw, Pos: start}, nil
	}
	return Token{Type: TokenKeyword, Str: kw, Pos: start}, nil
}

func (s *Scanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	tok, err := s.scanNumber()
	if err != nil {
		return Token{}, err
	}
	if !tok.IsInt || tok.Int < 0 || s.data[start] == '+' || s.data[start] == '-' {
		return tok, nil
	}
	// "num gen R" lookahead
	save := s.pos
	s.skipWSAndComments()
	if s.pos < int64(len(s.data)) && s.data[s.pos] >= '0' && s.data[s.pos] <= '9' {
		gen, err := s.scanNumber()
		if err == nil && gen.IsInt {
			s.skipWSAndComments()
			if s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' && (s.pos+1 == int64(len(s.data)) || !isRegular(s.data[s.pos+1])) {
				s.pos++
				return Token{Type: TokenRef, Ref: raw.ObjectRef{Num: int(tok.Int), Gen: int(gen.Int)}, Pos: start}, nil
			}
		}
	}
	s.pos = save
	return tok, nil
}

func (s *Scanner) scanNumber() (Token, error) {
	start := s.pos
	if c := s.data[s.pos]; c == '+' || c == '-' {
		s.pos++
	}
	dot := false
	digits := 0
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if c == '.' && !dot {
			dot = true
			s.pos++
			continue
		}
		if c < '0' || c > '9' {
			break
		}
		digits++
		s.pos++
	}
	lit := string(s.data[start:s.pos])
	if digits == 0 {
		// a lone sign or dot reads as zero, as most readers do
		return Token{Type: TokenNumber, IsInt: true, Pos: start}, nil
	}
	if !dot {
		i, err := strconv.ParseInt(lit, 10, 64)
		if err == nil {
			return Token{Type: TokenNumber, Int: i, IsInt: true, Pos: start}, nil
		}
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return Token{}, s.syntaxErr("invalid number %q", lit)
	}
	return Token{Type: TokenNumber, Float: f, Pos: start}, nil
}

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}
func isEOL(c byte) bool { return c == '\r' || c == '\n' }
func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
func isRegular(c byte) bool    { return !isWhitespace(c) && !isDelimiter(c) }
func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }
func isHex(c byte) bool        { return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') }

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		return c
	}
}
