package raw

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Serialize renders o in PDF syntax. Dictionary keys are written in sorted
// order so output is reproducible.
func Serialize(o Object) []byte {
	var b bytes.Buffer
	AppendObject(&b, o)
	return b.Bytes()
}

// AppendObject writes o to b in PDF syntax.
func AppendObject(b *bytes.Buffer, o Object) {
	switch v := o.(type) {
	case NameObj:
		b.WriteByte('/')
		b.WriteString(EncodeName(v.Val))
	case NumberObj:
		if v.IsInt {
			b.WriteString(strconv.FormatInt(v.I, 10))
			return
		}
		b.WriteString(FormatNumber(v.F))
	case BoolObj:
		if v.V {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case StringObj:
		if v.Hex {
			b.WriteByte('<')
			b.WriteString(strings.ToUpper(hex.EncodeToString(v.Bytes)))
			b.WriteByte('>')
			return
		}
		b.Write(EscapeLiteralString(v.Bytes))
	case *ArrayObj:
		b.WriteByte('[')
		for i, it := range v.Items {
			if i > 0 {
				b.WriteByte(' ')
			}
			AppendObject(b, it)
		}
		b.WriteByte(']')
	case *DictObj:
		b.WriteString("<<")
		for _, k := range v.Keys() {
			b.WriteByte('/')
			b.WriteString(EncodeName(k))
			b.WriteByte(' ')
			AppendObject(b, v.KV[k])
		}
		b.WriteString(">>")
	case *StreamObj:
		AppendObject(b, v.Dict)
		b.WriteString("\nstream\n")
		b.Write(v.Data)
		b.WriteString("\nendstream")
	case RefObj:
		fmt.Fprintf(b, "%d %d R", v.R.Num, v.R.Gen)
	default:
		b.WriteString("null")
	}
}

// FormatNumber writes a real with at most six decimals and no exponent.
func FormatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	s := strconv.FormatFloat(math.Round(f*1e6)/1e6, 'f', -1, 64)
	if s == "-0" {
		return "0"
	}
	return s
}

// EscapeLiteralString renders data as a (literal) string.
func EscapeLiteralString(data []byte) []byte {
	var b bytes.Buffer
	b.WriteByte('(')
	for _, ch := range data {
		switch ch {
		case '\\', '(', ')':
			b.WriteByte('\\')
			b.WriteByte(ch)
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		case '\b':
			b.WriteString("\\b")
		case '\f':
			b.WriteString("\\f")
		default:
			if ch < 0x20 || ch >= 0x80 {
				fmt.Fprintf(&b, "\\%03o", ch)
			} else {
				b.WriteByte(ch)
			}
		}
	}
	b.WriteByte(')')
	return b.Bytes()
}

// EncodeName escapes bytes outside the regular character set as #XX.
func EncodeName(value string) string {
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch > 0x20 && ch < 0x7F && !strings.ContainsRune("#()<>[]{}/%", rune(ch)) {
			b.WriteByte(ch)
			continue
		}
		fmt.Fprintf(&b, "#%02X", ch)
	}
	return b.String()
}
