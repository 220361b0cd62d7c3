// Package contentstream reads and writes page content operator lists.
package contentstream

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdftask/geometry"
	"github.com/wudi/pdftask/ir/raw"
	"github.com/wudi/pdftask/scanner"
)

// Operation is one operator with its operands. Inline holds the image data
// of an inline image for the ID operator.
type Operation struct {
	Operator string
	Operands []raw.Object
	Inline   []byte
}

// Op builds an operation.
func Op(operator string, operands ...raw.Object) Operation {
	return Operation{Operator: operator, Operands: operands}
}

// Numbers builds an operation whose operands are all numbers.
func Numbers(operator string, vals ...float64) Operation {
	ops := make([]raw.Object, len(vals))
	for i, v := range vals {
		ops[i] = raw.Number(v)
	}
	return Operation{Operator: operator, Operands: ops}
}

// Save and Restore push and pop the graphics state.
func Save() Operation    { return Op("q") }
func Restore() Operation { return Op("Q") }

// Concat emits a cm operator for m.
func Concat(m geometry.Matrix) Operation { return Numbers("cm", m[:]...) }

// PaintXObject draws the named XObject.
func PaintXObject(name string) Operation { return Op("Do", raw.NameLiteral(name)) }

// Encode serializes ops, one operator per line.
func Encode(ops []Operation) []byte {
	var buf bytes.Buffer
	for _, op := range ops {
		for i, operand := range op.Operands {
			if i > 0 {
				buf.WriteByte(' ')
			}
			raw.AppendObject(&buf, operand)
		}
		if len(op.Operands) > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(op.Operator)
		if op.Operator == "ID" {
			buf.WriteByte(' ')
			buf.Write(op.Inline)
			buf.WriteString("\nEI")
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// ErrDanglingOperands reports operands left over at the end of a stream.
var ErrDanglingOperands = errors.New("operands without operator")

// Parse splits content into operations. Inline image data following ID is
// captured up to the closing EI.
func Parse(content []byte) ([]Operation, error) {
	s := scanner.New(content, scanner.Config{})
	var ops []Operation
	var operands []raw.Object
	for {
		obj, operator, err := s.ReadContent()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ops, err
		}
		if operator == "" {
			operands = append(operands, obj)
			continue
		}
		op := Operation{Operator: operator, Operands: operands}
		operands = nil
		if operator == "ID" {
			data, next, err := inlineData(content, s.Position())
			if err != nil {
				return ops, err
			}
			op.Inline = data
			if err := s.Seek(next); err != nil {
				return ops, err
			}
		}
		ops = append(ops, op)
	}
	if len(operands) > 0 {
		return ops, fmt.Errorf("%w: %d left", ErrDanglingOperands, len(operands))
	}
	return ops, nil
}

// inlineData returns the bytes between ID and EI and the offset after EI.
func inlineData(content []byte, pos int64) ([]byte, int64, error) {
	start := int(pos)
	if start < len(content) && isSpace(content[start]) {
		start++
	}
	for i := start; i+1 < len(content); i++ {
		if content[i] != 'E' || content[i+1] != 'I' {
			continue
		}
		if i > start && !isSpace(content[i-1]) {
			continue
		}
		if i+2 < len(content) && !isSpace(content[i+2]) {
			continue
		}
		end := i
		if end > start && isSpace(content[end-1]) {
			end--
		}
		return content[start:end], int64(i + 2), nil
	}
	return nil, 0, errors.New("inline image without EI")
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

// Depth reports how many q operators in ops are left open at the end. Stray
// Q operators that would underflow the stack are ignored.
func Depth(ops []Operation) int {
	depth := 0
	for _, op := range ops {
		switch op.Operator {
		case "q":
			depth++
		case "Q":
			if depth > 0 {
				depth--
			}
		}
	}
	return depth
}
