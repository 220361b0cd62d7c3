// Package task parses the page-assembly mini-language
//
//	index:startPage-length#rotation[,index:startPage-length#rotation...]
//
// and the companion password map "index:base64[,index:base64...]".
package task

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidActionSyntax reports a segment that does not match the grammar.
var ErrInvalidActionSyntax = errors.New("invalid action syntax")

// SyntaxError carries the offending segment of a task string.
type SyntaxError struct {
	Segment string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s: %q", ErrInvalidActionSyntax, e.Segment)
}

func (e *SyntaxError) Unwrap() error { return ErrInvalidActionSyntax }

// Rotation is the clockwise rotation applied to every page of an action.
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	RotateM90 Rotation = -90
	Rotate180 Rotation = 180
)

// Valid reports whether r is one of the rotations the grammar accepts.
func (r Rotation) Valid() bool {
	switch r {
	case Rotate0, Rotate90, RotateM90, Rotate180:
		return true
	}
	return false
}

// Action selects Length pages starting at the 1-based page Start of source
// Source.
type Action struct {
	Source   int
	Start    int
	Length   int
	Rotation Rotation
}

func (a Action) String() string {
	return fmt.Sprintf("%d:%d-%d#%d", a.Source, a.Start, a.Length, int(a.Rotation))
}

// Sequence is an ordered list of actions; its order is the output page order.
type Sequence []Action

func (s Sequence) String() string {
	parts := make([]string, len(s))
	for i, a := range s {
		parts[i] = a.String()
	}
	return strings.Join(parts, ",")
}

// PageCount is the number of output pages the sequence selects.
func (s Sequence) PageCount() int {
	n := 0
	for _, a := range s {
		n += a.Length
	}
	return n
}

var actionRE = regexp.MustCompile(`^(\d+):(\d+)-(\d+)#(0|-90|90|180)$`)

// Parse parses a task string. The empty string is an empty sequence. Bounds
// are not checked here.
func Parse(s string) (Sequence, error) {
	if s == "" {
		return Sequence{}, nil
	}
	segments := strings.Split(s, ",")
	seq := make(Sequence, 0, len(segments))
	for _, seg := range segments {
		a, err := parseAction(seg)
		if err != nil {
			return nil, err
		}
		seq = append(seq, a)
	}
	return seq, nil
}

func parseAction(seg string) (Action, error) {
	m := actionRE.FindStringSubmatch(seg)
	if m == nil {
		return Action{}, &SyntaxError{Segment: seg}
	}
	var vals [4]int
	for i := range vals {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Action{}, &SyntaxError{Segment: seg}
		}
		vals[i] = n
	}
	return Action{Source: vals[0], Start: vals[1], Length: vals[2], Rotation: Rotation(vals[3])}, nil
}
