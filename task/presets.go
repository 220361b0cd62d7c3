package task

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidRange reports a malformed page list or range list.
var ErrInvalidRange = errors.New("invalid page range")

// Merge selects every page of every source, in source order.
func Merge(pageCounts []int) Sequence {
	seq := Sequence{}
	for i, n := range pageCounts {
		if n > 0 {
			seq = append(seq, Action{Source: i, Start: 1, Length: n})
		}
	}
	return seq
}

// PageRange is an inclusive range of 1-based pages.
type PageRange struct {
	From, To int
}

// Pages turns single page numbers into one-page ranges.
func Pages(pages ...int) []PageRange {
	out := make([]PageRange, len(pages))
	for i, p := range pages {
		out[i] = PageRange{From: p, To: p}
	}
	return out
}

// Sort selects the ranges of source in the given order. A range that
// continues the previous one shares its action. Ranges are not checked
// against the page count; Assemble reports pages that do not exist.
func Sort(source int, ranges []PageRange) Sequence {
	seq := Sequence{}
	for _, r := range ranges {
		if r.From < 1 || r.To < r.From {
			continue
		}
		if n := len(seq); n > 0 {
			last := &seq[n-1]
			if end := last.Start + (last.Length - 1); end == r.From-1 && r.To-r.From < maxInt-last.Length {
				last.Length += r.To - r.From + 1
				continue
			}
		}
		seq = append(seq, Action{Source: source, Start: r.From, Length: r.To - r.From + 1})
	}
	return seq
}

const maxInt = int(^uint(0) >> 1)

// Delete selects every page of source except those in ranges. Ranges past
// pageCount are ignored.
func Delete(source, pageCount int, ranges []PageRange) Sequence {
	drop := make([]PageRange, 0, len(ranges))
	for _, r := range ranges {
		if r.From > pageCount || r.To < 1 || r.To < r.From {
			continue
		}
		drop = append(drop, PageRange{From: max(r.From, 1), To: min(r.To, pageCount)})
	}
	sort.Slice(drop, func(i, j int) bool { return drop[i].From < drop[j].From })

	seq := Sequence{}
	next := 1
	for _, r := range drop {
		if r.From > next {
			seq = append(seq, Action{Source: source, Start: next, Length: r.From - next})
		}
		if r.To+1 > next {
			next = r.To + 1
		}
	}
	if next <= pageCount {
		seq = append(seq, Action{Source: source, Start: next, Length: pageCount - next + 1})
	}
	return seq
}

// Rotate selects every page of source with rotation applied.
func Rotate(source, pageCount int, rotation Rotation) Sequence {
	if pageCount <= 0 {
		return Sequence{}
	}
	return Sequence{{Source: source, Start: 1, Length: pageCount, Rotation: rotation}}
}

var rangeRE = regexp.MustCompile(`^\s*(\d+)\s*(?:-\s*(\d+)\s*)?$`)

// Split turns a range list such as "1-3,5" into one sequence per range,
// each producing a separate output document.
func Split(source int, ranges string) ([]Sequence, error) {
	var out []Sequence
	for _, part := range strings.Split(ranges, ",") {
		from, to, err := parseRange(part)
		if err != nil {
			return nil, err
		}
		out = append(out, Sequence{{Source: source, Start: from, Length: to - from + 1}})
	}
	return out, nil
}

// ParsePages parses a comma separated list of 1-based page numbers and
// ranges, keeping the given order. Ranges stay unexpanded.
func ParsePages(s string) ([]PageRange, error) {
	var out []PageRange
	for _, part := range strings.Split(s, ",") {
		from, to, err := parseRange(part)
		if err != nil {
			return nil, err
		}
		out = append(out, PageRange{From: from, To: to})
	}
	return out, nil
}

func parseRange(part string) (int, int, error) {
	m := rangeRE.FindStringSubmatch(part)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidRange, part)
	}
	from, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidRange, part)
	}
	to := from
	if m[2] != "" {
		if to, err = strconv.Atoi(m[2]); err != nil {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidRange, part)
		}
	}
	if from < 1 || to < from {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidRange, part)
	}
	return from, to, nil
}
