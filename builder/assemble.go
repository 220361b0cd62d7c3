package builder

import (
	"errors"
	"fmt"

	"github.com/wudi/pdftask/ir/raw"
	"github.com/wudi/pdftask/ir/semantic"
	"github.com/wudi/pdftask/task"
)

var (
	// ErrEmptyActionSequence is returned when the actions select no pages.
	ErrEmptyActionSequence = errors.New("empty action sequence")
	// ErrSourceIndexOutOfRange reports an action naming a missing source.
	ErrSourceIndexOutOfRange = errors.New("source index out of range")
	// ErrPageIndexOutOfRange reports a page beyond the source's page count.
	ErrPageIndexOutOfRange = errors.New("page index out of range")
)

// BuildError locates a build failure. Page is the 1-based source page, or 0
// when the failure concerns the whole action.
type BuildError struct {
	Action int
	Source int
	Page   int
	Err    error
}

func (e *BuildError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("action %d: source %d page %d: %v", e.Action, e.Source, e.Page, e.Err)
	}
	return fmt.Sprintf("action %d: source %d: %v", e.Action, e.Source, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Assemble builds a new document from the pages the actions select, in
// action order. Output pages are copies; sources are never modified.
// Selecting the same page twice yields two output pages.
func Assemble(actions task.Sequence, sources []*semantic.Document) (*semantic.Document, error) {
	if len(actions) == 0 {
		return nil, ErrEmptyActionSequence
	}
	out := &semantic.Document{}
	for ai, a := range actions {
		if a.Source < 0 || a.Source >= len(sources) || sources[a.Source] == nil {
			return nil, &BuildError{Action: ai, Source: a.Source, Err: ErrSourceIndexOutOfRange}
		}
		src := sources[a.Source]
		if src.Version > out.Version {
			out.Version = src.Version
		}
		if a.Length <= 0 {
			continue
		}
		if missing, ok := firstMissing(a, src.PageCount()); ok {
			return nil, &BuildError{
				Action: ai,
				Source: a.Source,
				Page:   missing,
				Err:    fmt.Errorf("%w: document has %d pages", ErrPageIndexOutOfRange, src.PageCount()),
			}
		}
		for i := 0; i < a.Length; i++ {
			page, _ := src.Page(a.Start + i)
			out.Pages = append(out.Pages, rotated(page, int(a.Rotation), len(out.Pages)))
		}
	}
	if len(out.Pages) == 0 {
		return nil, ErrEmptyActionSequence
	}
	return out, nil
}

// firstMissing reports the first page of a that is not in a document of
// count pages. It never computes Start+Length, which may overflow.
func firstMissing(a task.Action, count int) (int, bool) {
	switch {
	case a.Start < 1 || a.Start > count:
		return a.Start, true
	case a.Length > count-a.Start+1:
		return count + 1, true
	}
	return 0, false
}

// rotated clones p and adds deg to its rotation.
func rotated(p *semantic.Page, deg, index int) *semantic.Page {
	c := p.Clone()
	c.Index = index
	if deg != 0 {
		c.Rotate = semantic.NormalizeRotation(c.Rotate + deg)
		if c.Dict == nil {
			c.Dict = raw.Dict()
		}
		if c.Rotate == 0 {
			c.Dict.Delete("Rotate")
		} else {
			c.Dict.Set("Rotate", raw.NumberInt(int64(c.Rotate)))
		}
	}
	return c
}
