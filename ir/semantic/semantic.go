// Package semantic holds the page-level view of a document: the ordered page
// list and the attributes the assembly engine reasons about.
package semantic

import (
	"github.com/wudi/pdftask/ir/raw"
)

// Rectangle is a PDF rectangle in default user space units.
type Rectangle struct {
	LLX, LLY, URX, URY float64
}

func (r Rectangle) Width() float64  { return r.URX - r.LLX }
func (r Rectangle) Height() float64 { return r.URY - r.LLY }

// Array converts the rectangle back to a PDF array.
func (r Rectangle) Array() *raw.ArrayObj { return raw.Numbers(r.LLX, r.LLY, r.URX, r.URY) }

// Document is an opened source or an assembled result.
type Document struct {
	Pages     []*Page
	Version   string
	Encrypted bool
	// Revision of the security handler the source was opened with, 0 when plain.
	Revision int
	Info     *raw.DictObj
	// Raw is the object arena the document was parsed from. Assembled
	// documents may reference pages from several arenas and leave it nil.
	Raw *raw.Document
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return len(d.Pages) }

// Page returns the 1-based page n.
func (d *Document) Page(n int) (*Page, bool) {
	if n < 1 || n > len(d.Pages) {
		return nil, false
	}
	return d.Pages[n-1], true
}

// Page models a single page. Box fields are nil when the page (including its
// inherited attributes) does not declare them.
type Page struct {
	Index    int
	MediaBox *Rectangle
	CropBox  *Rectangle
	// UserUnit is 0 when absent.
	UserUnit float64
	Rotate   int
	Ref      raw.ObjectRef
	// Dict is the page dictionary with inherited attributes materialized.
	Dict *raw.DictObj
	// Source is the arena Dict's references resolve against.
	Source *raw.Document
}

// Scale returns UserUnit, defaulting to 1.
func (p *Page) Scale() float64 {
	if p.UserUnit <= 0 {
		return 1
	}
	return p.UserUnit
}

// Clone copies the page so callers can change Rotate or Dict without touching
// the original. Referenced objects stay shared with the source arena.
func (p *Page) Clone() *Page {
	c := *p
	if p.MediaBox != nil {
		mb := *p.MediaBox
		c.MediaBox = &mb
	}
	if p.CropBox != nil {
		cb := *p.CropBox
		c.CropBox = &cb
	}
	if p.Dict != nil {
		c.Dict = raw.ShallowCopy(p.Dict)
	}
	return &c
}

// NormalizeRotation maps any multiple of 90 into [0, 360).
func NormalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}
