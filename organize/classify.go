package organize

import (
	"context"
	"errors"
	"io/fs"
	"net/http"

	"github.com/wudi/pdftask/builder"
	"github.com/wudi/pdftask/filters"
	"github.com/wudi/pdftask/parser"
	"github.com/wudi/pdftask/scanner"
	"github.com/wudi/pdftask/security"
	"github.com/wudi/pdftask/task"
	"github.com/wudi/pdftask/xref"
)

// Category groups job failures by who has to act on them.
type Category int

const (
	CategoryInternal Category = iota
	// CategorySyntax covers malformed task strings, password maps and ranges.
	CategorySyntax
	// CategoryBuild covers tasks that reference pages or sources that do not exist.
	CategoryBuild
	// CategoryPassword covers wrong source passwords and weak output passwords.
	CategoryPassword
	// CategoryInput covers unreadable, oversized or damaged sources.
	CategoryInput
	CategoryCanceled
)

func (c Category) String() string {
	switch c {
	case CategorySyntax:
		return "syntax"
	case CategoryBuild:
		return "build"
	case CategoryPassword:
		return "password"
	case CategoryInput:
		return "input"
	case CategoryCanceled:
		return "canceled"
	default:
		return "internal"
	}
}

// Status maps c to the HTTP status a front end should answer with.
func (c Category) Status() int {
	switch c {
	case CategorySyntax, CategoryBuild:
		return http.StatusUnprocessableEntity
	case CategoryPassword:
		return http.StatusUnauthorized
	case CategoryInput:
		return http.StatusBadRequest
	case CategoryCanceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// ExitCode maps c to a process exit status.
func (c Category) ExitCode() int {
	if c == CategoryInternal {
		return 1
	}
	return int(c) + 1
}

type classRule struct {
	targets  []error
	category Category
}

var classRules = []classRule{
	{[]error{context.Canceled, context.DeadlineExceeded}, CategoryCanceled},
	{[]error{task.ErrInvalidActionSyntax, task.ErrInvalidPasswordEntry, task.ErrInvalidRange}, CategorySyntax},
	{[]error{builder.ErrEmptyActionSequence, builder.ErrSourceIndexOutOfRange, builder.ErrPageIndexOutOfRange}, CategoryBuild},
	{[]error{parser.ErrInvalidPassword, task.ErrWeakPassword}, CategoryPassword},
	{[]error{
		ErrNoSources, ErrTooManySources, ErrTooManyPages,
		parser.ErrMalformed, parser.ErrSourceTooLarge, scanner.ErrSyntax, xref.ErrNoXRef,
		filters.ErrLimitExceeded, filters.ErrUnsupportedFilter, security.ErrUnsupportedEncryption,
		fs.ErrNotExist, fs.ErrPermission,
	}, CategoryInput},
}

// Classify reports the category of err. A nil error is internal.
func Classify(err error) Category {
	if err == nil {
		return CategoryInternal
	}
	for _, rule := range classRules {
		for _, target := range rule.targets {
			if errors.Is(err, target) {
				return rule.category
			}
		}
	}
	return CategoryInternal
}
