package task

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrInvalidPasswordEntry reports a malformed password map entry in strict mode.
var ErrInvalidPasswordEntry = errors.New("invalid password entry")

// PasswordMap maps a decimal source index to its password.
type PasswordMap map[string]string

// For returns the password of source index, or "" when none was given.
func (m PasswordMap) For(index int) string {
	return m[strconv.Itoa(index)]
}

type passwordMapOptions struct {
	strict bool
}

// PasswordMapOption configures ParsePasswordMap.
type PasswordMapOption func(*passwordMapOptions)

// WithStrict makes malformed entries an error instead of skipping them.
func WithStrict() PasswordMapOption {
	return func(o *passwordMapOptions) { o.strict = true }
}

var entryRE = regexp.MustCompile(`^(\d+):(.*)$`)

// ParsePasswordMap parses "index:base64" entries. By default malformed
// entries are skipped and the error is always nil.
func ParsePasswordMap(s string, opts ...PasswordMapOption) (PasswordMap, error) {
	var o passwordMapOptions
	for _, opt := range opts {
		opt(&o)
	}
	out := make(PasswordMap)
	if s == "" {
		return out, nil
	}
	for _, entry := range strings.Split(s, ",") {
		idx, pw, err := parseEntry(entry)
		if err != nil {
			if o.strict {
				return nil, err
			}
			continue
		}
		out[idx] = pw
	}
	return out, nil
}

func parseEntry(entry string) (string, string, error) {
	m := entryRE.FindStringSubmatch(entry)
	if m == nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPasswordEntry, entry)
	}
	decoded, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return "", "", fmt.Errorf("%w: index %s: %v", ErrInvalidPasswordEntry, m[1], err)
	}
	if !utf8.Valid(decoded) {
		return "", "", fmt.Errorf("%w: index %s: not UTF-8", ErrInvalidPasswordEntry, m[1])
	}
	return m[1], strings.TrimRightFunc(string(decoded), unicode.IsSpace), nil
}

// ErrWeakPassword reports an output password that fails ValidatePassword.
var ErrWeakPassword = errors.New("password does not meet policy")

// ValidatePassword enforces the output password policy: 3 to 8 characters,
// no whitespace, at least one digit, one upper and one lower case letter.
func ValidatePassword(pw string) error {
	n := utf8.RuneCountInString(pw)
	if n < 3 || n > 8 {
		return fmt.Errorf("%w: length must be between 3 and 8", ErrWeakPassword)
	}
	var digit, upper, lower bool
	for _, r := range pw {
		switch {
		case unicode.IsSpace(r):
			return fmt.Errorf("%w: whitespace is not allowed", ErrWeakPassword)
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		}
	}
	switch {
	case !digit:
		return fmt.Errorf("%w: needs a digit", ErrWeakPassword)
	case !upper:
		return fmt.Errorf("%w: needs an upper case letter", ErrWeakPassword)
	case !lower:
		return fmt.Errorf("%w: needs a lower case letter", ErrWeakPassword)
	}
	return nil
}
