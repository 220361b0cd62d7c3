package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePasswordMapSkipsMalformed(t *testing.T) {
	m, err := ParsePasswordMap("0:aGVsbG8=,1:bogus-no-colon")
	require.NoError(t, err)
	assert.Equal(t, PasswordMap{"0": "hello"}, m)
}

func TestParsePasswordMapTrimsTrailingWhitespace(t *testing.T) {
	// " pw \n"
	m, err := ParsePasswordMap("2:IHB3IAo=,x:aGk=")
	require.NoError(t, err)
	assert.Equal(t, PasswordMap{"2": " pw"}, m)
	assert.Equal(t, " pw", m.For(2))
	assert.Equal(t, "", m.For(0))
}

func TestParsePasswordMapEmpty(t *testing.T) {
	m, err := ParsePasswordMap("")
	require.NoError(t, err)
	assert.Empty(t, m)

	m, err = ParsePasswordMap("0:")
	require.NoError(t, err)
	assert.Equal(t, PasswordMap{"0": ""}, m)
}

func TestParsePasswordMapStrict(t *testing.T) {
	_, err := ParsePasswordMap("0:aGVsbG8=,1:bogus-no-colon", WithStrict())
	assert.ErrorIs(t, err, ErrInvalidPasswordEntry)

	_, err = ParsePasswordMap("nope", WithStrict())
	assert.ErrorIs(t, err, ErrInvalidPasswordEntry)

	m, err := ParsePasswordMap("0:aGVsbG8=", WithStrict())
	require.NoError(t, err)
	assert.Equal(t, "hello", m.For(0))
}

func TestValidatePassword(t *testing.T) {
	for _, ok := range []string{"Ab1", "Passw0rd"} {
		assert.NoError(t, ValidatePassword(ok), ok)
	}
	for _, bad := range []string{"A1", "Passw0rd1", "ab1", "AB1", "Abc", "A b1"} {
		assert.ErrorIs(t, ValidatePassword(bad), ErrWeakPassword, bad)
	}
}
