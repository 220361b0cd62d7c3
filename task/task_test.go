package task

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSingleAction(t *testing.T) {
	seq, err := Parse("0:1-2#180")
	require.NoError(t, err)
	assert.Equal(t, Sequence{{Source: 0, Start: 1, Length: 2, Rotation: Rotate180}}, seq)
}

func TestParseEmpty(t *testing.T) {
	seq, err := Parse("")
	require.NoError(t, err)
	assert.Empty(t, seq)
}

func TestParseMultiple(t *testing.T) {
	seq, err := Parse("0:1-2#0,1:1-1#90,2:4-3#-90")
	require.NoError(t, err)
	assert.Equal(t, Sequence{
		{Source: 0, Start: 1, Length: 2},
		{Source: 1, Start: 1, Length: 1, Rotation: Rotate90},
		{Source: 2, Start: 4, Length: 3, Rotation: RotateM90},
	}, seq)
	assert.Equal(t, 6, seq.PageCount())
}

func TestParseRejectsBadSyntax(t *testing.T) {
	for _, in := range []string{
		"abc",
		"0:1-2#45",
		"0:1-2",
		"0:1-2#90,",
		" 0:1-2#90",
		"0:1-2#90x",
		"0-1:2#90",
		"0:1-2#+90",
		"-1:1-2#0",
		"0:1-2#270",
		"0:1-99999999999999999999999#0",
	} {
		_, err := Parse(in)
		require.Error(t, err, "input %q", in)
		assert.True(t, errors.Is(err, ErrInvalidActionSyntax), "input %q: %v", in, err)
	}
}

func TestParseReportsOffendingSegment(t *testing.T) {
	_, err := Parse("0:1-2#0,1:1-1#45,2:1-1#0")
	var se *SyntaxError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "1:1-1#45", se.Segment)
}

func TestStringRoundTrip(t *testing.T) {
	for _, in := range []string{"0:1-2#180", "3:10-1#-90,0:1-1#0,0:1-1#0", "12:007-1#90"} {
		seq, err := Parse(in)
		require.NoError(t, err)
		again, err := Parse(seq.String())
		require.NoError(t, err)
		assert.Equal(t, seq, again)
	}
}

func TestRotationValid(t *testing.T) {
	assert.True(t, RotateM90.Valid())
	assert.False(t, Rotation(270).Valid())
}

func TestPresets(t *testing.T) {
	assert.Equal(t, Sequence{{Source: 0, Start: 1, Length: 3}, {Source: 2, Start: 1, Length: 2}}, Merge([]int{3, 0, 2}))
	assert.Equal(t, Sequence{
		{Source: 0, Start: 3, Length: 1},
		{Source: 0, Start: 1, Length: 2},
		{Source: 0, Start: 5, Length: 1},
	}, Sort(0, Pages(3, 1, 2, 5)))
	assert.Equal(t, Sequence{{Source: 1, Start: 1, Length: 1}, {Source: 1, Start: 3, Length: 1}, {Source: 1, Start: 5, Length: 2}}, Delete(1, 6, Pages(2, 4)))
	assert.Equal(t, Sequence{{Source: 0, Start: 1, Length: 4, Rotation: Rotate90}}, Rotate(0, 4, Rotate90))
	assert.Empty(t, Rotate(0, 0, Rotate90))
}

func TestSplit(t *testing.T) {
	parts, err := Split(0, "1-3, 5")
	require.NoError(t, err)
	assert.Equal(t, []Sequence{
		{{Source: 0, Start: 1, Length: 3}},
		{{Source: 0, Start: 5, Length: 1}},
	}, parts)

	for _, bad := range []string{"", "0", "3-1", "a-b", "1-"} {
		_, err := Split(0, bad)
		assert.ErrorIs(t, err, ErrInvalidRange, "input %q", bad)
	}
}

func TestParsePages(t *testing.T) {
	pages, err := ParsePages("3,1-2,5")
	require.NoError(t, err)
	assert.Equal(t, []PageRange{{3, 3}, {1, 2}, {5, 5}}, pages)
	assert.Equal(t, Sequence{{Source: 0, Start: 3, Length: 1}, {Source: 0, Start: 1, Length: 2}, {Source: 0, Start: 5, Length: 1}}, Sort(0, pages))
}

func TestHugePageRangesStayCompact(t *testing.T) {
	pages, err := ParsePages("1-2000000000")
	require.NoError(t, err)
	assert.Equal(t, []PageRange{{1, 2000000000}}, pages)
	assert.Equal(t, Sequence{{Source: 0, Start: 1, Length: 2000000000}}, Sort(0, pages))

	pages, err = ParsePages("2-2000000000,1")
	require.NoError(t, err)
	assert.Empty(t, Delete(0, 5, pages))

	pages, err = ParsePages("4-2000000000")
	require.NoError(t, err)
	assert.Equal(t, Sequence{{Source: 0, Start: 1, Length: 3}}, Delete(0, 10, pages))
}

func TestDeleteOverlappingRanges(t *testing.T) {
	got := Delete(0, 10, []PageRange{{6, 8}, {2, 3}, {3, 4}, {7, 7}, {11, 20}})
	assert.Equal(t, Sequence{{Source: 0, Start: 1, Length: 1}, {Source: 0, Start: 5, Length: 1}, {Source: 0, Start: 9, Length: 2}}, got)
}
