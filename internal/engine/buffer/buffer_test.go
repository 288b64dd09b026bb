package buffer

import (
	stderrors "errors"
	"strings"
	"testing"

	"shelltree/internal/core/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend_EditDescriptor(t *testing.T) {
	acc := New(1024)

	edit, err := acc.Append("echo 1\n")
	require.NoError(t, err)
	assert.Equal(t, Edit{
		StartByte:      0,
		OldEndByte:     0,
		NewEndByte:     7,
		StartPosition:  Point{Row: 0},
		OldEndPosition: Point{Row: 0},
		NewEndPosition: Point{Row: 1},
	}, edit)

	edit, err = acc.Append("if true; then\n  echo 2")
	require.NoError(t, err)
	assert.Equal(t, uint(7), edit.StartByte)
	assert.Equal(t, uint(7), edit.OldEndByte)
	assert.Equal(t, uint(29), edit.NewEndByte)
	assert.Equal(t, Point{Row: 1}, edit.StartPosition)
	assert.Equal(t, Point{Row: 1}, edit.OldEndPosition)
	assert.Equal(t, Point{Row: 2, Column: 0}, edit.NewEndPosition, "columns stay at zero even mid-line")
}

func TestAppend_ConcatenatesInOrder(t *testing.T) {
	fragments := []string{"for i in 1 2 3", "; do\n", "  echo $i\n", "", "done\n", "é\n"}
	acc := New(DefaultMaxSize)
	for _, f := range fragments {
		_, err := acc.Append(f)
		require.NoError(t, err)
	}
	want := strings.Join(fragments, "")
	assert.Equal(t, want, acc.String())
	assert.Equal(t, len(want), acc.Len())
	assert.Equal(t, uint(strings.Count(want, "\n")), acc.Rows())
	assert.Equal(t, []byte(want), acc.Bytes())
}

func TestAppend_Overflow(t *testing.T) {
	acc := New(10)
	_, err := acc.Append("echo 1\n")
	require.NoError(t, err)

	_, err = acc.Append("echo 2\n")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeBufferOverflow))

	var overflow *OverflowError
	require.True(t, stderrors.As(err, &overflow))
	assert.Equal(t, OverflowError{CurrentSize: 7, FragmentSize: 7, MaxSize: 10}, *overflow)

	assert.Equal(t, "echo 1\n", acc.String(), "rejected fragment must not mutate the buffer")
	assert.Equal(t, uint(1), acc.Rows())

	_, err = acc.Append("abc")
	require.NoError(t, err, "exactly reaching the bound is allowed")
	assert.Equal(t, 10, acc.Len())
}

func TestTruncateAndReset(t *testing.T) {
	acc := New(100)
	_, _ = acc.Append("a\nb\n")
	edit, _ := acc.Append("c\nd")

	acc.Truncate(int(edit.StartByte))
	assert.Equal(t, "a\nb\n", acc.String())
	assert.Equal(t, uint(2), acc.Rows())

	acc.Truncate(50)
	assert.Equal(t, "a\nb\n", acc.String())

	acc.Reset()
	assert.Equal(t, 0, acc.Len())
	assert.Equal(t, uint(0), acc.Rows())

	edit, err := acc.Append("x\n")
	require.NoError(t, err)
	assert.Equal(t, uint(0), edit.StartByte)
	assert.Equal(t, Point{Row: 1}, edit.NewEndPosition)
}

func TestNew_DefaultBound(t *testing.T) {
	assert.Equal(t, DefaultMaxSize, New(0).MaxSize())
	assert.Equal(t, DefaultMaxSize, New(-5).MaxSize())
	assert.Equal(t, 42, New(42).MaxSize())
}
