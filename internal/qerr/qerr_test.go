package qerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndIs(t *testing.T) {
	err := New(NotFound, "extension %s not found", "en.example")
	assert.True(t, Is(err, NotFound))
	assert.False(t, Is(err, AlreadyExists))
	assert.Contains(t, err.Error(), "en.example")
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(IoError, cause, "writing manifest")

	assert.True(t, Is(err, IoError))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}

func TestKindOf(t *testing.T) {
	kind, ok := KindOf(New(DirtyWorktree, "uncommitted changes"))
	require.True(t, ok)
	assert.Equal(t, DirtyWorktree, kind)

	_, ok = KindOf(errors.New("plain error"))
	assert.False(t, ok)
}
