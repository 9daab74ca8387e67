package bptree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinSizeLeafAndInternal(t *testing.T) {
	// ceil((maxSize-1)/2) for leaf, ceil(maxSize/2) for internal.
	assert.Equal(t, 1, MinSize(TypeLeaf, 3))
	assert.Equal(t, 2, MinSize(TypeLeaf, 4))
	assert.Equal(t, 2, MinSize(TypeLeaf, 5))
	assert.Equal(t, 3, MinSize(TypeLeaf, 6))

	assert.Equal(t, 2, MinSize(TypeInternal, 3))
	assert.Equal(t, 2, MinSize(TypeInternal, 4))
	assert.Equal(t, 3, MinSize(TypeInternal, 5))
	assert.Equal(t, 3, MinSize(TypeInternal, 6))
}

func TestIsLeaf(t *testing.T) {
	buf := make([]byte, 4096)
	leaf := NewLeafPage(buf)
	leaf.Init(1, -1, 4)
	assert.True(t, IsLeaf(buf))

	buf2 := make([]byte, 4096)
	internal := NewInternalPage(buf2)
	internal.Init(2, -1, 4)
	assert.False(t, IsLeaf(buf2))
}
