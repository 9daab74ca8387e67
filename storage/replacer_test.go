package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReplacerVictimIsLeastRecentlyUnpinned(t *testing.T) {
	r := NewReplacer()
	assert.Equal(t, 0, r.Size())

	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)
	assert.Equal(t, 3, r.Size())

	id, ok := r.Victim()
	assert.True(t, ok)
	assert.Equal(t, FrameID(1), id)
	assert.Equal(t, 2, r.Size())

	id, ok = r.Victim()
	assert.True(t, ok)
	assert.Equal(t, FrameID(2), id)
}

func TestReplacerPinRemovesCandidate(t *testing.T) {
	r := NewReplacer()
	r.Unpin(1)
	r.Unpin(2)
	r.Pin(1)
	assert.Equal(t, 1, r.Size())

	id, ok := r.Victim()
	assert.True(t, ok)
	assert.Equal(t, FrameID(2), id)
}

func TestReplacerUnpinDoesNotRepromote(t *testing.T) {
	r := NewReplacer()
	r.Unpin(1)
	r.Unpin(2)
	// Re-unpinning an already-tracked frame must not move it to the back.
	r.Unpin(1)

	id, ok := r.Victim()
	assert.True(t, ok)
	assert.Equal(t, FrameID(1), id)
}

func TestReplacerVictimOnEmptyReturnsFalse(t *testing.T) {
	r := NewReplacer()
	_, ok := r.Victim()
	assert.False(t, ok)
}
