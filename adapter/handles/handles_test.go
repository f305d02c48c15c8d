package handles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreateStartsAfterBase(t *testing.T) {
	tree := NewHandleTree[string]()
	h1 := tree.Create(0, "frame", "f")
	h2 := tree.Create(h1, "x", "x")
	assert.Equal(t, Handle(1001), h1)
	assert.Equal(t, Handle(1002), h2)

	v, ok := tree.Get(h2)
	assert.True(t, ok)
	assert.Equal(t, "x", v)
}

func TestHandleStabilityAcrossReset(t *testing.T) {
	tree := NewHandleTree[string]()
	frame := tree.Create(0, "[1,0]", "frame")
	local := tree.Create(frame, "Local", "scope")
	x := tree.Create(local, "x", "x=1")
	y := tree.Create(local, "y", "y=2")

	tree.Reset()
	_, ok := tree.Get(y)
	assert.False(t, ok)

	frame2 := tree.Create(0, "[1,0]", "frame")
	local2 := tree.Create(frame2, "Local", "scope")
	x2 := tree.Create(local2, "x", "x=3")
	// y被重命名为z
	z := tree.Create(local2, "z", "z=2")

	assert.Equal(t, frame, frame2)
	assert.Equal(t, local, local2)
	assert.Equal(t, x, x2)
	assert.NotEqual(t, y, z)
	assert.Greater(t, int(z), int(y))

	v, ok := tree.Get(x2)
	assert.True(t, ok)
	assert.Equal(t, "x=3", v)
	_, ok = tree.Get(y)
	assert.False(t, ok)
}

func TestLookbackIsOneGeneration(t *testing.T) {
	tree := NewHandleTree[int]()
	a := tree.Create(0, "a", 1)
	tree.Reset()
	tree.Create(0, "b", 2)
	tree.Reset()
	a2 := tree.Create(0, "a", 1)
	assert.NotEqual(t, a, a2)
}

func TestDuplicateChildPanics(t *testing.T) {
	tree := NewHandleTree[int]()
	root := tree.Create(0, "root", 0)
	tree.Create(root, "x", 1)
	assert.Panics(t, func() {
		tree.Create(root, "x", 2)
	})
}

func TestLookupAndReplace(t *testing.T) {
	tree := NewHandleTree[string]()
	root := tree.Create(0, "root", "r")
	h := tree.Create(root, "[eval]a+b", "3")

	found, ok := tree.Lookup(root, "[eval]a+b")
	assert.True(t, ok)
	assert.Equal(t, h, found)
	assert.True(t, tree.Replace(h, "4"))
	v, _ := tree.Get(h)
	assert.Equal(t, "4", v)

	_, ok = tree.Lookup(Handle(99999), "x")
	assert.False(t, ok)
	assert.False(t, tree.Replace(Handle(99999), "x"))
}
