package core

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_GetMissingKey(t *testing.T) {
	s := NewState()

	_, err := s.Get("draft")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingKey)

	var mk *MissingKeyError
	require.ErrorAs(t, err, &mk)
	assert.Equal(t, "draft", mk.Key)

	v, ok := s.Lookup("draft")
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestState_InsertionOrderAndOverwrite(t *testing.T) {
	s := NewState()
	s.Set("b", 1)
	s.Set("a", 2)
	s.Set("b", 3)

	assert.Equal(t, []string{"b", "a"}, s.Keys())
	assert.Equal(t, 2, s.Len())

	v, err := s.Get("b")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestState_NewStateFromIsSorted(t *testing.T) {
	s := NewStateFrom(map[string]any{"z": 1, "a": 2, "m": 3})
	assert.Equal(t, []string{"a", "m", "z"}, s.Keys())
}

func TestState_ZeroValueUsable(t *testing.T) {
	var s State
	s.Set("k", "v")
	assert.True(t, s.Has("k"))
}

func TestState_SnapshotIsImmutable(t *testing.T) {
	s := NewState()
	s.Set("a", 1)

	snap := s.Snapshot()
	s.Set("a", 2)
	s.Set("b", 3)

	v, ok := snap.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, []string{"a"}, snap.Keys())
	assert.Equal(t, map[string]any{"a": 1}, snap.Map())
}

func TestState_ForkIsolatesWrites(t *testing.T) {
	s := NewState()
	s.Set("input", "x")

	b := s.Fork()
	b.Set("out", "y")

	assert.False(t, s.Has("out"))
	assert.Equal(t, []string{"out"}, b.Written())

	v, err := b.Get("input")
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}

func TestState_MergeBranchesDeclarationOrder(t *testing.T) {
	s := NewState()
	s.Set(InputKey, "topic")

	names := []string{"a", "b", "c"}
	branches := []*State{s.Fork(), s.Fork(), s.Fork()}

	// complete out of order
	branches[2].Set("c", 3)
	branches[0].Set("a", 1)
	branches[1].Set("b", 2)

	require.NoError(t, s.MergeBranches(names, branches))
	assert.Equal(t, []string{InputKey, "a", "b", "c"}, s.Keys())
}

func TestState_MergeBranchesDetectsDoubleWrite(t *testing.T) {
	s := NewState()
	b1, b2 := s.Fork(), s.Fork()
	b1.Set("k", 1)
	b2.Set("k", 2)

	err := s.MergeBranches([]string{"left", "right"}, []*State{b1, b2})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateConflict)

	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "k", ce.Key)
	assert.Equal(t, []string{"left", "right"}, ce.Writers)
	assert.False(t, s.Has("k"), "state must be untouched on conflict")
}

func TestState_MergeBranchesDetectsReadOfSiblingWrite(t *testing.T) {
	s := NewState()
	s.Set("shared", "old")

	writer, reader := s.Fork(), s.Fork()
	writer.Set("shared", "new")
	_, _ = reader.Get("shared")

	err := s.MergeBranches([]string{"writer", "reader"}, []*State{writer, reader})

	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"reader"}, ce.Readers)

	v, _ := s.Get("shared")
	assert.Equal(t, "old", v)
}

func TestState_MergeBranchesAllowsOwnRead(t *testing.T) {
	s := NewState()
	b := s.Fork()
	b.Set("k", 1)
	_, _ = b.Get("k")

	assert.NoError(t, s.MergeBranches([]string{"only"}, []*State{b}))
}

func TestState_AdoptReads(t *testing.T) {
	s := NewState()
	s.Set("topic", "go")

	branch := s.Fork()
	delegate := branch.Fork()
	delegate.Set(InputKey, "request")
	_, _ = delegate.Get(InputKey)
	_, _ = delegate.Get("topic")

	branch.AdoptReads(delegate)
	assert.Empty(t, branch.Written())

	sibling := s.Fork()
	sibling.Set("topic", "rust")

	err := s.MergeBranches([]string{"sibling", "branch"}, []*State{sibling, branch})

	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "topic", ce.Key)
	assert.Equal(t, []string{"branch"}, ce.Readers)

	root := NewState()
	root.AdoptReads(delegate)
	assert.Equal(t, 0, root.Len())
}

func TestState_NestedBranchPropagatesAccess(t *testing.T) {
	s := NewState()
	outerA, outerB := s.Fork(), s.Fork()

	inner := outerA.Fork()
	inner.Set("x", 1)
	require.NoError(t, outerA.MergeBranches([]string{"inner"}, []*State{inner}))

	outerB.Lookup("x")

	err := s.MergeBranches([]string{"a", "b"}, []*State{outerA, outerB})
	assert.True(t, errors.Is(err, ErrStateConflict))
}

func TestState_ConcurrentDisjointWrites(t *testing.T) {
	s := NewState()

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Set(fmt.Sprintf("k%d", i), i)
			_, _ = s.Lookup("k0")
		}()
	}
	wg.Wait()

	assert.Equal(t, 32, s.Len())
}
