package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLeaf struct {
	name, key string
}

func (f *fakeLeaf) Name() string      { return f.name }
func (f *fakeLeaf) Kind() NodeKind    { return KindAgent }
func (f *fakeLeaf) OutputKey() string { return f.key }
func (f *fakeLeaf) Execute(*RunContext, *State) (Result, error) {
	return Completed, nil
}

type fakeComposite struct {
	name     string
	kind     NodeKind
	children []Node
}

func (f *fakeComposite) Name() string     { return f.name }
func (f *fakeComposite) Kind() NodeKind   { return f.kind }
func (f *fakeComposite) Children() []Node { return f.children }
func (f *fakeComposite) Execute(*RunContext, *State) (Result, error) {
	return Completed, nil
}

func leaf(name, key string) Node { return &fakeLeaf{name: name, key: key} }

func group(kind NodeKind, name string, children ...Node) Node {
	return &fakeComposite{name: name, kind: kind, children: children}
}

func TestValidate_AcceptsWellFormedTree(t *testing.T) {
	root := group(KindSequential, "pipeline",
		leaf("writer", "draft"),
		group(KindLoop, "refine",
			leaf("critic", "critique"),
			leaf("refiner", "draft"),
		),
		group(KindParallel, "fan",
			leaf("a", "a"),
			group(KindSequential, "bc", leaf("b", "b"), leaf("c", "c")),
		),
	)

	assert.NoError(t, Validate(root))
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	root := group(KindSequential, "pipeline",
		leaf("dup", "x"),
		leaf("dup", ""),
		group(KindParallel, "fan",
			leaf("a", "same"),
			group(KindSequential, "nested", leaf("b", "same")),
		),
	)

	err := Validate(root)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTopology)
	assert.Contains(t, err.Error(), `node name "dup" used 2 times`)
	assert.Contains(t, err.Error(), "agent dup has no output key")
	assert.Contains(t, err.Error(), `children a and nested both write "same"`)
}

func TestValidate_DuplicateNamesReportedInSortedOrder(t *testing.T) {
	root := group(KindSequential, "pipeline",
		leaf("zeta", "z1"), leaf("alpha", "a1"), leaf("mid", "m1"),
		leaf("zeta", "z2"), leaf("alpha", "a2"), leaf("mid", "m2"),
	)

	want := `invalid topology: node name "alpha" used 2 times; node name "mid" used 2 times; node name "zeta" used 2 times`

	for range 20 {
		err := Validate(root)
		require.Error(t, err)
		assert.Equal(t, want, err.Error())
	}
}

func TestValidate_NilRoot(t *testing.T) {
	assert.ErrorIs(t, Validate(nil), ErrInvalidTopology)
}

func TestOutputKeys_DistinctInTreeOrder(t *testing.T) {
	root := group(KindLoop, "l", leaf("w", "draft"), leaf("c", "critique"), leaf("r", "draft"))
	assert.Equal(t, []string{"draft", "critique"}, OutputKeys(root))
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "completed", Completed.String())
	assert.Equal(t, "exit_loop", ExitLoop.String())
}
