package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kfujino/descent/internal/model"
)

func manifest() []model.WorkerEntry {
	return []model.WorkerEntry{
		{ID: "generalist", Capabilities: []string{"build", "test", "deploy"}},
		{ID: "builder", Capabilities: []string{"build"}},
		{ID: "tester", Capabilities: []string{"test"}},
	}
}

func TestAcquire_PrefersSpecialist(t *testing.T) {
	p := New(manifest())

	w := p.Acquire([]string{"build"}, "1")
	require.NotNil(t, w)
	assert.Equal(t, "builder", w.ID, "specialist beats generalist")
	assert.True(t, w.Busy)
	assert.Equal(t, "1", w.CurrentTask)
}

func TestAcquire_FallsBackToGeneralist(t *testing.T) {
	p := New(manifest())

	first := p.Acquire([]string{"build"}, "1")
	require.Equal(t, "builder", first.ID)

	second := p.Acquire([]string{"build"}, "2")
	require.NotNil(t, second)
	assert.Equal(t, "generalist", second.ID)
}

func TestAcquire_NoneAvailable(t *testing.T) {
	p := New(manifest())

	assert.Nil(t, p.Acquire([]string{"paint"}, "1"), "no worker has the capability")

	// Single capable worker busy: second acquire yields nil, not an error.
	require.NotNil(t, p.Acquire([]string{"test"}, "1"))
	require.NotNil(t, p.Acquire([]string{"test"}, "2")) // generalist
	assert.Nil(t, p.Acquire([]string{"test"}, "3"))
}

func TestAcquire_LoadTieBreak(t *testing.T) {
	p := New([]model.WorkerEntry{
		{ID: "a", Capabilities: []string{"build"}},
		{ID: "b", Capabilities: []string{"build"}},
	})

	w := p.Acquire([]string{"build"}, "1")
	require.Equal(t, "a", w.ID, "equal surplus and load: lexical id order")
	require.NoError(t, p.Release("a"))

	// a now has one completion; b is less loaded.
	w = p.Acquire([]string{"build"}, "2")
	assert.Equal(t, "b", w.ID)
}

func TestAcquire_EmptyRequirement(t *testing.T) {
	p := New(manifest())
	w := p.Acquire(nil, "1")
	require.NotNil(t, w)
	// The least-capable idle worker is chosen first.
	assert.Equal(t, "builder", w.ID)
}

func TestRelease(t *testing.T) {
	p := New(manifest())

	w := p.Acquire([]string{"build"}, "1")
	require.NotNil(t, w)
	require.NoError(t, p.Release(w.ID))

	again := p.Acquire([]string{"build"}, "2")
	require.NotNil(t, again)
	assert.Equal(t, w.ID, again.ID)
}

func TestRelease_Errors(t *testing.T) {
	p := New(manifest())
	assert.Error(t, p.Release("nope"))
	assert.Error(t, p.Release("builder"), "double release / release while idle")
}

func TestSnapshot(t *testing.T) {
	p := New(manifest())
	p.Acquire([]string{"test"}, "9")

	snap := p.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "generalist", snap[0].ID, "manifest order preserved")

	var tester WorkerSnapshot
	for _, s := range snap {
		if s.ID == "tester" {
			tester = s
		}
	}
	assert.True(t, tester.Busy)
	assert.Equal(t, "9", tester.CurrentTask)
	assert.Equal(t, []string{"test"}, tester.Capabilities)
}

func TestNew_GeneratedIDs(t *testing.T) {
	p := New([]model.WorkerEntry{{Capabilities: []string{"build"}}})
	require.Equal(t, 1, p.Size())
	w := p.Acquire([]string{"build"}, "1")
	require.NotNil(t, w)
	assert.Contains(t, w.ID, "worker-")
}
