package taint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/crossflow/internal/catalog"
)

func TestMergeUnionsSourcesAndHistory(t *testing.T) {
	t.Parallel()

	a := New("request.args", catalog.SourceUserInput, LevelMedium)
	a.Sanitize("html.escape", map[catalog.Sink]bool{catalog.SinkMarkupInjection: true})
	b := New("os.getenv", catalog.SourceEnvironment, LevelHigh)
	b.Sanitize("html.escape", map[catalog.Sink]bool{catalog.SinkMarkupInjection: true})
	b.Sanitize("shlex.quote", map[catalog.Sink]bool{catalog.SinkShellExecution: true})

	m := Merge(a, b)
	assert.True(t, m.Sources["request.args"])
	assert.True(t, m.Sources["os.getenv"])
	assert.Equal(t, LevelHigh, m.Level)
	assert.ElementsMatch(t, []string{"html.escape", "shlex.quote"}, m.SanitizerHistory)
	// Representative origin is the lexically smallest member.
	assert.Equal(t, "os.getenv", m.Source)
}

func TestMergeIntersectsClearedSinks(t *testing.T) {
	t.Parallel()

	a := New("request.args", catalog.SourceUserInput, LevelHigh)
	a.Sanitize("shlex.quote", map[catalog.Sink]bool{catalog.SinkShellExecution: true})
	b := New("request.args", catalog.SourceUserInput, LevelHigh)

	m := Merge(a, b)
	assert.False(t, m.ClearedFor(catalog.SinkShellExecution),
		"a sink cleared on only one inflowing path must stay live")

	b.Sanitize("shlex.quote", map[catalog.Sink]bool{catalog.SinkShellExecution: true})
	m = Merge(a, b)
	assert.True(t, m.ClearedFor(catalog.SinkShellExecution))
}

func TestMergeNilIdentity(t *testing.T) {
	t.Parallel()

	a := New("request.args", catalog.SourceUserInput, LevelHigh)
	m := Merge(a, nil)
	require.NotNil(t, m)
	assert.True(t, m.Sources["request.args"])
	assert.Equal(t, LevelHigh, m.Level)

	m = Merge(nil, a)
	require.NotNil(t, m)
	assert.True(t, m.Sources["request.args"])

	assert.Nil(t, Merge(nil, nil))
}

func TestMergeDoesNotMutateOperands(t *testing.T) {
	t.Parallel()

	a := New("request.args", catalog.SourceUserInput, LevelLow)
	b := New("os.getenv", catalog.SourceEnvironment, LevelHigh)
	_ = Merge(a, b)

	assert.Len(t, a.Sources, 1)
	assert.Equal(t, LevelLow, a.Level)
	assert.Len(t, b.Sources, 1)
}

func TestParamSourceRoundTrip(t *testing.T) {
	t.Parallel()

	idx, ok := ParamIndex(ParamSource(3))
	require.True(t, ok)
	assert.Equal(t, 3, idx)

	idx, ok = ParamIndex(ParamSource(12))
	require.True(t, ok)
	assert.Equal(t, 12, idx)

	_, ok = ParamIndex("request.args")
	assert.False(t, ok)
	_, ok = ParamIndex("param:x")
	assert.False(t, ok)
}

func TestCacheFirstWriteWins(t *testing.T) {
	t.Parallel()

	c := NewCache()
	first := &FunctionTaintInfo{Module: "app", Name: "run", TaintsReturn: true}
	second := &FunctionTaintInfo{Module: "app", Name: "run"}

	got := c.Put(first)
	assert.Same(t, first, got)
	got = c.Put(second)
	assert.Same(t, first, got)

	fi, ok := c.Get("app", "run")
	require.True(t, ok)
	assert.True(t, fi.TaintsReturn)
	assert.Equal(t, 1, c.Len())
}
