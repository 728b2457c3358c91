package sampler

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfstop/cfstop/internal/model"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mkdirs(t *testing.T, root string, paths ...string) {
	t.Helper()
	for _, p := range paths {
		require.NoError(t, os.MkdirAll(filepath.Join(root, p), 0o755))
	}
}

func TestBuildTree(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "docker/abc", "docker/def", "system")

	tr, err := BuildTree(root, 2, nil, discard())
	require.NoError(t, err)

	require.NotNil(t, tr.Lookup("/"))
	require.NotNil(t, tr.Lookup("/docker"))
	require.NotNil(t, tr.Lookup("/docker/abc"))
	require.NotNil(t, tr.Lookup("/system"))
	assert.Len(t, tr.Groups, 5)

	abc := tr.Lookup("/docker/abc")
	assert.Same(t, tr.Lookup("/docker"), abc.Parent)
	assert.Equal(t, 2, abc.Level)
	assert.Equal(t, "abc", abc.Name)
}

func TestBuildTreeMissingRoot(t *testing.T) {
	_, err := BuildTree(filepath.Join(t.TempDir(), "nope"), 1, nil, discard())
	assert.ErrorIs(t, err, ErrCgroup)
}

func TestRebuildIdentity(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "docker/abc", "gone")

	tr, err := BuildTree(root, 1, nil, discard())
	require.NoError(t, err)

	g := tr.Lookup("/docker/abc")
	g.Fold = true
	g.LastStamp = 42
	g.LastPerCPU = []uint64{7}
	g.Usage = model.Known(100)

	require.NoError(t, os.RemoveAll(filepath.Join(root, "gone")))

	tr2, err := BuildTree(root, 1, tr, discard())
	require.NoError(t, err)

	ng := tr2.Lookup("/docker/abc")
	require.NotNil(t, ng)
	assert.NotSame(t, g, ng)
	assert.True(t, ng.Fold)
	assert.Equal(t, int64(42), ng.LastStamp)
	assert.Equal(t, []uint64{7}, ng.LastPerCPU)
	assert.False(t, ng.Usage.Known, "derived fields reset until repopulated")

	assert.Nil(t, tr2.Lookup("/gone"), "vanished path dropped with its history")
}

func TestBuildTreeDepthCap(t *testing.T) {
	root := t.TempDir()
	deep := root
	for i := 0; i < 40; i++ {
		deep = filepath.Join(deep, "d")
	}
	require.NoError(t, os.MkdirAll(deep, 0o755))

	tr, err := BuildTree(root, 1, nil, discard())
	require.NoError(t, err)

	// Root plus 36 linked levels.
	assert.Len(t, tr.Groups, model.MaxDepth+1)
}
