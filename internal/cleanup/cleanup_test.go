package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPruneEmptyDirs(t *testing.T) {
	root := t.TempDir()

	emptyNested := filepath.Join(root, "uploader-a", "season", "extras")
	withFile := filepath.Join(root, "uploader-b")
	pending := filepath.Join(withFile, "ep1.wav")

	require.NoError(t, os.MkdirAll(emptyNested, 0o755))
	require.NoError(t, os.MkdirAll(withFile, 0o755))
	require.NoError(t, os.WriteFile(pending, []byte("audio"), 0o600))

	require.NoError(t, PruneEmptyDirs(context.Background(), root))

	assert.NoDirExists(t, filepath.Join(root, "uploader-a"))
	assert.DirExists(t, withFile)
	assert.FileExists(t, pending)
	assert.DirExists(t, root)
}

func TestPruneEmptyDirs_MissingRoot(t *testing.T) {
	assert.NoError(t, PruneEmptyDirs(context.Background(), filepath.Join(t.TempDir(), "missing")))
}
