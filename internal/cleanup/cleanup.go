package cleanup

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/italolelis/ytaudio_archiver/internal/logctx"
)

// PruneEmptyDirs removes every directory below root that holds no files,
// deepest first. root itself is kept.
func PruneEmptyDirs(ctx context.Context, root string) error {
	logger := logctx.LoggerFromContext(ctx)

	var dirs []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			return err
		}

		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}

		return nil
	})
	if err != nil {
		return err
	}

	// Longer paths first so children are removed before their parents.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			logger.Error("Failed to read directory", "dir", dir, "err", err)

			return err
		}

		if len(entries) > 0 {
			continue
		}

		if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
			logger.Error("Failed to remove empty directory", "dir", dir, "err", err)

			return err
		}

		logger.Debug("Removed empty directory", "dir", dir)
	}

	return nil
}
