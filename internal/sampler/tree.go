package sampler

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/cfstop/cfstop/internal/model"
)

// ErrCgroup marks a failure to enumerate the cgroup hierarchy root; no
// tree can be built without it.
var ErrCgroup = errors.New("cannot read cgroup hierarchy")

// BuildTree walks the cpuacct hierarchy rooted at root and returns a
// fresh tree. filepath.WalkDir visits parents before children, so every
// non-root group finds its parent already linked. Groups past the depth
// cap are skipped along with their subtrees. A single unreadable
// directory is logged and skipped; only failing to enumerate the root
// itself is an error.
func BuildTree(root string, numCPU int, prev *model.Tree, log *slog.Logger) (*model.Tree, error) {
	t := model.NewTree(numCPU)
	t.Insert("/", prev)

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == filepath.Clean(root) {
				return fmt.Errorf("%w: %s: %v", ErrCgroup, root, err)
			}
			log.Warn("skip unreadable cgroup dir", "path", p, "err", err)
			return fs.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		gp := groupPath(root, p)
		if gp == "/" {
			return nil // root pre-inserted
		}
		if _, ok := t.Insert(gp, prev); !ok {
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// groupPath converts an absolute walk path into the root-relative,
// leading-slash group identifier.
func groupPath(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." {
		return "/"
	}
	return "/" + strings.ReplaceAll(rel, string(filepath.Separator), "/")
}
