// Package artifacts places synthesized audio on disk and optionally mirrors
// finished files to a NATS JetStream object store.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dir resolves artifact names to files under a single output directory.
type Dir struct {
	root string
}

func NewDir(root string) (*Dir, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		root = filepath.Join(os.TempDir(), "soundboard")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) Root() string { return d.root }

// Resolve returns <root>/<name>. Names must be plain file names.
func (d *Dir) Resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return filepath.Join(d.root, name), nil
}
