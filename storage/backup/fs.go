package backup

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FSTarget keeps backups as files in a local directory.
type FSTarget struct {
	dir string
}

var _ Target = (*FSTarget)(nil)

func NewFSTarget(dir string) *FSTarget {
	return &FSTarget{dir: dir}
}

func (t *FSTarget) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", errors.Errorf("invalid backup key %q", key)
	}
	return filepath.Join(t.dir, key), nil
}

func (t *FSTarget) Put(_ context.Context, key string, data []byte) error {
	path, err := t.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return errors.Wrap(err, "creating backup directory")
	}
	return os.WriteFile(path, data, 0o644)
}

func (t *FSTarget) List(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			keys = append(keys, e.Name())
		}
	}
	return keys, nil
}

func (t *FSTarget) Delete(_ context.Context, key string) error {
	path, err := t.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
