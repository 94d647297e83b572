// Package backup keeps timestamped copies of the grade sheet before it is overwritten.
package backup

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
)

const (
	DefaultPrefix = "backup_"
	DefaultMax    = 10
	stampLayout   = "20060102_150405"
)

// Target stores backup blobs by key.
type Target interface {
	Put(ctx context.Context, key string, data []byte) error
	// List returns the keys starting with prefix, in any order.
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

type Manager struct {
	Target Target
	// Max is how many backups are kept; older ones are pruned after each snapshot.
	Max    int
	Prefix string

	logger  core.Logger
	nowFunc func() time.Time
}

func NewManager(target Target, max int, logger core.Logger) *Manager {
	if max <= 0 {
		max = DefaultMax
	}
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Manager{
		Target:  target,
		Max:     max,
		Prefix:  DefaultPrefix,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// NewFromConfig returns the manager described by conf.Backup, or nil when backups are disabled.
func NewFromConfig(ctx context.Context, conf *core.Config, logger core.Logger) (*Manager, error) {
	if !conf.Backup.Enabled {
		return nil, nil
	}
	var target Target
	switch conf.Backup.Driver {
	case "fs", "":
		target = NewFSTarget(conf.Backup.Dir)
	case "s3":
		t, err := NewS3Target(ctx, conf.Backup.S3)
		if err != nil {
			return nil, errors.Wrap(err, "configuring s3 backups")
		}
		target = t
	case "memory":
		target = NewMemoryTarget()
	default:
		return nil, errors.Errorf("unknown backup driver %q", conf.Backup.Driver)
	}
	return NewManager(target, conf.Backup.Max, logger), nil
}

// Snapshot copies the file at path to the target as <prefix>YYYYMMDD_HHMMSS<ext> and prunes old copies.
func (m *Manager) Snapshot(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "reading file to back up")
	}

	existing, err := m.Target.List(ctx, m.Prefix)
	if err != nil {
		return "", errors.Wrap(err, "listing backups")
	}
	taken := make(map[string]struct{}, len(existing))
	for _, k := range existing {
		taken[k] = struct{}{}
	}

	ext := filepath.Ext(path)
	stamp := m.Prefix + m.nowFunc().Format(stampLayout)
	key := stamp + ext
	for n := 2; ; n++ {
		if _, dup := taken[key]; !dup {
			break
		}
		key = stamp + "_" + strconv.Itoa(n) + ext
	}

	if err := m.Target.Put(ctx, key, data); err != nil {
		return "", errors.Wrapf(err, "storing backup %s", key)
	}
	m.logger.Info("backup created", map[string]interface{}{"key": key, "bytes": len(data)})

	if err := m.prune(ctx); err != nil {
		m.logger.Warn("pruning backups", err)
	}
	return key, nil
}

// List returns the backup keys, newest first.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	keys, err := m.Target.List(ctx, m.Prefix)
	if err != nil {
		return nil, errors.Wrap(err, "listing backups")
	}
	sort.Slice(keys, func(i, j int) bool { return newer(keys[i], keys[j]) })
	return keys, nil
}

func (m *Manager) prune(ctx context.Context) error {
	keys, err := m.List(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys[min(m.Max, len(keys)):] {
		if err := m.Target.Delete(ctx, key); err != nil {
			return errors.Wrapf(err, "deleting backup %s", key)
		}
		m.logger.Debug("old backup deleted", map[string]interface{}{"key": key})
	}
	return nil
}

// newer orders keys by timestamp, then by collision suffix.
func newer(a, b string) bool {
	sa, na := splitKey(a)
	sb, nb := splitKey(b)
	if sa != sb {
		return sa > sb
	}
	return na > nb
}

func splitKey(key string) (stamp string, n int) {
	key = strings.TrimSuffix(key, filepath.Ext(key))
	n = 1
	if i := strings.LastIndex(key, "_"); i > 0 && len(key)-i-1 < len("150405") {
		if v, err := strconv.Atoi(key[i+1:]); err == nil {
			return key[:i], v
		}
	}
	return key, n
}
