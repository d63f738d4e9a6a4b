package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"udl-core/domain/graph"
)

// FileStorage is the default CacheStorage backend: one
// <cacheDir>/<owner>/nodes.json file per plugin (spec.md §6 "Persisted
// state layout"). Grounded on a widely used preference for atomic
// tmp-file-then-rename writes over in-place writes for crash safety.
type FileStorage struct {
	cacheDir string
	logger   *zap.Logger
}

// NewFileStorage creates a file-backed cache store rooted at cacheDir.
func NewFileStorage(cacheDir string, logger *zap.Logger) *FileStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStorage{cacheDir: cacheDir, logger: logger}
}

func (f *FileStorage) nodesPath(owner string) string {
	return filepath.Join(f.cacheDir, owner, "nodes.json")
}

// Load reads an owner's cache file. Absence, a parse failure, or a version
// mismatch are all advisory: it returns ok=false and a nil error, since the
// cache is never the source of truth (spec.md §4.3).
func (f *FileStorage) Load(ctx context.Context, owner string) (Envelope, bool, error) {
	path := f.nodesPath(owner)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Envelope{}, false, nil
		}
		f.logger.Warn("cache file unreadable, treating as empty", zap.String("owner", owner), zap.Error(err))
		return Envelope{}, false, nil
	}

	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		f.logger.Warn("cache file unparseable, discarding", zap.String("owner", owner), zap.Error(err))
		return Envelope{}, false, nil
	}
	if env.Meta.Version != CurrentVersion {
		f.logger.Warn("cache version mismatch, discarding",
			zap.String("owner", owner), zap.Int("found", env.Meta.Version), zap.Int("want", CurrentVersion))
		return Envelope{}, false, nil
	}
	return env, true, nil
}

// Save serializes env atomically: write to nodes.json.tmp, fsync, rename
// over nodes.json. Cyclic payloads are rescued via breakCycles rather than
// failing the save outright.
func (f *FileStorage) Save(ctx context.Context, owner string, env Envelope) error {
	dir := filepath.Join(f.cacheDir, owner)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	safe := make([]graph.Node, len(env.Nodes))
	for i, n := range env.Nodes {
		n.Fields = asMap(breakCycles(n.Fields))
		safe[i] = n
	}
	env.Nodes = safe

	b, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}

	final := f.nodesPath(owner)
	tmp := final + ".tmp"

	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.Write(b); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}

func asMap(v interface{}) map[string]interface{} {
	if v == nil {
		return nil
	}
	m, _ := v.(map[string]interface{})
	return m
}
