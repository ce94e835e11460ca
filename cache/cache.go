package cache

import (
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/lmittmann/tint"
	jsoniter "github.com/json-iterator/go"
	sha256 "github.com/minio/sha256-simd"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	PathHashesFile = ".path_hashes.json"
	PathAmpsFile   = ".path_amps.json"
	MaxAmpsFile    = ".max_amps.json"
)

// Options control how far cached tables are trusted.
type Options struct {
	// Force ignores every cached table.
	Force bool
	// TrustStale loads cached tables without checking the epoch.
	TrustStale bool
}

type envelope struct {
	Epoch string              `json:"epoch"`
	Data  jsoniter.RawMessage `json:"data"`
}

// Store persists derived tables of one analysis directory.
type Store struct {
	dir    string
	epoch  string
	opts   Options
	logger *slog.Logger
	mu     sync.Mutex
}

// NewStore opens the cache of dir. The epoch is derived from the listing of
// the given sources, relative to dir.
func NewStore(dir string, sources []string, opts Options, logger *slog.Logger) (*Store, error) {
	epoch, err := Epoch(dir, sources)
	if err != nil {
		return nil, err
	}
	return &Store{
		dir:    dir,
		epoch:  epoch,
		opts:   opts,
		logger: logger.With("dir", dir),
	}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) Epoch() string {
	return s.epoch
}

// Epoch digests the names and sizes of every file under the sources.
func Epoch(dir string, sources []string) (string, error) {
	var lines []string
	for _, src := range sources {
		root := filepath.Join(dir, src)
		if _, err := os.Stat(root); os.IsNotExist(err) {
			lines = append(lines, fmt.Sprintf("%s\x00missing", src))
			continue
		}
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			lines = append(lines, fmt.Sprintf("%s\x00%d", filepath.ToSlash(rel), info.Size()))
			return nil
		})
		if err != nil {
			return "", errors.Errorf("Failed to list cache source %s: %s", root, err)
		}
	}
	sort.Strings(lines)

	h := sha256.New()
	for _, l := range lines {
		h.Write([]byte(l))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Load decodes the cached table name into v. It reports false when the table
// has to be recomputed.
func (s *Store) Load(name string, v interface{}) (bool, error) {
	if s.opts.Force {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p := filepath.Join(s.dir, name)
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Errorf("Failed to read cache %s: %s", p, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Data == nil {
		s.logger.Warn("Discarding unreadable cache", "file", name, tint.Err(err))
		return false, nil
	}
	if !s.opts.TrustStale && env.Epoch != s.epoch {
		s.logger.Info("Cache is stale", "file", name)
		return false, nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		s.logger.Warn("Discarding undecodable cache", "file", name, tint.Err(err))
		return false, nil
	}
	return true, nil
}

// Save writes v as the cached table name, replacing any previous version.
func (s *Store) Save(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.WithMessage(err, "Failed to encode cache "+name)
	}
	out, err := json.Marshal(envelope{Epoch: s.epoch, Data: data})
	if err != nil {
		return errors.WithMessage(err, "Failed to encode cache "+name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return save(out, filepath.Join(s.dir, name))
}

// Clear removes the cached tables so the next run recomputes them.
func (s *Store) Clear(names ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		if err := os.Remove(filepath.Join(s.dir, n)); err != nil && !os.IsNotExist(err) {
			return errors.Errorf("Failed to remove cache %s: %s", n, err)
		}
	}
	return nil
}

func save(data []byte, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Errorf("Failed to create %s: %s", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Errorf("Failed to write %s: %s", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Errorf("Failed to write %s: %s", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return errors.Errorf("Failed to replace %s: %s", path, err)
	}
	return nil
}
