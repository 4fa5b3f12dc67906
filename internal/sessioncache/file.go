package sessioncache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mrz1836/tether/internal/fileutil"
	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// cacheFilePermissions is the permission mode for the cache file.
const cacheFilePermissions = 0o600

var errUnknownKind = errors.New("unknown provider kind")

// FileStore keeps the record as JSON in one file.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the cache file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements Store. A malformed file is moved aside so the next
// Save starts clean.
func (s *FileStore) Load(ctx context.Context) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil //nolint:nilnil // An empty cache is not an error
	}
	if err != nil {
		return nil, tethererr.WithCause(tethererr.ErrCacheUnavailable, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil || !rec.Kind.IsValid() {
		if err == nil {
			err = fmt.Errorf("%w %q", errUnknownKind, rec.Kind)
		}
		corruptPath := fmt.Sprintf("%s.corrupt.%d", s.path, time.Now().UTC().UnixNano())
		if renameErr := os.Rename(s.path, corruptPath); renameErr != nil {
			return nil, tethererr.WithCause(tethererr.ErrCacheUnavailable, errors.Join(err, renameErr))
		}
		return nil, tethererr.WithDetails(
			tethererr.WithCause(tethererr.ErrCacheUnavailable, err),
			map[string]string{"moved_to": corruptPath},
		)
	}
	return &rec, nil
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session cache: %w", err)
	}
	if err := fileutil.WriteAtomic(s.path, data, cacheFilePermissions); err != nil {
		return tethererr.WithCause(tethererr.ErrCacheUnavailable, err)
	}
	return nil
}

// Clear implements Store.
func (s *FileStore) Clear(_ context.Context) error {
	if err := fileutil.RemoveIfExists(s.path); err != nil {
		return tethererr.WithCause(tethererr.ErrCacheUnavailable, err)
	}
	return nil
}
