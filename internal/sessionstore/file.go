// File: internal/sessionstore/file.go
package sessionstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/checkout-cli/api/schemas"
)

// FileStore keeps one JSON blob per session under a single directory.
// Writes go through a temp file plus rename, so readers never observe a
// partially written blob.
type FileStore struct {
	dir string
	log *zap.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the session directory if needed and returns a store
// rooted at it.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory %s: %w", dir, err)
	}
	return &FileStore{
		dir: dir,
		log: logger.Named("session_store"),
	}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, SanitizeName(name)+".json")
}

func (s *FileStore) Save(ctx context.Context, name string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.path(name)
	tmp, err := os.CreateTemp(s.dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp session file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to commit session file: %w", err)
	}

	s.log.Info("Session saved.", zap.String("name", SanitizeName(name)), zap.Int("bytes", len(blob)))
	return nil
}

func (s *FileStore) Load(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read session %q: %w", name, err)
	}
	return blob, nil
}

func (s *FileStore) List(ctx context.Context) ([]schemas.SessionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list session directory: %w", err)
	}

	var sessions []schemas.SessionInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		sessions = append(sessions, schemas.SessionInfo{
			Name:       strings.TrimSuffix(entry.Name(), ".json"),
			ModifiedAt: info.ModTime(),
			SizeBytes:  info.Size(),
		})
	}

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Name < sessions[j].Name })
	return sessions, nil
}

func (s *FileStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(s.path(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("session %q: %w", name, ErrNotFound)
		}
		return fmt.Errorf("failed to delete session %q: %w", name, err)
	}
	s.log.Info("Session deleted.", zap.String("name", SanitizeName(name)))
	return nil
}
