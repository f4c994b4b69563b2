package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// FSStore stores blobs as files under a root directory.
type FSStore struct {
	root string
}

// NewFS creates a filesystem blob store rooted at dir, creating it if
// needed.
func NewFS(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "blob: create root %s", dir)
	}
	return &FSStore{root: dir}, nil
}

func (s *FSStore) Download(ctx context.Context, ref string) ([]byte, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "blob: read %s", ref)
	}
	return data, nil
}

func (s *FSStore) Upload(ctx context.Context, ref string, data []byte) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "blob: create dir for %s", ref)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "blob: write %s", ref)
	}
	return nil
}

func (s *FSStore) Close() error { return nil }

// resolve joins the ref under root and rejects path escapes.
func (s *FSStore) resolve(ref string) (string, error) {
	cleaned := filepath.Clean(ref)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || filepath.IsAbs(cleaned) {
		return "", eris.Errorf("blob: invalid ref %q", ref)
	}
	return filepath.Join(s.root, cleaned), nil
}
