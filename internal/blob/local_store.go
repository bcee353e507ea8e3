package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/playbookrun/controller/common/gerror"
)

// LocalStore is a directory-backed Store for local development and tests. Keys are relative
// paths rooted at a single directory; GCSStore is the production backend.
type LocalStore struct {
	runID RunPathID
	root  string
}

// RunPathID is the path-safe identifier a LocalStore/GCSStore namespaces artifacts under.
// It is always a run id's string form, kept as a distinct type so a caller can't pass a
// step id or other identifier by mistake.
type RunPathID string

func NewLocalStore(root string, runID RunPathID) *LocalStore {
	return &LocalStore{runID: runID, root: root}
}

func (s *LocalStore) PutArtifact(ctx context.Context, stepID, name string, source io.Reader) (string, string, int64, error) {
	key, err := artifactKey(string(s.runID), stepID, name)
	if err != nil {
		return "", "", 0, err
	}
	mimeType, replay, err := sniffMimeType(source)
	if err != nil {
		return "", "", 0, errors.Wrap(err, "error sniffing artifact mime type")
	}
	blobPath := s.path(key)
	if err := os.MkdirAll(filepath.Dir(blobPath), 0700); err != nil {
		return "", "", 0, errors.Wrap(err, "error making blob directory")
	}
	f, err := os.Create(blobPath)
	if err != nil {
		return "", "", 0, errors.Wrapf(err, "error opening blob %s for writing", blobPath)
	}
	defer f.Close()
	n, err := io.Copy(f, replay)
	if err != nil {
		return "", "", 0, errors.Wrapf(err, "error writing blob %s", blobPath)
	}
	if err := f.Sync(); err != nil {
		return "", "", 0, errors.Wrapf(err, "error syncing blob %s", blobPath)
	}
	return key, mimeType, n, nil
}

func (s *LocalStore) GetArtifact(ctx context.Context, storagePath string) (io.ReadCloser, error) {
	if strings.HasPrefix(storagePath, "/") || strings.Contains(storagePath, "..") {
		return nil, gerror.NewErrValidationFailed("storage path must be a relative, non-traversing key")
	}
	f, err := os.Open(s.path(storagePath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, gerror.NewErrNotFound("artifact not found").Wrap(err).EDetail("path", storagePath)
		}
		return nil, errors.Wrapf(err, "error opening blob %s", storagePath)
	}
	return f, nil
}

func (s *LocalStore) GetArtifactRange(ctx context.Context, storagePath string, offset, length int64) (io.ReadCloser, error) {
	if strings.HasPrefix(storagePath, "/") || strings.Contains(storagePath, "..") {
		return nil, gerror.NewErrValidationFailed("storage path must be a relative, non-traversing key")
	}
	f, err := os.Open(s.path(storagePath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, gerror.NewErrNotFound("artifact not found").Wrap(err).EDetail("path", storagePath)
		}
		return nil, errors.Wrapf(err, "error opening blob %s", storagePath)
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return nil, errors.Wrapf(err, "error seeking blob %s to offset %d", storagePath, offset)
		}
	}
	if length > 0 {
		return newLimitReaderCloser(f, length), nil
	}
	return f, nil
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// artifactKey builds the run/step/name key every backend uses, rejecting path-traversal
// attempts in a worker-declared artifact name.
func artifactKey(runID, stepID, name string) (string, error) {
	if strings.Contains(name, "..") || strings.HasPrefix(name, "/") {
		return "", gerror.NewErrValidationFailed("artifact name must not contain path traversal")
	}
	return fmt.Sprintf("%s/%s/%s", runID, stepID, name), nil
}
