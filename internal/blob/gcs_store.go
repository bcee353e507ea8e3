package blob

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"

	"github.com/playbookrun/controller/common/gerror"
)

// GCSStore is the production Store, backed by a single Cloud Storage bucket shared by every
// run; keys are namespaced run/step/name, same as LocalStore.
type GCSStore struct {
	client *storage.Client
	bucket string
	runID  RunPathID
}

func NewGCSStore(client *storage.Client, bucket string, runID RunPathID) *GCSStore {
	return &GCSStore{client: client, bucket: bucket, runID: runID}
}

func (s *GCSStore) PutArtifact(ctx context.Context, stepID, name string, source io.Reader) (string, string, int64, error) {
	key, err := artifactKey(string(s.runID), stepID, name)
	if err != nil {
		return "", "", 0, err
	}
	mimeType, replay, err := sniffMimeType(source)
	if err != nil {
		return "", "", 0, errors.Wrap(err, "error sniffing artifact mime type")
	}
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = mimeType
	n, err := io.Copy(w, replay)
	if err != nil {
		_ = w.Close()
		return "", "", 0, errors.Wrapf(err, "error writing object %s", key)
	}
	if err := w.Close(); err != nil {
		return "", "", 0, errors.Wrapf(err, "error closing object %s", key)
	}
	return key, mimeType, n, nil
}

func (s *GCSStore) GetArtifact(ctx context.Context, storagePath string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(storagePath).NewReader(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return nil, gerror.NewErrNotFound("artifact not found").Wrap(err).EDetail("path", storagePath)
		}
		return nil, errors.Wrapf(err, "error opening object %s", storagePath)
	}
	return r, nil
}

func (s *GCSStore) GetArtifactRange(ctx context.Context, storagePath string, offset, length int64) (io.ReadCloser, error) {
	if length <= 0 {
		length = -1 // storage.Object.NewRangeReader: negative length reads to EOF
	}
	r, err := s.client.Bucket(s.bucket).Object(storagePath).NewRangeReader(ctx, offset, length)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return nil, gerror.NewErrNotFound("artifact not found").Wrap(err).EDetail("path", storagePath)
		}
		return nil, errors.Wrapf(err, "error opening object %s", storagePath)
	}
	return r, nil
}
