package blob

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
)

type StoreType string

func (t StoreType) String() string { return string(t) }

const (
	LocalStoreType StoreType = "local"
	GCSStoreType   StoreType = "gcs"
)

func StoreTypes() []string {
	return []string{LocalStoreType.String(), GCSStoreType.String()}
}

// Config selects and configures a Store backend, mirroring the teacher's BlobStoreConfig
// shape: one type selector plus one settings struct per backend.
type Config struct {
	StoreType     string
	LocalStoreDir string
	GCSBucket     string
}

// Factory builds the Store for one run from Config, opening a GCS client lazily only when
// the GCS backend is selected.
func Factory(ctx context.Context, cfg Config, runID RunPathID) (Store, error) {
	switch StoreType(strings.ToLower(cfg.StoreType)) {
	case LocalStoreType:
		return NewLocalStore(cfg.LocalStoreDir, runID), nil
	case GCSStoreType:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("error creating GCS client: %w", err)
		}
		return NewGCSStore(client, cfg.GCSBucket, runID), nil
	default:
		return nil, fmt.Errorf("error unsupported blob store type: %v", cfg.StoreType)
	}
}
