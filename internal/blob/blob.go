// Package blob persists and retrieves the artifacts workers stage on their scratch volume
// before a step Job is reaped. The document store (internal/store) stays authoritative for a
// File's existence; this package only moves and serves the bytes.
package blob

import (
	"bytes"
	"context"
	"io"

	"github.com/h2non/filetype"
)

// Store is the typed surface the controller and workers use to move artifact bytes. A Store
// is scoped to one run by its constructor, mirroring store.RunScope: callers never pass a
// run id to its methods, only the step id and artifact name on a put, or the storage path a
// put returned on a read.
type Store interface {
	// PutArtifact stores the contents of source under name and returns the storage path
	// recorded on the resulting File document, the sniffed MIME type, and the byte count
	// written.
	PutArtifact(ctx context.Context, stepID, name string, source io.Reader) (storagePath, mimeType string, sizeBytes int64, err error)
	// GetArtifact returns a reader positioned at the start of the artifact at storagePath.
	// The caller is responsible for closing it.
	GetArtifact(ctx context.Context, storagePath string) (io.ReadCloser, error)
	// GetArtifactRange returns a reader over at most length bytes starting at offset, for
	// callers (the UI's partial-download path) that don't want the whole artifact in memory.
	GetArtifactRange(ctx context.Context, storagePath string, offset, length int64) (io.ReadCloser, error)
}

// sniffMimeType reads up to a filetype magic-number header's worth of bytes from source and
// returns the detected MIME type plus a reader that replays those bytes for the real copy.
// The caller's declared content type, if any, is never trusted for routing or storage
// decisions — only the sniffed bytes are.
func sniffMimeType(source io.Reader) (mimeType string, replay io.Reader, err error) {
	header := make([]byte, 261) // filetype's own magic-number budget
	n, err := io.ReadFull(source, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", nil, err
	}
	header = header[:n]
	kind, kerr := filetype.Match(header)
	replay = io.MultiReader(bytes.NewReader(header), source)
	if kerr != nil || kind == filetype.Unknown {
		return "application/octet-stream", replay, nil
	}
	return kind.MIME.Value, replay, nil
}
