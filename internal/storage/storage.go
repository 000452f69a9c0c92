package storage

import (
	"context"
	"io"
)

// AudioStore holds raw turn audio for later retrieval. Stored paths are
// opaque to the engine; it never reads audio back.
type AudioStore interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedURL string, err error)
	List(ctx context.Context, prefix string) (urls []string, err error)
}
