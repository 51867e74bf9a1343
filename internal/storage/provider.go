package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrBadKey is returned for object keys that are absolute or escape the
// storage root. Keys are pool-generated ("exports/<job-id>.<ext>") but the
// providers validate anyway.
var ErrBadKey = errors.New("storage: invalid object key")

// Provider stores finished export artifacts. The pool streams encoder output
// into StreamToFile while the job runs, reads it back through OpenFile when
// attaching it to a notification, and embeds GetDownloadURL in the
// notification otherwise.
type Provider interface {
	// StreamToFile returns a writer for the artifact at key. Bytes are
	// forwarded to the destination as they arrive; the error channel
	// receives exactly one value (or nil) once the transfer settles.
	StreamToFile(ctx context.Context, key string) (io.WriteCloser, <-chan error)

	// OpenFile opens a stored artifact for reading.
	OpenFile(ctx context.Context, key string) (io.ReadCloser, error)

	// GetDownloadURL returns a URL a recipient can fetch the artifact from.
	GetDownloadURL(key string) string
}

// cleanKey normalizes an object key and rejects anything that would resolve
// outside the storage root.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", ErrBadKey
	}
	cleaned := path.Clean(key)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrBadKey
	}
	return cleaned, nil
}
