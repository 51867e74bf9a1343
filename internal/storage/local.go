package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// LocalProvider writes artifacts under a base directory. Single-node
// deployments and tests use it; anything multi-node wants S3.
type LocalProvider struct {
	basePath string
}

func NewLocalProvider(basePath string) *LocalProvider {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		slog.Error("Failed to ensure artifact directory exists", "path", basePath, "error", err)
	}
	return &LocalProvider{
		basePath: basePath,
	}
}

func (p *LocalProvider) StreamToFile(ctx context.Context, key string) (io.WriteCloser, <-chan error) {
	errChan := make(chan error, 1)

	fail := func(err error) (io.WriteCloser, <-chan error) {
		errChan <- err
		close(errChan)
		return nil, errChan
	}

	cleaned, err := cleanKey(key)
	if err != nil {
		return fail(fmt.Errorf("%w: %q", err, key))
	}

	fullPath := filepath.Join(p.basePath, filepath.FromSlash(cleaned))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fail(fmt.Errorf("failed to create artifact directory: %w", err))
	}

	f, err := os.Create(fullPath)
	if err != nil {
		return fail(fmt.Errorf("failed to create artifact %s: %w", fullPath, err))
	}

	// The wrapper settles the error channel when the pool closes the writer.
	return &localWriter{
		f:       f,
		errChan: errChan,
		path:    fullPath,
	}, errChan
}

func (p *LocalProvider) OpenFile(ctx context.Context, key string) (io.ReadCloser, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, key)
	}
	return os.Open(filepath.Join(p.basePath, filepath.FromSlash(cleaned)))
}

func (p *LocalProvider) GetDownloadURL(key string) string {
	abs, err := filepath.Abs(filepath.Join(p.basePath, filepath.FromSlash(key)))
	if err != nil {
		return "file://" + filepath.Join(p.basePath, key)
	}
	return "file://" + abs
}

type localWriter struct {
	f       *os.File
	errChan chan error
	path    string
}

func (w *localWriter) Write(p []byte) (n int, err error) {
	return w.f.Write(p)
}

func (w *localWriter) Close() error {
	err := w.f.Close()
	if err == nil {
		slog.Info("Artifact written", "path", w.path)
	}
	w.errChan <- err
	close(w.errChan)
	return err
}
