package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalBackend keeps blobs on the filesystem below Root.
type LocalBackend struct {
	root string
}

func NewLocalBackend(root string) (*LocalBackend, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &LocalBackend{root: abs}, nil
}

func (b *LocalBackend) Root() string {
	return b.root
}

const stagingDir = ".staging"

// Put writes into a temp file under the staging directory, syncs it and
// hard-links it into place. The link fails if the key exists, so nothing is
// overwritten and readers never see a partial file. On a taken key the next
// candidate from keys is tried.
func (b *LocalBackend) Put(ctx context.Context, keys KeyFunc, body io.Reader, maxBytes int64) (PutResult, error) {
	if err := ctx.Err(); err != nil {
		return PutResult{}, err
	}
	staging := filepath.Join(b.root, stagingDir)
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return PutResult{}, fmt.Errorf("create staging dir: %w", err)
	}

	tmp, err := os.CreateTemp(staging, ".upload-*")
	if err != nil {
		return PutResult{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	closed := false
	defer func() {
		if !closed {
			_ = tmp.Close()
		}
		_ = os.Remove(tmpName)
	}()

	sniff := newSniffer(body)
	size, err := copyLimited(tmp, sniff, maxBytes)
	if err != nil {
		return PutResult{}, err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return PutResult{}, err
	}
	if err := tmp.Sync(); err != nil {
		return PutResult{}, err
	}
	closed = true
	if err := tmp.Close(); err != nil {
		return PutResult{}, err
	}

	for range MaxKeyAttempts {
		if err := ctx.Err(); err != nil {
			return PutResult{}, err
		}
		key := keys()
		if err := ValidateKey(key); err != nil {
			return PutResult{}, err
		}
		target := filepath.Join(b.root, filepath.FromSlash(key))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return PutResult{}, fmt.Errorf("create upload dir: %w", err)
		}
		err := os.Link(tmpName, target)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return PutResult{}, fmt.Errorf("publish upload: %w", err)
		}
		return PutResult{Key: key, Size: size, ContentType: sniff.ContentType()}, nil
	}
	return PutResult{}, ErrExists
}

// Open resolves key through os.Root, which refuses any path, symlinks
// included, that leaves the storage root.
func (b *LocalBackend) Open(_ context.Context, key string) (*Object, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	root, err := os.OpenRoot(b.root)
	if err != nil {
		return nil, fmt.Errorf("open storage root: %w", err)
	}
	defer root.Close()

	file, err := root.Open(filepath.FromSlash(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if !info.Mode().IsRegular() {
		_ = file.Close()
		return nil, ErrNotFound
	}
	return &Object{Body: file, Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (b *LocalBackend) Delete(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	root, err := os.OpenRoot(b.root)
	if err != nil {
		return fmt.Errorf("open storage root: %w", err)
	}
	defer root.Close()
	if err := root.Remove(filepath.FromSlash(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
