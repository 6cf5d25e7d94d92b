// Package storage persists uploaded media under keys of the form
// uploads/<type>/<timestamp>_<suffix><ext> and serves them back.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrExists     = errors.New("object already exists")
	ErrEmpty      = errors.New("upload is empty")
	ErrTooLarge   = errors.New("upload exceeds size limit")
	ErrInvalidKey = errors.New("invalid object key")
)

const (
	UploadPrefix = "uploads"
	sniffLen     = 3072
	maxExtLen    = 10

	// MaxKeyAttempts bounds how many generated keys Put tries before giving
	// up with ErrExists.
	MaxKeyAttempts = 5
)

// KeyFunc yields a candidate key on every call.
type KeyFunc func() string

// Backend stores blobs. Put reads body once, then publishes it under the
// first key from keys that is not taken. It is all-or-nothing and never
// replaces an existing object.
type Backend interface {
	Put(ctx context.Context, keys KeyFunc, body io.Reader, maxBytes int64) (PutResult, error)
	Open(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
}

type PutResult struct {
	Key         string
	Size        int64
	ContentType string
}

// FixedKey is a KeyFunc that always proposes key.
func FixedKey(key string) KeyFunc {
	return func() string { return key }
}

type Object struct {
	Body    io.ReadSeekCloser
	Size    int64
	ModTime time.Time
}

// NewKey builds a fresh storage key for an upload of the given type.
func NewKey(fileType, originalName string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return path.Join(UploadPrefix, fileType, fmt.Sprintf("%s_%s%s", now.Format("20060102_150405"), suffix, cleanExt(originalName)))
}

func cleanExt(name string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")))
	if len(ext) < 2 || len(ext) > maxExtLen {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// ValidateKey accepts only slash-separated relative paths whose segments do
// not start with a dot.
func ValidateKey(key string) error {
	if key == "" || strings.ContainsAny(key, "\\\x00:") || !fs.ValidPath(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, segment := range strings.Split(key, "/") {
		if strings.HasPrefix(segment, ".") {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".mp4":  "video/mp4",
}

// ContentTypeFor maps a key's extension to the Content-Type used when serving.
func ContentTypeFor(key string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(key))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// sniffer keeps the first bytes that pass through it for content detection.
type sniffer struct {
	r    io.Reader
	head bytes.Buffer
}

func newSniffer(r io.Reader) *sniffer {
	return &sniffer{r: r}
}

func (s *sniffer) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if room := sniffLen - s.head.Len(); room > 0 && n > 0 {
		s.head.Write(p[:min(n, room)])
	}
	return n, err
}

func (s *sniffer) ContentType() string {
	return mimetype.Detect(s.head.Bytes()).String()
}

// copyLimited copies at most maxBytes from src. It reports ErrTooLarge when
// src holds more and ErrEmpty when it holds nothing.
func copyLimited(dst io.Writer, src io.Reader, maxBytes int64) (int64, error) {
	n, err := io.Copy(dst, io.LimitReader(src, maxBytes+1))
	if err != nil {
		return n, err
	}
	if n > maxBytes {
		return n, ErrTooLarge
	}
	if n == 0 {
		return 0, ErrEmpty
	}
	return n, nil
}
