// Package blob defines the key/value object storage used for conversation
// histories and other opaque payloads.
package blob

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get and Head when the key does not exist.
var ErrNotFound = errors.New("blob not found")

var ErrInvalidKey = errors.New("invalid blob key")

// Object is a stored payload with its metadata.
type Object struct {
	Body     []byte
	Metadata map[string]string
	Info     ObjectInfo
}

type ObjectInfo struct {
	Key        string
	Size       int64
	ModifiedAt time.Time
	Metadata   map[string]string
}

// Store is implemented by every blob backend.
type Store interface {
	Get(ctx context.Context, key string) (*Object, error)
	Put(ctx context.Context, key string, body []byte, metadata map[string]string) error
	Head(ctx context.Context, key string) (*ObjectInfo, error)
}

// IsNotFound reports whether err means the key does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ValidateKey rejects keys that cannot be mapped safely onto every backend.
func ValidateKey(key string) error {
	if key == "" {
		return errors.Wrap(ErrInvalidKey, "empty key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return errors.Wrapf(ErrInvalidKey, "%q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return errors.Wrapf(ErrInvalidKey, "%q", key)
		}
	}
	return nil
}

func copyMetadata(md map[string]string) map[string]string {
	if md == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
