package blob

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

const metaSuffix = ".meta.json"

// FileStore keeps each object as a file under a root directory, with its
// metadata in a JSON sidecar next to it.
type FileStore struct {
	root     string
	compress bool
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

var _ Store = (*FileStore)(nil)

type FileStoreOption func(*FileStore)

// WithCompression stores bodies zstd-compressed. Reads detect the encoding
// from the sidecar, so stores may switch the option at any time.
func WithCompression(enabled bool) FileStoreOption {
	return func(f *FileStore) { f.compress = enabled }
}

type fileMeta struct {
	Metadata    map[string]string `json:"metadata"`
	Compression string            `json:"compression,omitempty"`
	Size        int64             `json:"size"`
}

func NewFileStore(root string, opts ...FileStoreOption) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating blob root %s", root)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating zstd encoder")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating zstd decoder")
	}
	f := &FileStore{root: root, enc: enc, dec: dec}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// path maps key under root. Keys whose cleaned path leaves root are rejected.
func (f *FileStore) path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	p := filepath.Join(f.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(f.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", errors.Wrapf(ErrInvalidKey, "%q escapes the store root", key)
	}
	return p, nil
}

func (f *FileStore) Get(ctx context.Context, key string) (*Object, error) {
	info, meta, err := f.head(key)
	if err != nil {
		return nil, err
	}
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "reading %s", key)
	}
	body := raw
	if meta.Compression == "zstd" {
		body, err = f.dec.DecodeAll(raw, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "decompressing %s", key)
		}
	}
	return &Object{Body: body, Metadata: info.Metadata, Info: *info}, nil
}

func (f *FileStore) Put(ctx context.Context, key string, body []byte, metadata map[string]string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrapf(err, "creating directory for %s", key)
	}

	meta := fileMeta{Metadata: copyMetadata(metadata), Size: int64(len(body))}
	data := body
	if f.compress {
		data = f.enc.EncodeAll(body, nil)
		meta.Compression = "zstd"
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, "encoding metadata")
	}

	if err := writeAtomic(p, data); err != nil {
		return errors.Wrapf(err, "writing %s", key)
	}
	if err := writeAtomic(p+metaSuffix, metaBytes); err != nil {
		return errors.Wrapf(err, "writing metadata for %s", key)
	}
	return nil
}

func (f *FileStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	info, _, err := f.head(key)
	return info, err
}

func (f *FileStore) head(key string) (*ObjectInfo, *fileMeta, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, nil, err
	}
	st, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, errors.Wrapf(err, "stat %s", key)
	}
	meta := &fileMeta{Size: st.Size()}
	raw, err := os.ReadFile(p + metaSuffix)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, meta); err != nil {
			return nil, nil, errors.Wrapf(err, "decoding metadata for %s", key)
		}
	case !os.IsNotExist(err):
		return nil, nil, errors.Wrapf(err, "reading metadata for %s", key)
	}
	return &ObjectInfo{
		Key:        key,
		Size:       meta.Size,
		ModifiedAt: st.ModTime(),
		Metadata:   copyMetadata(meta.Metadata),
	}, meta, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
