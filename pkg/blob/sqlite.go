package blob

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps objects in a single sqlite table.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path. Use ":memory:" for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate")
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS blobs (
		key TEXT PRIMARY KEY,
		body BLOB NOT NULL,
		metadata_json TEXT NOT NULL,
		modified_at TEXT NOT NULL
	);`)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*Object, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	var (
		body       []byte
		mdJSON     string
		modifiedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT body, metadata_json, modified_at FROM blobs WHERE key = ?`, key,
	).Scan(&body, &mdJSON, &modifiedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "get %s", key)
	}
	info, err := decodeInfo(key, int64(len(body)), mdJSON, modifiedAt)
	if err != nil {
		return nil, err
	}
	return &Object{Body: body, Metadata: info.Metadata, Info: *info}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, body []byte, metadata map[string]string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	mdJSON, err := json.Marshal(copyMetadata(metadata))
	if err != nil {
		return errors.Wrap(err, "marshal metadata")
	}
	if body == nil {
		body = []byte{}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO blobs (key, body, metadata_json, modified_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET body = excluded.body,
			metadata_json = excluded.metadata_json,
			modified_at = excluded.modified_at
	`, key, body, string(mdJSON), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errors.Wrapf(err, "put %s", key)
	}
	return nil
}

func (s *SQLiteStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	var (
		size       int64
		mdJSON     string
		modifiedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT length(body), metadata_json, modified_at FROM blobs WHERE key = ?`, key,
	).Scan(&size, &mdJSON, &modifiedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "head %s", key)
	}
	return decodeInfo(key, size, mdJSON, modifiedAt)
}

func decodeInfo(key string, size int64, mdJSON, modifiedAt string) (*ObjectInfo, error) {
	md := map[string]string{}
	if err := json.Unmarshal([]byte(mdJSON), &md); err != nil {
		return nil, errors.Wrapf(err, "decode metadata for %s", key)
	}
	ts, err := time.Parse(time.RFC3339Nano, modifiedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "parse modified_at for %s", key)
	}
	return &ObjectInfo{Key: key, Size: size, ModifiedAt: ts, Metadata: md}, nil
}
