// Package history loads and saves conversation logs through a blob.Store.
package history

import (
	"context"

	"github.com/go-go-golems/parley/pkg/blob"
	"github.com/go-go-golems/parley/pkg/compaction"
	"github.com/go-go-golems/parley/pkg/turns"
	"github.com/go-go-golems/parley/pkg/turns/serde"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultKeySuffix is appended to the conversation id to form the blob key.
const DefaultKeySuffix = ".json"

// Metadata keys attached to saved histories.
const (
	MetaChatID    = "ChatId"
	MetaMessageID = "MessageId"
	MetaLanguage  = "Language"
)

// ErrCorrupt marks a stored payload that could not be decoded. Load recovers
// from it by returning an empty log.
var ErrCorrupt = errors.New("stored history is corrupt")

// Metadata is an opaque set of tags stored alongside a log.
type Metadata map[string]string

// NewMetadata builds the standard tags for a save.
func NewMetadata(conversationID, messageID, language string) Metadata {
	md := Metadata{MetaChatID: conversationID}
	if messageID != "" {
		md[MetaMessageID] = messageID
	}
	if language != "" {
		md[MetaLanguage] = language
	}
	return md
}

type Store struct {
	blobs     blob.Store
	keySuffix string
	keyPrefix string
}

type Option func(*Store)

func WithKeySuffix(suffix string) Option {
	return func(s *Store) { s.keySuffix = suffix }
}

// WithKeyPrefix places histories under a common prefix, for example "history/".
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

func NewStore(blobs blob.Store, opts ...Option) *Store {
	s := &Store{blobs: blobs, keySuffix: DefaultKeySuffix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the blob key of a conversation.
func (s *Store) Key(conversationID string) string {
	return s.keyPrefix + conversationID + s.keySuffix
}

// Load returns the stored log of a conversation. Missing and undecodable
// payloads both yield an empty log; any other storage error is returned.
func (s *Store) Load(ctx context.Context, conversationID string) (turns.Log, error) {
	key := s.Key(conversationID)
	obj, err := s.blobs.Get(ctx, key)
	if err != nil {
		if blob.IsNotFound(err) {
			log.Debug().Str("conversation_id", conversationID).Str("key", key).Msg("no stored history")
			return turns.Log{}, nil
		}
		return nil, errors.Wrapf(err, "loading history %s", key)
	}
	l, err := serde.UnmarshalLog(obj.Body)
	if err != nil {
		log.Warn().
			Err(errors.Wrap(ErrCorrupt, err.Error())).
			Str("conversation_id", conversationID).
			Str("message_id", obj.Metadata[MetaMessageID]).
			Str("key", key).
			Msg("discarding unreadable history")
		return turns.Log{}, nil
	}
	return l, nil
}

// Save stores l, which is expected to be compacted already.
func (s *Store) Save(ctx context.Context, conversationID string, l turns.Log, md Metadata) error {
	data, err := serde.MarshalLog(l)
	if err != nil {
		return errors.Wrap(err, "encoding history")
	}
	key := s.Key(conversationID)
	if err := s.blobs.Put(ctx, key, data, md); err != nil {
		return errors.Wrapf(err, "saving history %s", key)
	}
	log.Debug().
		Str("conversation_id", conversationID).
		Str("message_id", md[MetaMessageID]).
		Int("turns", len(l)).
		Int("bytes", len(data)).
		Msg("history saved")
	return nil
}

// Compact bounds l to maxLength turns.
func (s *Store) Compact(l turns.Log, maxLength int) turns.Log {
	return compaction.Compact(l, maxLength)
}

// Exists reports whether a history has been stored for the conversation.
func (s *Store) Exists(ctx context.Context, conversationID string) (bool, error) {
	_, err := s.blobs.Head(ctx, s.Key(conversationID))
	if err != nil {
		if blob.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
