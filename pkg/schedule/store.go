package schedule

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("schedule not found")

// Schedule is a future re-invocation of a conversation.
type Schedule struct {
	ID             string    `json:"id" yaml:"id"`
	ConversationID string    `json:"conversation_id" yaml:"conversation_id"`
	Expression     string    `json:"expression" yaml:"expression"`
	Text           string    `json:"text" yaml:"text"`
	Recurring      bool      `json:"recurring" yaml:"recurring"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
	NextRunAt      time.Time `json:"next_run_at" yaml:"next_run_at"`
}

// Name is the schedule's unique label, "<conversation>-<id>".
func (s *Schedule) Name() string {
	return s.ConversationID + "-" + s.ID
}

// NewID generates a new UUIDv7.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// Store persists schedules in sqlite.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at path. Use ":memory:" for tests.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate")
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		expression TEXT NOT NULL,
		text TEXT NOT NULL,
		recurring INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		next_run_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_schedules_conversation ON schedules(conversation_id);
	CREATE INDEX IF NOT EXISTS idx_schedules_next_run ON schedules(next_run_at);
	`)
	return err
}

const selectColumns = `SELECT id, conversation_id, expression, text, recurring, created_at, next_run_at FROM schedules`

// Insert persists a new schedule, assigning an id when empty.
func (s *Store) Insert(ctx context.Context, sc *Schedule) error {
	if sc.ID == "" {
		sc.ID = NewID()
	}
	recurring := 0
	if sc.Recurring {
		recurring = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedules (id, conversation_id, expression, text, recurring, created_at, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sc.ID, sc.ConversationID, sc.Expression, sc.Text, recurring, sc.CreatedAt.UnixMilli(), sc.NextRunAt.UnixMilli())
	if err != nil {
		return errors.Wrapf(err, "insert schedule %s", sc.Name())
	}
	return nil
}

// Get returns one schedule of a conversation.
func (s *Store) Get(ctx context.Context, conversationID, id string) (*Schedule, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE conversation_id = ? AND id = ?`, conversationID, id)
	sc, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "%s-%s", conversationID, id)
		}
		return nil, err
	}
	return sc, nil
}

// List returns the schedules of a conversation, oldest first. An empty
// conversation id lists every schedule.
func (s *Store) List(ctx context.Context, conversationID string) ([]*Schedule, error) {
	query, args := selectColumns, []any{}
	if conversationID != "" {
		query += ` WHERE conversation_id = ?`
		args = append(args, conversationID)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	return s.query(ctx, query, args...)
}

// Due returns schedules whose next run is at or before now.
func (s *Store) Due(ctx context.Context, now time.Time) ([]*Schedule, error) {
	return s.query(ctx, selectColumns+` WHERE next_run_at <= ? ORDER BY next_run_at ASC`, now.UnixMilli())
}

// SetNextRun moves a schedule's next run.
func (s *Store) SetNextRun(ctx context.Context, id string, next time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE schedules SET next_run_at = ? WHERE id = ?`, next.UnixMilli(), id)
	if err != nil {
		return errors.Wrapf(err, "update schedule %s", id)
	}
	return nil
}

// Delete removes a schedule of a conversation.
func (s *Store) Delete(ctx context.Context, conversationID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE conversation_id = ? AND id = ?`, conversationID, id)
	if err != nil {
		return errors.Wrapf(err, "delete schedule %s-%s", conversationID, id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "%s-%s", conversationID, id)
	}
	return nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*Schedule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query schedules")
	}
	defer rows.Close()

	var ret []*Schedule
	for rows.Next() {
		sc, err := scan(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, sc)
	}
	return ret, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*Schedule, error) {
	var (
		sc                 Schedule
		recurring          int
		createdAt, nextRun int64
	)
	if err := row.Scan(&sc.ID, &sc.ConversationID, &sc.Expression, &sc.Text, &recurring, &createdAt, &nextRun); err != nil {
		return nil, err
	}
	sc.Recurring = recurring == 1
	sc.CreatedAt = time.UnixMilli(createdAt).UTC()
	sc.NextRunAt = time.UnixMilli(nextRun).UTC()
	return &sc, nil
}
