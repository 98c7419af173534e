// Package knowledge is a per-conversation store of remembered facts with
// keyword search.
package knowledge

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// DefaultSearchLimit bounds the number of facts returned by Search.
const DefaultSearchLimit = 5

// Fact is one remembered piece of text.
type Fact struct {
	ID             string
	ConversationID string
	Text           string
	CreatedAt      time.Time
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens (or creates) the database at path. Use ":memory:" for tests.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
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
	CREATE TABLE IF NOT EXISTS facts (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_facts_conversation ON facts(conversation_id);
	`)
	return err
}

// Save stores text as a fact. Text is trimmed and terminated with a period.
func (s *Store) Save(ctx context.Context, conversationID, text string) (*Fact, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty text")
	}
	if !strings.HasSuffix(text, ".") {
		text += "."
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Wrap(err, "generating fact id")
	}
	f := &Fact{ID: id.String(), ConversationID: conversationID, Text: text, CreatedAt: s.now().UTC()}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO facts (id, conversation_id, text, created_at) VALUES (?, ?, ?, ?)`,
		f.ID, f.ConversationID, f.Text, f.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "insert fact")
	}
	return f, nil
}

// Search returns facts of a conversation containing any of the query's
// words, best matches first, newest first among equals.
func (s *Store) Search(ctx context.Context, conversationID, query string, limit int) ([]Fact, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	words := keywords(query)
	if len(words) == 0 {
		return nil, nil
	}

	clauses := make([]string, 0, len(words))
	args := []any{conversationID}
	for _, w := range words {
		clauses = append(clauses, `lower(text) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(w)+"%")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, text, created_at FROM facts
		WHERE conversation_id = ? AND (`+strings.Join(clauses, " OR ")+`)
		ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "search facts")
	}
	defer rows.Close()

	type scored struct {
		Fact
		score int
	}
	var found []scored
	for rows.Next() {
		var (
			f       Fact
			created int64
		)
		if err := rows.Scan(&f.ID, &f.ConversationID, &f.Text, &created); err != nil {
			return nil, err
		}
		f.CreatedAt = time.UnixMilli(created).UTC()
		lower := strings.ToLower(f.Text)
		score := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				score++
			}
		}
		found = append(found, scored{f, score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].score > found[j].score })
	if len(found) > limit {
		found = found[:limit]
	}
	ret := make([]Fact, len(found))
	for i, f := range found {
		ret[i] = f.Fact
	}
	return ret, nil
}

// Join concatenates fact texts the way search results are handed to the model.
func Join(facts []Fact) string {
	parts := make([]string, len(facts))
	for i, f := range facts {
		parts[i] = f.Text
	}
	return strings.Join(parts, " ")
}

// keywords lowercases query and drops words shorter than three letters.
func keywords(query string) []string {
	seen := map[string]bool{}
	var ret []string
	for _, w := range strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if len([]rune(w)) < 3 || seen[w] {
			continue
		}
		seen[w] = true
		ret = append(ret, w)
	}
	return ret
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
