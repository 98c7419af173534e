package knowledge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	base := time.Date(2024, 5, 17, 10, 0, 0, 0, time.UTC)
	n := 0
	s.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Minute)
	}
	return s
}

func TestSaveNormalizesText(t *testing.T) {
	s := newStore(t)
	f, err := s.Save(context.Background(), "42", "  my cat is called Miso ")
	require.NoError(t, err)
	assert.Equal(t, "my cat is called Miso.", f.Text)
	assert.NotEmpty(t, f.ID)

	_, err = s.Save(context.Background(), "42", "   ")
	assert.Error(t, err)
}

func TestSearch(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for _, text := range []string{
		"My cat is called Miso.",
		"I am allergic to peanuts.",
		"The cat sleeps on the sofa.",
		"Favourite colour is green.",
	} {
		_, err := s.Save(ctx, "42", text)
		require.NoError(t, err)
	}
	_, err := s.Save(ctx, "7", "My cat is called Felix.")
	require.NoError(t, err)

	tests := []struct {
		name  string
		query string
		limit int
		want  []string
	}{
		{"best match first", "what is my cat called?", 0, []string{"My cat is called Miso.", "The cat sleeps on the sofa."}},
		{"limit", "cat", 1, []string{"The cat sleeps on the sofa."}},
		{"case insensitive", "PEANUTS", 0, []string{"I am allergic to peanuts."}},
		{"short words ignored", "is a", 0, nil},
		{"like wildcards are literal", "100%", 0, nil},
		{"no match", "dog", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts, err := s.Search(ctx, "42", tt.query, tt.limit)
			require.NoError(t, err)
			var got []string
			for _, f := range facts {
				got = append(got, f.Text)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "a. b.", Join([]Fact{{Text: "a."}, {Text: "b."}}))
	assert.Equal(t, "", Join(nil))
}
