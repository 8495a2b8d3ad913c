package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedQueries(t *testing.T) (*QueryService, map[string]uint) {
	t.Helper()
	ctx := context.Background()
	db := newTestDB(t)
	r := NewIdentityResolver(db, zap.NewNop())

	day := func(d int) *time.Time {
		ts := time.Date(2025, 10, d, 12, 0, 0, 0, time.UTC)
		return &ts
	}

	ids := map[string]uint{}
	jane, err := r.ResolvePerson(ctx, "Jane Doe", "https://img/jane.jpg")
	require.NoError(t, err)
	john, err := r.ResolvePerson(ctx, "John Roe", "")
	require.NoError(t, err)
	ids["jane"], ids["john"] = jane.ID, john.ID

	articles := []ArticleInput{
		{Link: "https://example.com/1", Title: "One", PublishedAt: day(1)},
		{Link: "https://example.com/2", Title: "Two", PublishedAt: day(2)},
		{Link: "https://example.com/3", Title: "Three"},
		{Link: "https://example.com/5", Title: "Five", PublishedAt: day(5)},
	}
	for i, in := range articles {
		a, err := r.ResolveArticle(ctx, in)
		require.NoError(t, err)
		if i < 3 {
			_, err = r.Link(ctx, jane, a, true)
		} else {
			_, err = r.Link(ctx, john, a, true)
		}
		require.NoError(t, err)
	}
	return NewQueryService(db), ids
}

func TestListPeople(t *testing.T) {
	q, _ := seedQueries(t)

	people, err := q.ListPeople(context.Background(), 10, "")
	require.NoError(t, err)
	require.Len(t, people, 2)

	people, err = q.ListPeople(context.Background(), 10, "JANE")
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, "Jane Doe", people[0].Name)

	people, err = q.ListPeople(context.Background(), 1, "")
	require.NoError(t, err)
	assert.Len(t, people, 1)
}

func TestGetPersonNotFound(t *testing.T) {
	q, ids := seedQueries(t)

	p, err := q.GetPerson(context.Background(), ids["jane"])
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", p.Name)

	_, err = q.GetPerson(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = q.ArticlesForPerson(context.Background(), 9999, 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArticlesForPersonOrdering(t *testing.T) {
	q, ids := seedQueries(t)

	articles, err := q.ArticlesForPerson(context.Background(), ids["jane"], 10)
	require.NoError(t, err)
	require.Len(t, articles, 3)
	assert.Equal(t, "Two", articles[0].Title)
	assert.Equal(t, "One", articles[1].Title)
	assert.Equal(t, "Three", articles[2].Title, "undated articles come last")
}

func TestLatestArticlesAndByLink(t *testing.T) {
	q, _ := seedQueries(t)

	articles, err := q.LatestArticles(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.Equal(t, "Five", articles[0].Title)
	assert.Equal(t, "Two", articles[1].Title)

	a, err := q.ArticleByLink(context.Background(), "https://example.com/3")
	require.NoError(t, err)
	assert.Equal(t, "Three", a.Title)

	_, err = q.ArticleByLink(context.Background(), "https://example.com/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPersonCards(t *testing.T) {
	q, ids := seedQueries(t)

	cards, err := q.PersonCards(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, cards, 2)

	assert.Equal(t, ids["john"], cards[0].ID, "person with the newest article first")
	require.Len(t, cards[0].Articles, 1)
	require.NotNil(t, cards[0].Articles[0].PublishedAt)
	assert.Equal(t, "2025-10-05T12:00:00Z", *cards[0].Articles[0].PublishedAt)

	jane := cards[1]
	assert.Equal(t, "Jane Doe", jane.Name)
	require.Len(t, jane.Articles, 2)
	assert.Equal(t, "Two", jane.Articles[0].Title)
	assert.Equal(t, "One", jane.Articles[1].Title)
	assert.Equal(t, "https://img/jane.jpg", jane.Articles[0].ImageURL)
}
