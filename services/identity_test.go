package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"news-faces/models"
)

func TestNormalizeAndDisplayName(t *testing.T) {
	assert.Equal(t, "joe biden", NormalizeName("  JOE \t Biden "))
	assert.Equal(t, "", NormalizeName(" \n "))
	assert.Equal(t, "Joe Biden", DisplayName("  JOE \t biden "))
	assert.Equal(t, "Malala Yousafzai", DisplayName("malala yousafzai"))
}

func TestResolvePersonIsCaseAndWhitespaceInvariant(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	r := NewIdentityResolver(db, zap.NewNop())

	first, err := r.ResolvePerson(ctx, "joe biden", "")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "Joe Biden", first.Name)

	for _, variant := range []string{"Joe Biden", "JOE BIDEN", "  joe   Biden  "} {
		p, err := r.ResolvePerson(ctx, variant, "")
		require.NoError(t, err)
		assert.Equal(t, first.ID, p.ID, variant)
	}

	var count int64
	require.NoError(t, db.Model(&models.Person{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestResolvePersonKeepsPartialNamesDistinct(t *testing.T) {
	ctx := context.Background()
	r := NewIdentityResolver(newTestDB(t), zap.NewNop())

	a, err := r.ResolvePerson(ctx, "Biden", "")
	require.NoError(t, err)
	b, err := r.ResolvePerson(ctx, "Joe Biden", "")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestResolvePersonBackfillsImageOnly(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	r := NewIdentityResolver(db, zap.NewNop())

	p, err := r.ResolvePerson(ctx, "Jane Doe", "")
	require.NoError(t, err)
	assert.Empty(t, p.ImageURL)

	p, err = r.ResolvePerson(ctx, "jane doe", "https://img/1.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://img/1.jpg", p.ImageURL)

	p, err = r.ResolvePerson(ctx, "JANE DOE", "https://img/2.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://img/1.jpg", p.ImageURL)

	var stored models.Person
	require.NoError(t, db.First(&stored, p.ID).Error)
	assert.Equal(t, "https://img/1.jpg", stored.ImageURL)
	assert.Equal(t, "Jane Doe", stored.Name)
}

func TestResolvePersonEmptyName(t *testing.T) {
	r := NewIdentityResolver(newTestDB(t), zap.NewNop())

	p, err := r.ResolvePerson(context.Background(), "   ", "https://img")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestResolveArticleBackfill(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	r := NewIdentityResolver(db, zap.NewNop())

	a, err := r.ResolveArticle(ctx, ArticleInput{Link: "https://example.com/a", Title: "Old", Summary: "S1"})
	require.NoError(t, err)
	assert.Nil(t, a.PublishedAt)

	published := time.Date(2025, 10, 10, 13, 28, 17, 0, time.UTC)
	a2, err := r.ResolveArticle(ctx, ArticleInput{
		Link:        "https://example.com/a",
		Title:       "New",
		PublishedAt: &published,
		SourceName:  "Reuters",
	})
	require.NoError(t, err)
	assert.Equal(t, a.ID, a2.ID)

	var stored models.Article
	require.NoError(t, db.First(&stored, a.ID).Error)
	assert.Equal(t, "New", stored.Title)
	assert.Equal(t, "S1", stored.Summary, "empty summary must not overwrite")
	assert.Equal(t, "Reuters", stored.SourceName)
	require.NotNil(t, stored.PublishedAt)
	assert.True(t, published.Equal(*stored.PublishedAt))

	later := published.Add(time.Hour)
	_, err = r.ResolveArticle(ctx, ArticleInput{Link: "https://example.com/a", PublishedAt: &later, SourceName: "AP"})
	require.NoError(t, err)
	require.NoError(t, db.First(&stored, a.ID).Error)
	assert.True(t, published.Equal(*stored.PublishedAt), "published_at is fill-if-absent")
	assert.Equal(t, "Reuters", stored.SourceName)

	var count int64
	require.NoError(t, db.Model(&models.Article{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestResolveArticleRequiresLink(t *testing.T) {
	r := NewIdentityResolver(newTestDB(t), zap.NewNop())

	_, err := r.ResolveArticle(context.Background(), ArticleInput{Title: "x"})
	assert.ErrorIs(t, err, ErrEmptyLink)
}

func TestLinkIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	r := NewIdentityResolver(db, zap.NewNop())

	p, err := r.ResolvePerson(ctx, "Jane Doe", "")
	require.NoError(t, err)
	a, err := r.ResolveArticle(ctx, ArticleInput{Link: "https://example.com/a", Title: "T"})
	require.NoError(t, err)

	first, err := r.Link(ctx, p, a, true)
	require.NoError(t, err)
	second, err := r.Link(ctx, p, a, false)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.IsPrimary)

	var count int64
	require.NoError(t, db.Model(&models.PersonArticle{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestResolverWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	r := NewIdentityResolver(db, zap.NewNop())

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := r.WithTx(tx).ResolvePerson(ctx, "Jane Doe", "")
		require.NoError(t, err)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	var count int64
	require.NoError(t, db.Model(&models.Person{}).Count(&count).Error)
	assert.Zero(t, count)
}
