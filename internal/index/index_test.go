package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	return ix
}

func TestArticleLifecycle(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	id, err := ix.IndexArticle(ctx, Article{
		Title:   "Fables",
		Content: " A red fox jumps",
		Author:  "Aesop",
		Date:    "2026-02-06",
		Tags:    []string{"animals"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := ix.GetArticle(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Fables", got.Title)
	assert.Equal(t, []int{0, 1, 2, 3}, got.ContentIndexes)
	assert.Equal(t, []string{"animals"}, got.Tags)

	require.NoError(t, ix.UpdateArticleContent(ctx, id, "only two"))
	got, err = ix.GetArticle(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "only two", got.Content)
	assert.Equal(t, []int{0, 1}, got.ContentIndexes)

	hits, err := ix.SearchArticles(ctx, "fox", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, hits, "old content is no longer searchable")

	require.NoError(t, ix.DeleteArticle(ctx, id))
	_, err = ix.GetArticle(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, ix.DeleteArticle(ctx, id), ErrNotFound)
	assert.ErrorIs(t, ix.UpdateArticleContent(ctx, id, "x"), ErrNotFound)
}

func TestIndexArticleKeepsGivenIndexes(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	id, err := ix.IndexArticle(ctx, Article{Title: "T", Content: " a b", ContentIndexes: []int{0, 1}})
	require.NoError(t, err)
	got, err := ix.GetArticle(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, got.ContentIndexes)
	assert.Equal(t, []string{}, got.Tags)
}

func TestSearchArticlesRanking(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	onlyFox, err := ix.IndexArticle(ctx, Article{Title: "One", Content: "the fox sleeps all day long"})
	require.NoError(t, err)
	both, err := ix.IndexArticle(ctx, Article{Title: "Two", Content: "the red fox sleeps all day"})
	require.NoError(t, err)
	_, err = ix.IndexArticle(ctx, Article{Title: "Three", Content: "a dog barks at night"})
	require.NoError(t, err)

	hits, err := ix.SearchArticles(ctx, "Red, FOX!", 0, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, both, hits[0].ID)
	assert.Equal(t, onlyFox, hits[1].ID)

	page, err := ix.SearchArticles(ctx, "red fox", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, onlyFox, page[0].ID)

	none, err := ix.SearchArticles(ctx, "?!", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchFoldsDiacritics(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	_, err := ix.IndexArticle(ctx, Article{Title: "Menu", Content: "Café crème"})
	require.NoError(t, err)
	_, err = ix.IndexArticle(ctx, Article{Title: "Письмо", Content: "Привет из Москвы"})
	require.NoError(t, err)

	hits, err := ix.SearchArticles(ctx, "cafe", 0, 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = ix.SearchArticles(ctx, "привет", 0, 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSearchMatchesInflectedWords(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	russian, err := ix.IndexArticle(ctx, Article{Title: "Басня", Content: "Рыжая лиса прыгала через собак"})
	require.NoError(t, err)
	english, err := ix.IndexArticle(ctx, Article{Title: "Fable", Content: "The foxes were jumping", Tags: []string{"animals"}})
	require.NoError(t, err)

	for query, want := range map[string]string{
		"лису":   russian,
		"собака": russian,
		"fox":    english,
		"jump":   english,
		"jumped": english,
		"animal": english,
		"fables": english,
		"басни":  russian,
	} {
		hits, err := ix.SearchArticles(ctx, query, 0, 0)
		require.NoError(t, err, query)
		require.Len(t, hits, 1, query)
		assert.Equal(t, want, hits[0].ID, query)
	}

	require.NoError(t, ix.UpdateArticleContent(ctx, english, "A dog was sleeping"))
	hits, err := ix.SearchArticles(ctx, "sleeps", 0, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	hits, err = ix.SearchArticles(ctx, "foxes", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	articleID := russian
	commentID, err := ix.IndexComment(ctx, Comment{ArticleID: articleID, StartIndex: 1, EndIndex: 1, Content: "Лисы часто прыгают"})
	require.NoError(t, err)
	comments, err := ix.SearchComments(ctx, "лиса", 0, 0)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, commentID, comments[0].ID)
}

func TestSearchTerms(t *testing.T) {
	assert.Equal(t, []string{"fox", "jump"}, searchTerms("Foxes, jumping!"))
	assert.Equal(t, searchTerms("лису"), searchTerms("лиса"))
	assert.Equal(t, searchTerms("cafe"), searchTerms("Café"))
	assert.Empty(t, searchTerms(" ?! "))
}

func TestAuthors(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	for _, a := range []Article{
		{Title: "1", Content: "x", Author: "Tolstoy"},
		{Title: "2", Content: "y", Author: "Chekhov"},
		{Title: "3", Content: "z", Author: "Tolstoy"},
		{Title: "4", Content: "w"},
	} {
		_, err := ix.IndexArticle(ctx, a)
		require.NoError(t, err)
	}

	authors, err := ix.Authors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Chekhov", "Tolstoy"}, authors)

	byTolstoy, err := ix.ArticlesByAuthor(ctx, "Tolstoy", 0, 0)
	require.NoError(t, err)
	require.Len(t, byTolstoy, 2)
	assert.Equal(t, "1", byTolstoy[0].Title)

	page, err := ix.ArticlesByAuthor(ctx, "Tolstoy", 1, 5)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "3", page[0].Title)

	all, err := ix.AllArticles(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestCommentLifecycle(t *testing.T) {
	ix := openTestIndex(t)
	ctx := context.Background()

	articleID, err := ix.IndexArticle(ctx, Article{Title: "T", Content: " A red fox jumps"})
	require.NoError(t, err)

	later, err := ix.IndexComment(ctx, Comment{ArticleID: articleID, StartIndex: 3, EndIndex: 3, Content: "a verb", Row: 1})
	require.NoError(t, err)
	first, err := ix.IndexComment(ctx, Comment{ArticleID: articleID, StartIndex: 1, EndIndex: 2, Content: "**color** note", Author: "Reviewer", Row: 1})
	require.NoError(t, err)

	c, err := ix.GetComment(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "<p><strong>color</strong> note</p>\n", c.HTML)
	assert.Equal(t, "Reviewer", c.Author)

	comments, err := ix.CommentsForArticle(ctx, articleID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, first, comments[0].ID)
	assert.Equal(t, later, comments[1].ID)

	hits, err := ix.SearchComments(ctx, "colour color", 0, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, first, hits[0].ID)

	require.NoError(t, ix.UpdateComment(ctx, first, "_hue_"))
	c, err = ix.GetComment(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "<p><em>hue</em></p>\n", c.HTML)

	require.NoError(t, ix.DeleteComment(ctx, later))
	assert.ErrorIs(t, ix.DeleteComment(ctx, later), ErrNotFound)
	assert.ErrorIs(t, ix.UpdateComment(ctx, later, "x"), ErrNotFound)
	_, err = ix.GetComment(ctx, later)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, ix.DeleteArticle(ctx, articleID))
	comments, err = ix.CommentsForArticle(ctx, articleID)
	require.NoError(t, err)
	assert.Empty(t, comments)
}

func TestWordIndexes(t *testing.T) {
	assert.Equal(t, []int{}, WordIndexes("   "))
	assert.Equal(t, []int{0, 1, 2}, WordIndexes(" a  b\tc "))
}
