package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/textlib/internal/database"
	"github.com/TobiSchelling/textlib/internal/index"
	"github.com/TobiSchelling/textlib/internal/ingest"
	"github.com/TobiSchelling/textlib/internal/metrics"
)

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type testEnv struct {
	srv     *Server
	index   *index.Index
	db      *database.DB
	metrics *metrics.Metrics
}

func fixedNow() time.Time {
	return time.Date(2026, 2, 6, 10, 0, 0, 0, time.UTC)
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	dir := t.TempDir()
	ix, err := index.Open(filepath.Join(dir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	db, err := database.Open(filepath.Join(dir, "textlib.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	runner := ingest.NewRunner(ix, db, m, ingest.Options{CommentAuthor: "Reviewer", Now: fixedNow})
	opts.Gatherer = reg
	opts.Now = fixedNow
	return &testEnv{srv: New(ix, db, runner, m, opts), index: ix, db: db, metrics: m}
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (e *testEnv) post(t *testing.T, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return e.do(t, req)
}

func (e *testEnv) get(t *testing.T, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	return e.do(t, httptest.NewRequest(http.MethodGet, path, nil))
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestArticleRoutes(t *testing.T) {
	e := newTestEnv(t, Options{})

	rec, env := e.post(t, "/article/create_article", map[string]any{
		"title":   "Fables",
		"content": "A red fox jumps",
		"tags":    []string{"animals"},
		"author":  "Aesop",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ok", env.Status)
	assert.Equal(t, "article created", env.Message)
	id := decode[map[string]string](t, env.Result)["article_id"]
	require.NotEmpty(t, id)

	_, env = e.get(t, "/article/get_article_by_id?article_id="+id)
	article := decode[map[string]index.Article](t, env.Result)["article"]
	assert.Equal(t, []int{0, 1, 2, 3}, article.ContentIndexes)
	assert.Equal(t, "2026-02-06", article.Date)

	_, env = e.get(t, "/article/search_article?query=fox")
	assert.Len(t, decode[map[string][]index.Article](t, env.Result)["articles"], 1)

	rec, _ = e.post(t, "/article/edit_article_content", map[string]string{"article_id": id, "article_text": "a new text"})
	assert.Equal(t, http.StatusOK, rec.Code)
	_, env = e.get(t, "/article/get_article_by_id?article_id="+id)
	article = decode[map[string]index.Article](t, env.Result)["article"]
	assert.Equal(t, []int{0, 1, 2}, article.ContentIndexes)

	_, env = e.get(t, "/authors/get_all_articles_authors")
	assert.Equal(t, []string{"Aesop"}, decode[map[string][]string](t, env.Result)["authors_list"])

	_, env = e.get(t, "/authors/get_articles_by_author?author_name=Aesop&size=5&get_from=0")
	assert.Len(t, decode[map[string][]index.Article](t, env.Result)["articles"], 1)

	_, env = e.get(t, "/article/get_all_articles")
	assert.Len(t, decode[map[string][]index.Article](t, env.Result)["articles"], 1)

	rec, _ = e.post(t, "/article/delete_article", map[string]string{"article_id": id})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = e.post(t, "/article/delete_article", map[string]string{"article_id": id})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, "Article with id "+id+" does not exist", env.Message)
}

func TestCreateArticleValidation(t *testing.T) {
	e := newTestEnv(t, Options{})

	rec, env := e.post(t, "/article/create_article", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "error", env.Status)

	rec, _ = e.post(t, "/article/create_article", map[string]any{
		"title": "x", "content": "two words", "content_indexes": []int{0},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = e.post(t, "/article/create_article", map[string]any{
		"title": "x", "content": "two words", "date": "06.02.2026",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Message, "YYYY-MM-DD")

	req := httptest.NewRequest(http.MethodPost, "/article/create_article", strings.NewReader("{"))
	rec, _ = e.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.get(t, "/article/search_article")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.get(t, "/article/search_article?query=x&size=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommentRoutes(t *testing.T) {
	e := newTestEnv(t, Options{})
	_, env := e.post(t, "/article/create_article", map[string]any{"title": "T", "content": "A red fox jumps"})
	articleID := decode[map[string]string](t, env.Result)["article_id"]

	rec, env := e.post(t, "/comment/add_comment", map[string]any{
		"article_id": articleID, "comment_start_index": 1, "comment_end_index": 2, "content": "color *note*",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	commentID := decode[map[string]string](t, env.Result)["comment_id"]

	c, err := e.index.GetComment(t.Context(), commentID)
	require.NoError(t, err)
	assert.Equal(t, "Unknown", c.Author)
	assert.Contains(t, c.HTML, "<em>note</em>")

	rec, _ = e.post(t, "/comment/add_comment", map[string]any{
		"article_id": articleID, "comment_start_index": 2, "comment_end_index": 9, "content": "too far",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.post(t, "/comment/add_comment", map[string]any{
		"article_id": "missing", "comment_start_index": 0, "comment_end_index": 0, "content": "x",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, env = e.get(t, "/comment/search_comments?query=color")
	assert.Len(t, decode[map[string][]index.Comment](t, env.Result)["comments"], 1)

	_, env = e.get(t, "/article/get_article_comments?article_id="+articleID)
	assert.Len(t, decode[map[string][]index.Comment](t, env.Result)["article_comments"], 1)

	rec, _ = e.post(t, "/comment/edit_comment", map[string]string{"comment_id": commentID, "comment_text": "hue"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = e.post(t, "/comment/delete_comment", map[string]string{"comment_id": commentID})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = e.post(t, "/comment/edit_comment", map[string]string{"comment_id": commentID, "comment_text": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Comment with id "+commentID+" does not exist", env.Message)
}

func uploadRequest(t *testing.T, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/ingest/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadAndRowRoutes(t *testing.T) {
	e := newTestEnv(t, Options{})

	csv := "display_row,line,marker,annotation\n" +
		"1,A red fox jumps,red fox,color note\n" +
		"2,over the lazy dog,,\n" +
		"3,and runs away,wolf,lost\n"
	rec, env := e.do(t, uploadRequest(t, "fables.csv", csv, map[string]string{"author": "Aesop", "tags": "animals, fables"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result struct {
		ArticleID string         `json:"article_id"`
		Rows      int            `json:"rows"`
		Comments  int            `json:"comments"`
		Skipped   map[string]int `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &result))
	assert.Equal(t, 3, result.Rows)
	assert.Equal(t, 1, result.Comments)
	assert.Equal(t, map[string]int{"unmatched": 1, "unpaired": 1}, result.Skipped)

	article, err := e.index.GetArticle(t.Context(), result.ArticleID)
	require.NoError(t, err)
	assert.Equal(t, "fables", article.Title)
	assert.Equal(t, []string{"animals", "fables"}, article.Tags)

	_, env = e.get(t, "/row_article/get_article_rows?article_id="+result.ArticleID+"&from_row=1&num_rows=1")
	rows := decode[map[string][]database.ArticleRow](t, env.Result)["article_rows"]
	require.Len(t, rows, 1)
	assert.Equal(t, "over the lazy dog", rows[0].RowContent)
	assert.Equal(t, []int{4, 5, 6, 7}, rows[0].ContentIndexes)

	_, env = e.get(t, "/row_article/get_article_rows?article_id="+result.ArticleID)
	assert.Len(t, decode[map[string][]database.ArticleRow](t, env.Result)["article_rows"], 3)

	_, env = e.get(t, "/row_article/get_comments?article_id="+result.ArticleID)
	comments := decode[map[string][]database.CommentRow](t, env.Result)["article_comments"]
	require.Len(t, comments, 1)
	assert.Equal(t, "Reviewer", comments[0].Author)

	_, env = e.get(t, "/row_article/get_comments?article_id=nothing")
	assert.JSONEq(t, `{"article_comments": []}`, string(env.Result))

	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.HTTPRequests.WithLabelValues("/ingest/upload", "200")))
}

func TestUploadRejectsInvalidInput(t *testing.T) {
	e := newTestEnv(t, Options{})

	rec, env := e.do(t, uploadRequest(t, "bad.csv", "display_row,line\n1,one\n1,two\n", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Message, "row 1")

	rec, _ = e.do(t, uploadRequest(t, "notes.pdf", "x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	all, err := e.index.AllArticles(t.Context())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestBasicAuth(t *testing.T) {
	e := newTestEnv(t, Options{BasicAuthUser: "editor", BasicAuthPassword: "secret"})

	rec, env := e.get(t, "/article/get_all_articles")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "error", env.Status)

	req := httptest.NewRequest(http.MethodGet, "/article/get_all_articles", nil)
	req.SetBasicAuth("editor", "wrong")
	rec, _ = e.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/article/get_all_articles", nil)
	req.SetBasicAuth("editor", "secret")
	rec, _ = e.do(t, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = e.get(t, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = e.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "textlib_http_requests_total")
}

func TestCORS(t *testing.T) {
	e := newTestEnv(t, Options{})

	rec, _ := e.do(t, httptest.NewRequest(http.MethodOptions, "/article/create_article", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec, _ = e.get(t, "/health")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
