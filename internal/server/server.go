package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TobiSchelling/textlib/internal/database"
	"github.com/TobiSchelling/textlib/internal/index"
	"github.com/TobiSchelling/textlib/internal/ingest"
	"github.com/TobiSchelling/textlib/internal/metrics"
)

const defaultUploadLimit = 100 * 1024 * 1024

// DocumentIndex is the article and comment index served by the API.
type DocumentIndex interface {
	IndexArticle(ctx context.Context, a index.Article) (string, error)
	GetArticle(ctx context.Context, id string) (*index.Article, error)
	UpdateArticleContent(ctx context.Context, id, content string) error
	DeleteArticle(ctx context.Context, id string) error
	SearchArticles(ctx context.Context, query string, from, size int) ([]index.Article, error)
	AllArticles(ctx context.Context) ([]index.Article, error)
	Authors(ctx context.Context) ([]string, error)
	ArticlesByAuthor(ctx context.Context, author string, from, size int) ([]index.Article, error)
	IndexComment(ctx context.Context, c index.Comment) (string, error)
	UpdateComment(ctx context.Context, id, content string) error
	DeleteComment(ctx context.Context, id string) error
	SearchComments(ctx context.Context, query string, from, size int) ([]index.Comment, error)
	CommentsForArticle(ctx context.Context, articleID string) ([]index.Comment, error)
}

// RowStore serves row-level pagination.
type RowStore interface {
	GetArticleRows(ctx context.Context, articleID string, fromRow, numRows int) ([]database.ArticleRow, error)
	GetArticleComments(ctx context.Context, articleID string) ([]database.CommentRow, error)
}

// Ingester ingests uploaded spreadsheets.
type Ingester interface {
	RunFile(ctx context.Context, filename string, content []byte, meta ingest.Meta) *ingest.Result
}

// Options configures the server.
type Options struct {
	BasicAuthUser     string
	BasicAuthPassword string
	MaxUploadSize     int64
	Gatherer          prometheus.Gatherer // served on /metrics, defaults to the global registry
	Now               func() time.Time
}

// Server is the JSON API of the text library.
type Server struct {
	index    DocumentIndex
	store    RowStore
	ingester Ingester
	metrics  *metrics.Metrics
	opts     Options
	mux      *http.ServeMux
}

// New creates a new Server. m may be nil.
func New(ix DocumentIndex, store RowStore, ing Ingester, m *metrics.Metrics, opts Options) *Server {
	if opts.MaxUploadSize == 0 {
		opts.MaxUploadSize = defaultUploadLimit
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{index: ix, store: store, ingester: ing, metrics: m, opts: opts, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return withCORS(s.mux)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.instrument("/health", s.handleHealth))
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

	s.handle("POST /article/create_article", s.handleCreateArticle)
	s.handle("POST /article/edit_article_content", s.handleEditArticleContent)
	s.handle("POST /article/delete_article", s.handleDeleteArticle)
	s.handle("GET /article/search_article", s.handleSearchArticles)
	s.handle("GET /article/get_all_articles", s.handleAllArticles)
	s.handle("GET /article/get_article_by_id", s.handleArticleByID)
	s.handle("GET /article/get_article_comments", s.handleArticleComments)

	s.handle("POST /comment/add_comment", s.handleAddComment)
	s.handle("POST /comment/edit_comment", s.handleEditComment)
	s.handle("POST /comment/delete_comment", s.handleDeleteComment)
	s.handle("GET /comment/search_comments", s.handleSearchComments)

	s.handle("GET /authors/get_all_articles_authors", s.handleAuthors)
	s.handle("GET /authors/get_articles_by_author", s.handleArticlesByAuthor)

	s.handle("GET /row_article/get_article_rows", s.handleArticleRows)
	s.handle("GET /row_article/get_comments", s.handleRowComments)

	s.handle("POST /ingest/upload", s.handleUpload)
}

// handle registers an authenticated, instrumented API route.
func (s *Server) handle(pattern string, h http.HandlerFunc) {
	_, route, _ := strings.Cut(pattern, " ")
	s.mux.HandleFunc(pattern, s.instrument(route, s.requireAuth(h)))
}

// Serve starts the HTTP server on host:port.
func Serve(s *Server, host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Printf("Server listening on http://%s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// apiResult is the envelope of every API response.
type apiResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Result  any    `json:"result,omitempty"`
}

func writeOK(w http.ResponseWriter, message string, result any) {
	writeJSON(w, http.StatusOK, apiResult{Status: "ok", Message: message, Result: result})
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, apiResult{Status: "error", Message: message})
}

// writeFailure maps err to a status code.
func writeFailure(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, index.ErrNotFound) {
		if notFound == "" {
			notFound = err.Error()
		}
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	log.Printf("Request failed: %v", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 10<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// queryInt reads an integer query parameter, falling back to def.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func requireParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		writeError(w, http.StatusBadRequest, name+" is required")
		return "", false
	}
	return v, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, "", map[string]string{"service": "textlib"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading upload: "+err.Error())
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}
	meta := ingest.Meta{
		Title:       title,
		Author:      strings.TrimSpace(r.FormValue("author")),
		Tags:        splitTags(r.FormValue("tags")),
		Description: strings.TrimSpace(r.FormValue("description")),
	}

	res := s.ingester.RunFile(r.Context(), header.Filename, content, meta)
	if err := res.Err(); err != nil {
		if res.InvalidInput() {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeFailure(w, err, "")
		return
	}

	skipped := make(map[string]int)
	for reason, n := range res.Report.SkipCounts() {
		skipped[string(reason)] = n
	}
	writeOK(w, "article ingested", map[string]any{
		"article_id":       res.ArticleID,
		"rows":             res.Rows,
		"words":            res.Words,
		"comments":         res.Comments,
		"comment_failures": res.CommentFailures,
		"skipped":          skipped,
	})
}

func splitTags(raw string) []string {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
