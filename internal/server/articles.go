package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/TobiSchelling/textlib/internal/annotate"
	"github.com/TobiSchelling/textlib/internal/index"
)

const defaultPageSize = 10

type createArticleRequest struct {
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	Tags           []string `json:"tags"`
	Author         string   `json:"author"`
	Date           string   `json:"date"`
	Description    string   `json:"description"`
	ContentIndexes []int    `json:"content_indexes"`
}

func (s *Server) handleCreateArticle(w http.ResponseWriter, r *http.Request) {
	var req createArticleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "title and content are required")
		return
	}
	if req.ContentIndexes != nil && len(req.ContentIndexes) != len(strings.Fields(req.Content)) {
		writeError(w, http.StatusBadRequest, "content_indexes must have one entry per word of content")
		return
	}
	if req.Date == "" {
		req.Date = s.opts.Now().Format(annotate.DateLayout)
	} else if _, err := time.Parse(annotate.DateLayout, req.Date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be formatted as YYYY-MM-DD")
		return
	}

	id, err := s.index.IndexArticle(r.Context(), index.Article{
		Title:          req.Title,
		Content:        req.Content,
		Tags:           req.Tags,
		Author:         req.Author,
		Date:           req.Date,
		Description:    req.Description,
		ContentIndexes: req.ContentIndexes,
	})
	if err != nil {
		writeFailure(w, err, "")
		return
	}
	writeOK(w, "article created", map[string]string{"article_id": id})
}

func (s *Server) handleEditArticleContent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ArticleID   string `json:"article_id"`
		ArticleText string `json:"article_text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ArticleID == "" {
		writeError(w, http.StatusBadRequest, "article_id is required")
		return
	}
	if err := s.index.UpdateArticleContent(r.Context(), req.ArticleID, req.ArticleText); err != nil {
		writeFailure(w, err, articleMissing(req.ArticleID))
		return
	}
	writeOK(w, "", map[string]string{"updated": "updated"})
}

func (s *Server) handleDeleteArticle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ArticleID string `json:"article_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.index.DeleteArticle(r.Context(), req.ArticleID); err != nil {
		writeFailure(w, err, articleMissing(req.ArticleID))
		return
	}
	writeOK(w, "", map[string]string{"status": "deleted"})
}

func (s *Server) handleSearchArticles(w http.ResponseWriter, r *http.Request) {
	query, ok := requireParam(w, r, "query")
	if !ok {
		return
	}
	from, size, ok := page(w, r, "from", "size")
	if !ok {
		return
	}
	articles, err := s.index.SearchArticles(r.Context(), query, from, size)
	if err != nil {
		writeFailure(w, err, "")
		return
	}
	writeOK(w, "", map[string]any{"articles": articles})
}

func (s *Server) handleAllArticles(w http.ResponseWriter, r *http.Request) {
	articles, err := s.index.AllArticles(r.Context())
	if err != nil {
		writeFailure(w, err, "")
		return
	}
	writeOK(w, "", map[string]any{"articles": articles})
}

func (s *Server) handleArticleByID(w http.ResponseWriter, r *http.Request) {
	id, ok := requireParam(w, r, "article_id")
	if !ok {
		return
	}
	article, err := s.index.GetArticle(r.Context(), id)
	if err != nil {
		writeFailure(w, err, articleMissing(id))
		return
	}
	writeOK(w, "", map[string]any{"article": article})
}

func (s *Server) handleArticleComments(w http.ResponseWriter, r *http.Request) {
	id, ok := requireParam(w, r, "article_id")
	if !ok {
		return
	}
	comments, err := s.index.CommentsForArticle(r.Context(), id)
	if err != nil {
		writeFailure(w, err, "")
		return
	}
	writeOK(w, "", map[string]any{"article_comments": comments})
}

func (s *Server) handleAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := s.index.Authors(r.Context())
	if err != nil {
		writeFailure(w, err, "")
		return
	}
	writeOK(w, "", map[string]any{"authors_list": authors})
}

func (s *Server) handleArticlesByAuthor(w http.ResponseWriter, r *http.Request) {
	author, ok := requireParam(w, r, "author_name")
	if !ok {
		return
	}
	from, size, ok := page(w, r, "get_from", "size")
	if !ok {
		return
	}
	articles, err := s.index.ArticlesByAuthor(r.Context(), author, from, size)
	if err != nil {
		writeFailure(w, err, "")
		return
	}
	writeOK(w, "", map[string]any{"articles": articles})
}

// page reads the offset and page size parameters of a search.
func page(w http.ResponseWriter, r *http.Request, fromParam, sizeParam string) (int, int, bool) {
	from, err := queryInt(r, fromParam, 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	size, err := queryInt(r, sizeParam, defaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	return from, size, true
}

func articleMissing(id string) string {
	return "Article with id " + id + " does not exist"
}
