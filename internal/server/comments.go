package server

import (
	"net/http"
	"strings"

	"github.com/TobiSchelling/textlib/internal/annotate"
	"github.com/TobiSchelling/textlib/internal/index"
)

type addCommentRequest struct {
	ArticleID  string `json:"article_id"`
	StartIndex *int   `json:"comment_start_index"`
	EndIndex   *int   `json:"comment_end_index"`
	Date       string `json:"date"`
	Content    string `json:"content"`
	Author     string `json:"author"`
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req addCommentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ArticleID == "" || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "article_id and content are required")
		return
	}
	if req.StartIndex == nil || req.EndIndex == nil || *req.StartIndex < 0 || *req.StartIndex > *req.EndIndex {
		writeError(w, http.StatusBadRequest, "comment_start_index and comment_end_index must form a valid range")
		return
	}

	article, err := s.index.GetArticle(r.Context(), req.ArticleID)
	if err != nil {
		writeFailure(w, err, articleMissing(req.ArticleID))
		return
	}
	if *req.EndIndex >= len(article.ContentIndexes) {
		writeError(w, http.StatusBadRequest, "comment range is outside the article")
		return
	}

	if req.Author == "" {
		req.Author = annotate.DefaultAuthor
	}
	if req.Date == "" {
		req.Date = s.opts.Now().Format(annotate.DateLayout)
	}

	id, err := s.index.IndexComment(r.Context(), index.Comment{
		ArticleID:  req.ArticleID,
		StartIndex: *req.StartIndex,
		EndIndex:   *req.EndIndex,
		Content:    req.Content,
		Author:     req.Author,
		Date:       req.Date,
	})
	if err != nil {
		writeFailure(w, err, "")
		return
	}
	writeOK(w, "comment published", map[string]string{"comment_id": id})
}

func (s *Server) handleEditComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CommentID   string `json:"comment_id"`
		CommentText string `json:"comment_text"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CommentID == "" || strings.TrimSpace(req.CommentText) == "" {
		writeError(w, http.StatusBadRequest, "comment_id and comment_text are required")
		return
	}
	if err := s.index.UpdateComment(r.Context(), req.CommentID, req.CommentText); err != nil {
		writeFailure(w, err, commentMissing(req.CommentID))
		return
	}
	writeOK(w, "", map[string]string{"updated": "updated"})
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CommentID string `json:"comment_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.index.DeleteComment(r.Context(), req.CommentID)
	if err != nil {
		writeFailure(w, err, commentMissing(req.CommentID))
		return
	}
	writeOK(w, "", map[string]string{"status": "deleted"})
}

func (s *Server) handleSearchComments(w http.ResponseWriter, r *http.Request) {
	query, ok := requireParam(w, r, "query")
	if !ok {
		return
	}
	from, size, ok := page(w, r, "from", "size")
	if !ok {
		return
	}
	comments, err := s.index.SearchComments(r.Context(), query, from, size)
	if err != nil {
		writeFailure(w, err, "")
		return
	}
	writeOK(w, "", map[string]any{"comments": comments})
}

func commentMissing(id string) string {
	return "Comment with id " + id + " does not exist"
}
