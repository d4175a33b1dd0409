package server

import (
	"net/http"
)

func (s *Server) handleArticleRows(w http.ResponseWriter, r *http.Request) {
	id, ok := requireParam(w, r, "article_id")
	if !ok {
		return
	}
	fromRow, err := queryInt(r, "from_row", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	numRows, err := queryInt(r, "num_rows", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := s.store.GetArticleRows(r.Context(), id, fromRow, numRows)
	if err != nil {
		writeFailure(w, err, "")
		return
	}
	writeOK(w, "", map[string]any{"article_rows": nonNil(rows)})
}

func (s *Server) handleRowComments(w http.ResponseWriter, r *http.Request) {
	id, ok := requireParam(w, r, "article_id")
	if !ok {
		return
	}
	comments, err := s.store.GetArticleComments(r.Context(), id)
	if err != nil {
		writeFailure(w, err, "")
		return
	}
	writeOK(w, "", map[string]any{"article_comments": nonNil(comments)})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
