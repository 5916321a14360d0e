package http

import (
	"net/http"

	"tally/internal/core"
)

type createCategoryRequest struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
	Type string `json:"type"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}

	var typ core.TransactionType
	if v := r.URL.Query().Get("type"); v != "" {
		t, err := core.ParseTransactionType(v)
		if err != nil {
			writeError(w, r, err)
			return
		}
		typ = t
	}

	cats, err := s.svc.Ledger.ListCategories(r.Context(), owner, typ)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cats == nil {
		cats = []core.Category{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": cats})
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}

	var req createCategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	typ, err := core.ParseTransactionType(req.Type)
	if err != nil {
		writeError(w, r, err)
		return
	}

	created, err := s.svc.Ledger.CreateCategory(r.Context(), core.Category{
		Owner: owner,
		Name:  sanitizeInput(req.Name),
		Icon:  sanitizeInput(req.Icon),
		Type:  typ,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}

	typ, err := core.ParseTransactionType(r.PathValue("type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	deleted, err := s.svc.Ledger.DeleteCategory(r.Context(), owner, r.PathValue("name"), typ)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}
