package agent

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
)

type Handler struct {
	repo            Repo
	logger          *log.Logger
	sessionResolver func(*http.Request) string
}

func NewHandler(repo Repo, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

func (h *Handler) SetSessionResolver(fn func(*http.Request) string) {
	h.sessionResolver = fn
}

func (h *Handler) sessionForRequest(r *http.Request) string {
	if h.sessionResolver == nil {
		return ""
	}
	return strings.TrimSpace(h.sessionResolver(r))
}

// Name is the display name for the request's session.
func (h *Handler) Name(r *http.Request) string {
	return NameOrDefault(r.Context(), h.repo, h.sessionForRequest(r), h.logger)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func decodeJSON(r *http.Request, out any) error {
	return json.NewDecoder(r.Body).Decode(out)
}

type nameResponse struct {
	Name       string `json:"name"`
	Registered bool   `json:"registered"`
}

// GET /api/agent
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sid := h.sessionForRequest(r)
	resp := nameResponse{Name: DefaultName}
	if sid != "" && h.repo != nil {
		a, err := h.repo.Get(r.Context(), sid)
		switch {
		case err == nil && strings.TrimSpace(a.Name) != "":
			resp = nameResponse{Name: a.Name, Registered: true}
		case err != nil && !errors.Is(err, ErrNotFound):
			h.logger.Printf("[agent] read failed, using default name: %v", err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/agent
func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		writeErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.repo == nil {
		writeErr(w, http.StatusInternalServerError, "agent repository unavailable")
		return
	}
	sid := h.sessionForRequest(r)
	if sid == "" {
		writeErr(w, http.StatusUnauthorized, "no session")
		return
	}

	var in struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	a, err := h.repo.Save(r.Context(), sid, in.Name)
	switch {
	case errors.Is(err, ErrEmptyName):
		writeErr(w, http.StatusBadRequest, `missing field "name"`)
		return
	case err != nil:
		h.logger.Printf("[agent] save failed: %v", err)
		writeErr(w, http.StatusInternalServerError, "could not save name")
		return
	}
	writeJSON(w, http.StatusOK, nameResponse{Name: a.Name, Registered: true})
}
