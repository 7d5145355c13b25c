package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/AaronLay10/FlowEngine/internal/store"
	"github.com/AaronLay10/FlowEngine/internal/workspace"
)

func (s *Server) listVersionsHandler(w http.ResponseWriter, r *http.Request) {
	vs, err := s.ws.Versions(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	if vs == nil {
		vs = []store.Version{}
	}
	writeJSON(w, http.StatusOK, vs)
}

type CommitRequest struct {
	Message string `json:"message"`
	Author  string `json:"author"`
}

func (s *Server) commitVersionHandler(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if !decode(w, r, &req) {
		return
	}
	v, err := s.ws.CommitVersion(r.Context(), req.Message, req.Author)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) compareVersionsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to required")
		return
	}
	d, err := s.ws.CompareVersions(r.Context(), from, to)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) restoreVersionHandler(w http.ResponseWriter, r *http.Request) {
	v, err := s.ws.RestoreVersion(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) listTemplatesHandler(w http.ResponseWriter, r *http.Request) {
	ts := s.ws.Templates()
	if ts == nil {
		fail(w, workspace.ErrNoStore)
		return
	}
	q := r.URL.Query()
	list, err := ts.List(r.Context(), store.TemplateFilter{Query: q.Get("q"), Category: q.Get("category")})
	if err != nil {
		fail(w, err)
		return
	}
	if list == nil {
		list = []store.Template{}
	}
	writeJSON(w, http.StatusOK, list)
}

type TemplateRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
}

func (s *Server) saveTemplateHandler(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	t, err := s.ws.SaveAsTemplate(r.Context(), req.Name, req.Description, req.Category, req.Tags)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) applyTemplateHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.ApplyTemplate(r.Context(), mux.Vars(r)["id"]); err != nil {
		fail(w, err)
		return
	}
	writeOK(w)
}

// listVariablesHandler lists the variables visible to this workflow with
// encrypted values masked.
func (s *Server) listVariablesHandler(w http.ResponseWriter, r *http.Request) {
	vars := s.ws.Variables()
	if vars == nil {
		fail(w, workspace.ErrNoStore)
		return
	}
	q := r.URL.Query()
	list, err := vars.List(r.Context(), s.ws.ID(), store.VariableFilter{Query: q.Get("q"), Scope: store.VarScope(q.Get("scope"))})
	if err != nil {
		fail(w, err)
		return
	}
	out := make([]store.Variable, len(list))
	for i, v := range list {
		out[i] = v.Masked()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) saveVariableHandler(w http.ResponseWriter, r *http.Request) {
	vars := s.ws.Variables()
	if vars == nil {
		fail(w, workspace.ErrNoStore)
		return
	}
	var v store.Variable
	if !decode(w, r, &v) {
		return
	}
	if (v.Scope == "" || v.Scope == store.ScopeWorkflow) && v.WorkflowID == "" {
		v.WorkflowID = s.ws.ID()
	}
	saved, err := vars.Save(r.Context(), v)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved.Masked())
}

func (s *Server) deleteVariableHandler(w http.ResponseWriter, r *http.Request) {
	vars := s.ws.Variables()
	if vars == nil {
		fail(w, workspace.ErrNoStore)
		return
	}
	if err := vars.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		fail(w, err)
		return
	}
	writeOK(w)
}
