package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/AaronLay10/FlowEngine/internal/execution"
	"github.com/AaronLay10/FlowEngine/internal/graph"
	"github.com/AaronLay10/FlowEngine/internal/store"
	"github.com/AaronLay10/FlowEngine/internal/workspace"
)

// maxBody caps request bodies; imported documents are the largest.
const maxBody = 8 << 20

// Response wraps every non-data reply.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, Response{OK: true})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{OK: false, Error: msg})
}

// fail maps a domain error to a status code.
func fail(w http.ResponseWriter, err error) {
	writeError(w, errorStatus(err), err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, graph.ErrNodeNotFound),
		errors.Is(err, graph.ErrGroupNotFound),
		errors.Is(err, graph.ErrAnnotationNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, execution.ErrAlreadyRunning),
		errors.Is(err, execution.ErrFailed),
		errors.Is(err, execution.ErrNotActive),
		errors.Is(err, graph.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, workspace.ErrNoStore):
		return http.StatusNotImplemented
	case errors.Is(err, graph.ErrDanglingEdge),
		errors.Is(err, graph.ErrGroupTooSmall),
		errors.Is(err, graph.ErrAnnotationType),
		errors.Is(err, workspace.ErrUnknownNodeType),
		errors.Is(err, store.ErrInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, "invalid JSON")
	return false
}
