package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/AaronLay10/FlowEngine/internal/execution"
)

func (s *Server) debugStateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ws.DebugState())
}

// run drives a session. With ?wait=true it blocks until the session halts
// and replies with the final state; otherwise it runs in the background and
// replies 202 with the state at launch.
func (s *Server) run(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context) error) {
	if r.URL.Query().Get("wait") == "true" {
		if err := fn(r.Context()); err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.ws.DebugState())
		return
	}

	switch s.ws.DebugState().Status {
	case execution.StatusRunning:
		fail(w, execution.ErrAlreadyRunning)
		return
	case execution.StatusError:
		if op == "start" {
			fail(w, execution.ErrFailed)
			return
		}
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		if err := fn(s.runCtx); err != nil {
			s.log.Warn("debug run failed", zap.String("op", op), zap.Error(err))
		}
	}()
	writeJSON(w, http.StatusAccepted, s.ws.DebugState())
}

func (s *Server) debugStartHandler(w http.ResponseWriter, r *http.Request) {
	if s.ws.DebugState().Status == execution.StatusPaused {
		fail(w, execution.ErrAlreadyRunning)
		return
	}
	s.run(w, r, "start", s.ws.StartDebug)
}

func (s *Server) debugContinueHandler(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, "continue", s.ws.ContinueDebug)
}

// debugStepHandler executes one node and always waits for it.
func (s *Server) debugStepHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.StepDebug(r.Context()); err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ws.DebugState())
}

func (s *Server) debugPauseHandler(w http.ResponseWriter, r *http.Request) {
	s.ws.PauseDebug()
	writeJSON(w, http.StatusOK, s.ws.DebugState())
}

func (s *Server) debugStopHandler(w http.ResponseWriter, r *http.Request) {
	s.ws.StopDebug()
	writeJSON(w, http.StatusOK, s.ws.DebugState())
}

type BreakpointRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) setBreakpointHandler(w http.ResponseWriter, r *http.Request) {
	req := BreakpointRequest{Enabled: true}
	if !decode(w, r, &req) {
		return
	}
	s.ws.SetBreakpoint(mux.Vars(r)["nodeId"], req.Enabled)
	writeJSON(w, http.StatusOK, s.ws.DebugState().Breakpoints)
}

func (s *Server) toggleBreakpointHandler(w http.ResponseWriter, r *http.Request) {
	s.ws.ToggleBreakpoint(mux.Vars(r)["nodeId"])
	writeJSON(w, http.StatusOK, s.ws.DebugState().Breakpoints)
}

func (s *Server) removeBreakpointHandler(w http.ResponseWriter, r *http.Request) {
	s.ws.RemoveBreakpoint(mux.Vars(r)["nodeId"])
	writeJSON(w, http.StatusOK, s.ws.DebugState().Breakpoints)
}
