package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/AaronLay10/FlowEngine/internal/geometry"
	"github.com/AaronLay10/FlowEngine/internal/graph"
	"github.com/AaronLay10/FlowEngine/internal/layout"
)

// requestFormat picks JSON or YAML from ?format= or the Content-Type.
func requestFormat(r *http.Request) (graph.Format, bool) {
	if f := graph.Format(strings.ToLower(r.URL.Query().Get("format"))); f != "" {
		return f, f == graph.FormatJSON || f == graph.FormatYAML
	}
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		return graph.FormatYAML, true
	}
	return graph.FormatJSON, true
}

func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := requestFormat(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "format must be json or yaml")
		return
	}
	b, err := s.ws.Export(f)
	if err != nil {
		fail(w, err)
		return
	}
	if f == graph.FormatYAML {
		w.Header().Set("Content-Type", "application/yaml")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	_, _ = w.Write(b)
}

func (s *Server) importHandler(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	f, ok := requestFormat(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "format must be json or yaml")
		return
	}
	if err := s.ws.Import(data, f); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeOK(w)
}

type SaveRequest struct {
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) saveHandler(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.ws.Save(r.Context(), req.Metadata); err != nil {
		fail(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) reloadHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.Reload(r.Context()); err != nil {
		fail(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) validationHandler(w http.ResponseWriter, r *http.Request) {
	invalid := s.ws.InvalidNodes()
	if invalid == nil {
		invalid = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"invalid": invalid})
}

func (s *Server) nodeTypesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ws.Registry().All())
}

type AddNodeRequest struct {
	Type     string         `json:"type"`
	Position graph.Position `json:"position"`
}

func (s *Server) addNodeHandler(w http.ResponseWriter, r *http.Request) {
	var req AddNodeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "type required")
		return
	}
	n, err := s.ws.AddNode(req.Type, req.Position)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (s *Server) updateNodeHandler(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if !decode(w, r, &fields) {
		return
	}
	n, err := s.ws.UpdateNodeData(mux.Vars(r)["id"], fields)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// MoveRequest carries a new position. Transient moves are drag frames that
// fold into the next committed move.
type MoveRequest struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Transient bool    `json:"transient"`
}

func (s *Server) moveNodeHandler(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.ws.MoveNode(mux.Vars(r)["id"], graph.Position{X: req.X, Y: req.Y}, req.Transient); err != nil {
		fail(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) deleteNodeHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.DeleteNodes(mux.Vars(r)["id"]); err != nil {
		fail(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) connectHandler(w http.ResponseWriter, r *http.Request) {
	var e graph.Edge
	if !decode(w, r, &e) {
		return
	}
	if e.Source == "" || e.Target == "" {
		writeError(w, http.StatusBadRequest, "source and target required")
		return
	}
	e, err := s.ws.Connect(e)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) disconnectHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.Disconnect(mux.Vars(r)["id"]); err != nil {
		fail(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) edgePathsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ws.EdgePaths())
}

// floatParams parses the named query parameters. Missing ones take def.
func floatParams(r *http.Request, def float64, names ...string) ([]float64, bool) {
	out := make([]float64, len(names))
	for i, name := range names {
		out[i] = def
		v := r.URL.Query().Get(name)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

type HitResponse struct {
	Node *graph.Node `json:"node,omitempty"`
	Edge *graph.Edge `json:"edge,omitempty"`
}

// hitHandler reports what lies under ?x=&y=. Nodes win over edges.
func (s *Server) hitHandler(w http.ResponseWriter, r *http.Request) {
	v, ok := floatParams(r, 0, "x", "y")
	if !ok {
		writeError(w, http.StatusBadRequest, "x and y must be numbers")
		return
	}
	th, ok := floatParams(r, geometry.DefaultHitThreshold, "threshold")
	if !ok {
		writeError(w, http.StatusBadRequest, "threshold must be a number")
		return
	}
	p := geometry.Point{X: v[0], Y: v[1]}
	var resp HitResponse
	if n, ok := s.ws.NodeAt(p); ok {
		resp.Node = &n
	} else if e, ok := s.ws.EdgeAt(p, th[0]); ok {
		resp.Edge = &e
	}
	writeJSON(w, http.StatusOK, resp)
}

type LayoutResponse struct {
	Layers    [][]string   `json:"layers"`
	BackEdges []graph.Edge `json:"backEdges"`
}

func (s *Server) layoutHandler(w http.ResponseWriter, r *http.Request) {
	lay, err := s.ws.AutoLayout()
	if err != nil {
		fail(w, err)
		return
	}
	resp := LayoutResponse{Layers: lay.Layers, BackEdges: lay.BackEdges}
	if resp.Layers == nil {
		resp.Layers = [][]string{}
	}
	if resp.BackEdges == nil {
		resp.BackEdges = []graph.Edge{}
	}
	writeJSON(w, http.StatusOK, resp)
}

type AlignRequest struct {
	Direction layout.Alignment `json:"direction"`
}

func (s *Server) alignHandler(w http.ResponseWriter, r *http.Request) {
	var req AlignRequest
	if !decode(w, r, &req) {
		return
	}
	switch req.Direction {
	case layout.AlignLeft, layout.AlignRight, layout.AlignTop, layout.AlignBottom, layout.AlignCenterH, layout.AlignCenterV:
	default:
		writeError(w, http.StatusBadRequest, "unknown direction")
		return
	}
	if err := s.ws.Align(req.Direction); err != nil {
		fail(w, err)
		return
	}
	writeOK(w)
}

type DistributeRequest struct {
	Axis layout.Axis `json:"axis"`
}

func (s *Server) distributeHandler(w http.ResponseWriter, r *http.Request) {
	var req DistributeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Axis != layout.Horizontal && req.Axis != layout.Vertical {
		writeError(w, http.StatusBadRequest, "axis must be horizontal or vertical")
		return
	}
	if err := s.ws.Distribute(req.Axis); err != nil {
		fail(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) viewportHandler(w http.ResponseWriter, r *http.Request) {
	v, ok := floatParams(r, 0, "width", "height")
	if !ok || v[0] <= 0 || v[1] <= 0 {
		writeError(w, http.StatusBadRequest, "width and height must be positive numbers")
		return
	}
	pad, ok := floatParams(r, layout.DefaultPadding, "padding")
	if !ok {
		writeError(w, http.StatusBadRequest, "padding must be a number")
		return
	}
	writeJSON(w, http.StatusOK, s.ws.FitToView(v[0], v[1], pad[0]))
}

type HistoryResponse struct {
	CanUndo bool `json:"canUndo"`
	CanRedo bool `json:"canRedo"`
	Past    int  `json:"past"`
	Future  int  `json:"future"`
}

func (s *Server) historyResponse() HistoryResponse {
	past, future := s.ws.HistoryDepth()
	return HistoryResponse{CanUndo: past > 0, CanRedo: future > 0, Past: past, Future: future}
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.historyResponse())
}

func (s *Server) undoHandler(w http.ResponseWriter, r *http.Request) {
	s.ws.Undo()
	writeJSON(w, http.StatusOK, s.historyResponse())
}

func (s *Server) redoHandler(w http.ResponseWriter, r *http.Request) {
	s.ws.Redo()
	writeJSON(w, http.StatusOK, s.historyResponse())
}

type SelectionResponse struct {
	Selected []string `json:"selected"`
}

func (s *Server) writeSelection(w http.ResponseWriter) {
	sel := s.ws.Selected()
	if sel == nil {
		sel = []string{}
	}
	writeJSON(w, http.StatusOK, SelectionResponse{Selected: sel})
}

func (s *Server) selectionHandler(w http.ResponseWriter, r *http.Request) {
	s.writeSelection(w)
}

type SelectRequest struct {
	ID    string `json:"id"`
	Multi bool   `json:"multi"`
}

func (s *Server) selectHandler(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id required")
		return
	}
	s.ws.Select(req.ID, req.Multi)
	s.writeSelection(w)
}

func (s *Server) selectAllHandler(w http.ResponseWriter, r *http.Request) {
	s.ws.SelectAll()
	s.writeSelection(w)
}

type AreaRequest struct {
	Start geometry.Point `json:"start"`
	End   geometry.Point `json:"end"`
}

func (s *Server) selectAreaHandler(w http.ResponseWriter, r *http.Request) {
	var req AreaRequest
	if !decode(w, r, &req) {
		return
	}
	s.ws.SelectArea(req.Start, req.End)
	s.writeSelection(w)
}

func (s *Server) clearSelectionHandler(w http.ResponseWriter, r *http.Request) {
	s.ws.ClearSelection()
	s.writeSelection(w)
}

func (s *Server) deleteSelectedHandler(w http.ResponseWriter, r *http.Request) {
	removed, err := s.ws.DeleteSelected()
	if err != nil {
		fail(w, err)
		return
	}
	if removed == nil {
		removed = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"deleted": removed})
}

func (s *Server) duplicateHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.Duplicate(); err != nil {
		fail(w, err)
		return
	}
	s.writeSelection(w)
}

func (s *Server) clipboardHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ws.Clipboard())
}

func (s *Server) copyHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"copied": s.ws.Copy()})
}

type PasteRequest struct {
	Offset *geometry.Point `json:"offset"`
}

// pasteHandler pastes the clipboard, offset by 50,50 unless told otherwise.
func (s *Server) pasteHandler(w http.ResponseWriter, r *http.Request) {
	var req PasteRequest
	if !decode(w, r, &req) {
		return
	}
	offset := geometry.Point{X: 50, Y: 50}
	if req.Offset != nil {
		offset = *req.Offset
	}
	if err := s.ws.Paste(offset); err != nil {
		fail(w, err)
		return
	}
	s.writeSelection(w)
}

type GroupRequest struct {
	Label   string   `json:"label"`
	NodeIDs []string `json:"nodeIds"`
}

func (s *Server) createGroupHandler(w http.ResponseWriter, r *http.Request) {
	var req GroupRequest
	if !decode(w, r, &req) {
		return
	}
	g, err := s.ws.CreateGroup(req.Label, req.NodeIDs)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) updateGroupHandler(w http.ResponseWriter, r *http.Request) {
	var u graph.GroupUpdate
	if !decode(w, r, &u) {
		return
	}
	if err := s.ws.UpdateGroup(mux.Vars(r)["id"], u); err != nil {
		fail(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) dissolveGroupHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.DissolveGroup(mux.Vars(r)["id"]); err != nil {
		fail(w, err)
		return
	}
	writeOK(w)
}

// groupMembersHandler adapts the add/remove member commands.
func (s *Server) groupMembersHandler(op func(id string, nodeIDs ...string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GroupRequest
		if !decode(w, r, &req) {
			return
		}
		if len(req.NodeIDs) == 0 {
			writeError(w, http.StatusBadRequest, "nodeIds required")
			return
		}
		if err := op(mux.Vars(r)["id"], req.NodeIDs...); err != nil {
			fail(w, err)
			return
		}
		writeOK(w)
	}
}

func (s *Server) addToGroupHandler(w http.ResponseWriter, r *http.Request) {
	s.groupMembersHandler(s.ws.AddToGroup)(w, r)
}

func (s *Server) removeFromGroupHandler(w http.ResponseWriter, r *http.Request) {
	s.groupMembersHandler(s.ws.RemoveFromGroup)(w, r)
}

func (s *Server) fitGroupHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.FitGroup(mux.Vars(r)["id"]); err != nil {
		fail(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) toggleGroupHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.ToggleGroup(mux.Vars(r)["id"]); err != nil {
		fail(w, err)
		return
	}
	writeOK(w)
}

type AnnotationRequest struct {
	Type     graph.AnnotationType `json:"type"`
	Position graph.Position       `json:"position"`
	Content  string               `json:"content"`
}

func (s *Server) addAnnotationHandler(w http.ResponseWriter, r *http.Request) {
	var req AnnotationRequest
	if !decode(w, r, &req) {
		return
	}
	a, err := s.ws.AddAnnotation(req.Type, req.Position, req.Content)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) updateAnnotationHandler(w http.ResponseWriter, r *http.Request) {
	var u graph.AnnotationUpdate
	if !decode(w, r, &u) {
		return
	}
	if err := s.ws.UpdateAnnotation(mux.Vars(r)["id"], u); err != nil {
		fail(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) moveAnnotationHandler(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.ws.MoveAnnotation(mux.Vars(r)["id"], graph.Position{X: req.X, Y: req.Y}, req.Transient); err != nil {
		fail(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) resizeAnnotationHandler(w http.ResponseWriter, r *http.Request) {
	var size geometry.Size
	if !decode(w, r, &size) {
		return
	}
	if size.Width <= 0 || size.Height <= 0 {
		writeError(w, http.StatusBadRequest, "width and height must be positive")
		return
	}
	if err := s.ws.ResizeAnnotation(mux.Vars(r)["id"], size.Width, size.Height); err != nil {
		fail(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) deleteAnnotationHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.DeleteAnnotation(mux.Vars(r)["id"]); err != nil {
		fail(w, err)
		return
	}
	writeOK(w)
}
