package graph

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/FlowEngine/internal/geometry"
)

func chain(ids ...string) Snapshot {
	var s Snapshot
	for i, id := range ids {
		s.Nodes = append(s.Nodes, Node{ID: id, Type: KindTransform, Position: Position{X: float64(i * 300)}})
		if i > 0 {
			s.Edges = append(s.Edges, Edge{ID: EdgeID(ids[i-1], id), Source: ids[i-1], Target: id})
		}
	}
	return s
}

func TestValidateDanglingEdge(t *testing.T) {
	s := chain("a", "b")
	require.NoError(t, s.Validate())

	s.Edges = append(s.Edges, Edge{ID: "x", Source: "a", Target: "ghost"})
	err := s.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDanglingEdge))
}

func TestConnectRejectsUnknownAndDuplicate(t *testing.T) {
	s := chain("a", "b", "c")

	_, err := s.Connect(Edge{Source: "a", Target: "nope"})
	assert.ErrorIs(t, err, ErrDanglingEdge)

	_, err = s.Connect(Edge{Source: "a", Target: "b"})
	assert.ErrorIs(t, err, ErrDuplicateID)

	out, err := s.Connect(Edge{Source: "a", Target: "c"})
	require.NoError(t, err)
	assert.Len(t, out.Edges, 3)
	assert.Equal(t, "edge-a-c", out.Edges[2].ID)
	assert.Len(t, s.Edges, 2, "receiver untouched")
}

func TestRemoveNodesCascadesEdges(t *testing.T) {
	s := chain("a", "b", "c")
	out := s.RemoveNodes("b")

	assert.Equal(t, []string{"a", "c"}, out.NodeIDs())
	assert.Empty(t, out.Edges)
	assert.NoError(t, out.Validate())
}

func TestWalkDiamond(t *testing.T) {
	s := chain("a", "b", "d")
	s.Nodes = append(s.Nodes, Node{ID: "c", Type: KindTransform})
	s.Edges = append(s.Edges,
		Edge{ID: "a-c", Source: "a", Target: "c"},
		Edge{ID: "c-d", Source: "c", Target: "d"},
	)

	tr := Walk(s)
	assert.Equal(t, []string{"a"}, tr.Starts)
	assert.Empty(t, tr.BackEdges)

	pos := map[string]int{}
	for i, id := range tr.Order {
		pos[id] = i
	}
	for _, e := range s.Edges {
		assert.Less(t, pos[e.Source], pos[e.Target], "edge %s", e.ID)
	}
}

func TestWalkCycleReportsBackEdge(t *testing.T) {
	s := chain("a", "b", "c")
	s.Edges = append(s.Edges, Edge{ID: "loop", Source: "c", Target: "b"})

	tr := Walk(s)
	require.Len(t, tr.BackEdges, 1)
	assert.Equal(t, "loop", tr.BackEdges[0].ID)
	assert.Equal(t, []string{"a", "b", "c"}, tr.Order)
}

func TestWalkNoStartFallsBackToFirstNode(t *testing.T) {
	s := chain("a", "b")
	s.Edges = append(s.Edges, Edge{ID: "back", Source: "b", Target: "a"})
	s.Nodes = append(s.Nodes, Node{ID: "z", Type: KindTrigger})
	s.Edges = append(s.Edges, Edge{ID: "self", Source: "z", Target: "z"})

	tr := Walk(s)
	assert.Equal(t, []string{"a"}, tr.Starts)
	assert.Equal(t, []string{"a", "b", "z"}, tr.Order)
	assert.False(t, tr.Reachable["z"])
}

func TestGroupsLifecycle(t *testing.T) {
	s := chain("a", "b", "c")
	size := geometry.Size{Width: 200, Height: 80}

	_, _, err := Groups(nil).Create("g1", "", []string{"a"}, s.Nodes, size)
	assert.ErrorIs(t, err, ErrGroupTooSmall)

	gs, g, err := Groups(nil).Create("g1", "", []string{"a", "b", "a"}, s.Nodes, size)
	require.NoError(t, err)
	assert.Equal(t, DefaultGroupLabel, g.Label)
	assert.Equal(t, []string{"a", "b"}, g.NodeIDs)
	assert.Equal(t, Position{X: -20, Y: -20}, g.Position)
	assert.Equal(t, geometry.Size{Width: 540, Height: 120}, g.Size)

	gs, err = gs.AddNodes("g1", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, gs.Members("g1"))

	id, ok := gs.GroupOf("c")
	assert.True(t, ok)
	assert.Equal(t, "g1", id)

	gs, err = gs.ToggleCollapse("g1")
	require.NoError(t, err)
	got, _ := gs.Get("g1")
	assert.True(t, got.Collapsed)

	gs = gs.RemoveNodes("g1", "a", "b")
	assert.Equal(t, []string{"c"}, gs.Members("g1"))
	gs = gs.ForgetNodes("c")
	assert.Empty(t, gs, "empty groups dissolve")
}

func TestGroupResizeToFit(t *testing.T) {
	s := chain("a", "b")
	size := geometry.Size{Width: 200, Height: 80}
	gs, _, err := Groups(nil).Create("g", "pipeline", []string{"a", "b"}, s.Nodes, size)
	require.NoError(t, err)

	moved, err := s.MoveNode("b", Position{X: 300, Y: 200})
	require.NoError(t, err)
	gs, err = gs.ResizeToFit("g", moved.Nodes, size)
	require.NoError(t, err)

	g, _ := gs.Get("g")
	assert.Equal(t, geometry.Size{Width: 540, Height: 320}, g.Size)

	_, err = gs.ResizeToFit("missing", moved.Nodes, size)
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestAnnotationDefaults(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	note, err := NewAnnotation("n1", AnnotationNote, Position{X: 1, Y: 2}, "hello", now)
	require.NoError(t, err)
	assert.Equal(t, "#fef3c7", note.Color)
	assert.Equal(t, DefaultFontSize, note.FontSize)
	assert.Equal(t, &geometry.Size{Width: 200, Height: 100}, note.Size)

	arrow, err := NewAnnotation("a1", AnnotationArrow, Position{}, "", now)
	require.NoError(t, err)
	assert.Nil(t, arrow.Size)
	assert.Equal(t, "#93c5fd", arrow.Color)

	_, err = NewAnnotation("x", "sticker", Position{}, "", now)
	assert.ErrorIs(t, err, ErrAnnotationType)

	as := Annotations{}.Add(note).Add(arrow)
	as, err = as.Resize("n1", 300, 150)
	require.NoError(t, err)
	as, err = as.Move("a1", Position{X: 9, Y: 9})
	require.NoError(t, err)
	content := "edited"
	as, err = as.Update("n1", AnnotationUpdate{Content: &content})
	require.NoError(t, err)

	assert.Equal(t, "edited", as[0].Content)
	assert.Equal(t, 300.0, as[0].Size.Width)
	assert.Equal(t, Position{X: 9, Y: 9}, as[1].Position)
	assert.Equal(t, 200.0, note.Size.Width, "original annotation untouched")
	assert.Len(t, as.Delete("n1"), 1)
}

func sampleDocument() Document {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	note, _ := NewAnnotation("note-1", AnnotationNote, Position{X: 10, Y: 10}, "remember", now)
	return Document{
		Version: DocumentVersion,
		Nodes: []Node{
			{ID: "in", Type: KindInput, Position: Position{X: 100, Y: 40}, Data: InputData{Label: "Input", InputValue: "hi"}},
			{ID: "ai", Type: KindAIPrompt, Position: Position{X: 350, Y: 40}, Data: AIPromptData{
				Label: "Ask", PromptTemplate: "Say {{input}}", Model: "llama3.2:latest", Temperature: 0.7, MaxTokens: 2000,
			}},
			{ID: "sw", Type: KindSwitch, Data: SwitchData{Label: "Route", Cases: []string{"a", "b"}}},
			{ID: "custom", Type: "webhook", Data: GenericData{Type: "webhook", Fields: map[string]any{
				"label": "Hook", "retries": 3.5, "headers": map[string]any{"x-key": "v"},
			}}},
			{ID: "bare", Type: KindOutput},
		},
		Edges: []Edge{
			{ID: "e1", Source: "in", Target: "ai", Label: "prompt"},
			{ID: "e2", Source: "ai", Target: "sw", SourceHandle: "out", TargetHandle: "in"},
		},
		Groups:      Groups{{ID: "g", Label: "Core", NodeIDs: []string{"in", "ai"}, Color: "#fff", Size: geometry.Size{Width: 1, Height: 2}}},
		Annotations: Annotations{note},
		Metadata:    map[string]any{"name": "demo", "category": "general"},
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	for _, f := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(f), func(t *testing.T) {
			doc := sampleDocument()
			data, err := Encode(doc, f)
			require.NoError(t, err)

			got, err := Decode(data, f)
			require.NoError(t, err)
			assert.Equal(t, doc, *got)
		})
	}
}

func TestDocumentKeepsUnmodelledData(t *testing.T) {
	raw := `{"nodes":[
		{"id":"h","type":"http","position":{"x":0,"y":0},"data":{"label":"H","url":"u","headers":{"X":"1"},"timeout":30}},
		{"id":"i","type":"input","position":{"x":0,"y":0},"data":{"label":"I"}},
		{"id":"c","type":"condition","position":{"x":0,"y":0},"data":{"condition":"","loopCount":0}}
	],"edges":[],"groups":[],"annotations":[]}`
	want := []string{
		`{"label":"H","url":"u","headers":{"X":"1"},"timeout":30}`,
		`{"label":"I"}`,
		`{"condition":"","loopCount":0}`,
	}

	doc, err := Decode([]byte(raw), FormatJSON)
	require.NoError(t, err)
	h := doc.Nodes[0].Data.(HTTPData)
	assert.Equal(t, "u", h.URL)
	assert.Equal(t, Extra{"headers": map[string]any{"X": "1"}, "timeout": 30.0}, h.Extra)
	assert.Equal(t, InputData{Label: "I"}, doc.Nodes[1].Data)

	for _, f := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(f), func(t *testing.T) {
			out, err := Encode(*doc, f)
			require.NoError(t, err)
			again, err := Decode(out, f)
			require.NoError(t, err)
			require.Len(t, again.Nodes, len(want))
			for i, n := range again.Nodes {
				b, err := json.Marshal(n)
				require.NoError(t, err)
				var w struct {
					Data json.RawMessage `json:"data"`
				}
				require.NoError(t, json.Unmarshal(b, &w))
				assert.JSONEq(t, want[i], string(w.Data), n.ID)
			}
		})
	}
}

func TestDecodeWithoutVersion(t *testing.T) {
	doc, err := Decode([]byte(`{"nodes":[{"id":"a","type":"input"}],"edges":[],"groups":[],"annotations":[],"metadata":{"name":"x"}}`), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, DocumentVersion, doc.Version)
	assert.Equal(t, "x", doc.Metadata["name"])

	doc, err = Decode([]byte("nodes:\n  - id: a\n    type: output\n"), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, DocumentVersion, doc.Version)
}

func TestDecodePrunesStaleGroupMembers(t *testing.T) {
	doc, err := Decode([]byte(`{"version":1,"nodes":[{"id":"a","type":"input"}],"edges":[],
		"groups":[{"id":"g1","nodeIds":["a","gone"]},{"id":"g2","nodeIds":["gone"]}]}`), FormatJSON)
	require.NoError(t, err)
	require.Len(t, doc.Groups, 1)
	assert.Equal(t, "g1", doc.Groups[0].ID)
	assert.Equal(t, []string{"a"}, doc.Groups[0].NodeIDs)
}

func TestDecodeRejectsBadDocuments(t *testing.T) {
	_, err := Decode([]byte(`{"version":2,"nodes":[],"edges":[]}`), FormatJSON)
	assert.Error(t, err)

	_, err = Decode([]byte(`{"version":1,"nodes":[{"id":"a","type":"input"}],"edges":[{"id":"e","source":"a","target":"b"}]}`), FormatJSON)
	assert.ErrorIs(t, err, ErrDanglingEdge)

	_, err = Decode([]byte(`{"version":1,"nodes":[{"id":"a","type":"loop","data":{"loopCount":"many"}}]}`), FormatJSON)
	assert.Error(t, err)
}

func TestLoadAndSaveDocument(t *testing.T) {
	path := t.TempDir() + "/flow.yaml"
	doc := sampleDocument()
	require.NoError(t, SaveDocument(path, doc))

	got, err := LoadDocument(path)
	require.NoError(t, err)
	assert.Equal(t, doc.Nodes, got.Nodes)
	assert.Equal(t, FormatYAML, FormatFromPath(path))
	assert.Equal(t, FormatJSON, FormatFromPath("flow.json"))
}

func TestDataFromMap(t *testing.T) {
	d, err := DataFromMap(KindLoop, map[string]any{"label": "Loop", "loopType": "count", "loopCount": 3})
	require.NoError(t, err)
	assert.Equal(t, LoopData{Label: "Loop", LoopType: "count", LoopCount: 3}, d)

	g, err := DataFromMap("webhook", map[string]any{"label": "Hook"})
	require.NoError(t, err)
	assert.Equal(t, "webhook", g.Kind())
	assert.Equal(t, "Hook", g.Title())
}

func TestNodeCloneIsDeep(t *testing.T) {
	n := Node{ID: "s", Type: KindSwitch, Data: SwitchData{Cases: []string{"x"}}}
	c := n.Clone()
	c.Data.(SwitchData).Cases[0] = "changed"
	assert.Equal(t, "x", n.Data.(SwitchData).Cases[0])

	g := Node{ID: "g", Type: "custom", Data: GenericData{Type: "custom", Fields: map[string]any{"nested": map[string]any{"k": "v"}}}}
	h := Node{ID: "h", Type: KindHTTP, Data: HTTPData{URL: "u", Extra: Extra{"headers": map[string]any{"X": "1"}}}}
	h.Clone().Data.(HTTPData).Extra["headers"].(map[string]any)["X"] = "2"
	assert.Equal(t, "1", h.Data.(HTTPData).Extra["headers"].(map[string]any)["X"])

	gc := g.Clone()
	gc.Data.(GenericData).Fields["nested"].(map[string]any)["k"] = "changed"
	assert.Equal(t, "v", g.Data.(GenericData).Fields["nested"].(map[string]any)["k"])
	assert.Equal(t, "g", g.Label())
}

func TestNodeAt(t *testing.T) {
	nodes := chain("a", "b").Nodes
	size := geometry.Size{Width: 200, Height: 80}

	n, ok := NodeAt(nodes, Position{X: 310, Y: 40}, size)
	require.True(t, ok)
	assert.Equal(t, "b", n.ID)

	_, ok = NodeAt(nodes, Position{X: 250, Y: 40}, size)
	assert.False(t, ok)
}
