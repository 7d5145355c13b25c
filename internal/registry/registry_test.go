package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/AaronLay10/FlowEngine/internal/graph"
)

func TestRegistry_RegisterOverwrites(t *testing.T) {
	r := New()

	r.Register(NodeTypeConfig{Type: "webhook", Label: "Webhook", Category: CategoryInput})
	r.Register(NodeTypeConfig{Type: "webhook", Label: "Hook v2", Category: CategoryCustom})

	got, ok := r.Get("webhook")
	if !ok {
		t.Fatal("expected webhook to be registered")
	}
	if got.Label != "Hook v2" {
		t.Errorf("expected last registration to win, got %q", got.Label)
	}
	if n := len(r.All()); n != 1 {
		t.Errorf("expected 1 type, got %d", n)
	}
}

func TestRegistry_CreateNodeUnknownType(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	r := New(WithLogger(zap.New(core)))

	n, ok := r.CreateNode("nope", graph.Position{})
	if ok {
		t.Fatalf("expected no node, got %+v", n)
	}
	if logs.FilterMessage("unknown node type").Len() != 1 {
		t.Error("expected a warning for the unknown type")
	}
}

func TestRegistry_CreateNodeClonesDefaults(t *testing.T) {
	r := NewDefault(WithIDFunc(graph.SequentialIDs()))

	a, ok := r.CreateNode(graph.KindLoop, graph.Position{X: 10, Y: 20})
	if !ok {
		t.Fatal("expected loop node")
	}
	b, _ := r.CreateNode(graph.KindLoop, graph.Position{})

	if a.ID == b.ID {
		t.Errorf("expected distinct ids, got %s twice", a.ID)
	}
	if a.ID != "loop-1" {
		t.Errorf("expected id loop-1, got %s", a.ID)
	}
	loop, ok := a.Data.(graph.LoopData)
	if !ok {
		t.Fatalf("expected LoopData, got %T", a.Data)
	}
	if loop.LoopType != "count" || loop.LoopCount != 3 {
		t.Errorf("unexpected loop defaults: %+v", loop)
	}
	if a.Position != (graph.Position{X: 10, Y: 20}) {
		t.Errorf("unexpected position %+v", a.Position)
	}
}

func TestRegistry_DefaultIDFormat(t *testing.T) {
	r := NewDefault()
	n, _ := r.CreateNode(graph.KindInput, graph.Position{})

	parts := strings.Split(n.ID, "-")
	if len(parts) != 3 || parts[0] != "input" || len(parts[2]) != 9 {
		t.Errorf("expected <type>-<millis>-<suffix>, got %q", n.ID)
	}
}

func TestRegistry_ValidateAIPrompt(t *testing.T) {
	r := NewDefault()

	n, _ := r.CreateNode(graph.KindAIPrompt, graph.Position{})
	if r.Validate(n) {
		t.Error("expected empty prompt template to be invalid")
	}

	p := n.Data.(graph.AIPromptData)
	if p.Model != "llama3.2:latest" || p.Temperature != 0.7 || p.MaxTokens != 2000 {
		t.Errorf("unexpected ai prompt defaults: %+v", p)
	}
	p.PromptTemplate = "Summarize {{input}}"
	n.Data = p
	if !r.Validate(n) {
		t.Error("expected filled prompt template to be valid")
	}

	if !r.Validate(graph.Node{Type: "unknown"}) {
		t.Error("expected unknown types to validate")
	}
}

func TestRegistry_ByCategoryAndOrder(t *testing.T) {
	r := NewDefault()

	all := r.All()
	if all[0].Type != graph.KindInput || all[1].Type != graph.KindOutput {
		t.Errorf("expected registration order, got %s, %s", all[0].Type, all[1].Type)
	}

	logic := r.ByCategory(CategoryLogic)
	want := []string{graph.KindCondition, graph.KindLoop, graph.KindSwitch}
	if len(logic) != len(want) {
		t.Fatalf("expected %d logic types, got %d", len(want), len(logic))
	}
	for i, c := range logic {
		if c.Type != want[i] {
			t.Errorf("logic[%d] = %s, want %s", i, c.Type, want[i])
		}
	}
}

func TestRegistry_UnregisterAndClear(t *testing.T) {
	r := NewDefault()

	r.Unregister(graph.KindLoop)
	if _, ok := r.Get(graph.KindLoop); ok {
		t.Error("expected loop to be gone")
	}
	if r.Color(graph.KindLoop) != FallbackColor || r.Icon(graph.KindLoop) != FallbackIcon {
		t.Error("expected display fallbacks for unregistered type")
	}
	if r.Label(graph.KindLoop) != graph.KindLoop {
		t.Error("expected label fallback to the type name")
	}

	r.Clear()
	if len(r.All()) != 0 {
		t.Error("expected empty registry after Clear")
	}
}

func TestRegistry_LoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	content := `version: 1
types:
  - type: webhook
    label: Webhook
    icon: "🪝"
    category: input
    defaults:
      path: /hooks/in
    required: [path]
  - type: loop
    label: Bounded loop
    category: logic
    defaults:
      loopType: count
      loopCount: 10
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewDefault()
	if err := r.LoadCatalog(path); err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}

	hook, ok := r.CreateNode("webhook", graph.Position{})
	if !ok {
		t.Fatal("expected webhook node")
	}
	g, ok := hook.Data.(graph.GenericData)
	if !ok {
		t.Fatalf("expected generic data, got %T", hook.Data)
	}
	if g.Fields["path"] != "/hooks/in" || g.Fields["label"] != "Webhook" {
		t.Errorf("unexpected webhook defaults: %v", g.Fields)
	}
	if !r.Validate(hook) {
		t.Error("expected webhook with path to be valid")
	}
	delete(g.Fields, "path")
	if r.Validate(hook) {
		t.Error("expected webhook without path to be invalid")
	}

	loop, _ := r.CreateNode(graph.KindLoop, graph.Position{})
	if ld := loop.Data.(graph.LoopData); ld.LoopCount != 10 || ld.Label != "Bounded loop" {
		t.Errorf("unexpected loop override: %+v", ld)
	}
}

func TestRegistry_LoadCatalogRejectsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte("version: 3\ntypes: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := New().LoadCatalog(path); err == nil {
		t.Error("expected version error")
	}
}
