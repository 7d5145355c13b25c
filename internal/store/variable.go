package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/AaronLay10/FlowEngine/internal/graph"
)

// VarType is the declared type of a variable value.
type VarType string

const (
	VarString  VarType = "string"
	VarNumber  VarType = "number"
	VarBoolean VarType = "boolean"
	VarObject  VarType = "object"
	VarArray   VarType = "array"
)

// VarScope says where a variable is visible.
type VarScope string

const (
	ScopeWorkflow    VarScope = "workflow"
	ScopeGlobal      VarScope = "global"
	ScopeEnvironment VarScope = "environment"
)

// MaskedValue replaces encrypted values in listings.
const MaskedValue = "••••••••"

// Variable is a named value made available to debug sessions.
type Variable struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Value       any       `json:"value"`
	Type        VarType   `json:"type"`
	Scope       VarScope  `json:"scope"`
	WorkflowID  string    `json:"workflowId,omitempty"`
	Encrypted   bool      `json:"encrypted,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Masked returns v with its value hidden when it is encrypted.
func (v Variable) Masked() Variable {
	if v.Encrypted {
		v.Value = MaskedValue
	}
	return v
}

// ParseValue converts the textual form of a value to typ.
func ParseValue(typ VarType, raw string) (any, error) {
	switch typ {
	case VarString, "":
		return raw, nil
	case VarNumber:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", raw, ErrInvalid)
		}
		return f, nil
	case VarBoolean:
		return raw == "true" || raw == "1", nil
	case VarObject:
		var m map[string]any
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("invalid object: %w", ErrInvalid)
		}
		return m, nil
	case VarArray:
		var a []any
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("invalid array: %w", ErrInvalid)
		}
		return a, nil
	}
	return nil, fmt.Errorf("unknown variable type %q: %w", typ, ErrInvalid)
}

// VariableFilter narrows Variables.List. Query matches name or description
// case-insensitively; Scope "" or "all" matches every scope.
type VariableFilter struct {
	Query string
	Scope VarScope
}

func (f VariableFilter) match(v Variable) bool {
	if f.Scope != "" && f.Scope != "all" && v.Scope != f.Scope {
		return false
	}
	q := strings.ToLower(f.Query)
	return strings.Contains(strings.ToLower(v.Name), q) ||
		strings.Contains(strings.ToLower(v.Description), q)
}

// Variables manages Variable records. Workflow-scoped variables are stored
// under their workflow id; global and environment ones are unscoped.
type Variables struct {
	store Store
	ids   graph.IDFunc
	now   func() time.Time
}

func NewVariables(s Store, ids graph.IDFunc, now func() time.Time) *Variables {
	if ids == nil {
		ids = graph.NewID
	}
	if now == nil {
		now = time.Now
	}
	return &Variables{store: s, ids: ids, now: now}
}

// Save creates v when its id is empty and updates it otherwise.
func (vs *Variables) Save(ctx context.Context, v Variable) (Variable, error) {
	v.Name = strings.TrimSpace(v.Name)
	if v.Name == "" {
		return Variable{}, fmt.Errorf("variable name is required: %w", ErrInvalid)
	}
	if v.Type == "" {
		v.Type = VarString
	}
	switch v.Scope {
	case "":
		v.Scope = ScopeWorkflow
	case ScopeWorkflow, ScopeGlobal, ScopeEnvironment:
	default:
		return Variable{}, fmt.Errorf("unknown scope %q: %w", v.Scope, ErrInvalid)
	}
	if v.Scope == ScopeWorkflow && v.WorkflowID == "" {
		return Variable{}, fmt.Errorf("workflow variable %q needs a workflow id: %w", v.Name, ErrInvalid)
	}
	if v.Scope != ScopeWorkflow {
		v.WorkflowID = ""
	}

	now := vs.now().UTC()
	if v.ID == "" {
		v.ID = vs.ids("var")
		v.CreatedAt = now
	} else if prev, err := vs.Get(ctx, v.ID); err == nil {
		v.CreatedAt = prev.CreatedAt
	}
	v.UpdatedAt = now
	if _, err := put(ctx, vs.store, KindVariable, v.ID, v.WorkflowID, v); err != nil {
		return Variable{}, err
	}
	return v, nil
}

func (vs *Variables) Get(ctx context.Context, id string) (Variable, error) {
	return get[Variable](ctx, vs.store, KindVariable, id)
}

func (vs *Variables) Delete(ctx context.Context, id string) error {
	return vs.store.Delete(ctx, KindVariable, id)
}

// List returns the global and environment variables plus the ones scoped to
// workflowID, filtered by f.
func (vs *Variables) List(ctx context.Context, workflowID string, f VariableFilter) ([]Variable, error) {
	all, err := list[Variable](ctx, vs.store, KindVariable, "")
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(v Variable) bool {
		if v.Scope == ScopeWorkflow && v.WorkflowID != workflowID {
			return true
		}
		return !f.match(v)
	}), nil
}

// Resolve returns the values visible to a session of workflowID keyed by
// name. Workflow variables shadow environment ones, which shadow globals.
func (vs *Variables) Resolve(ctx context.Context, workflowID string) (map[string]any, error) {
	visible, err := vs.List(ctx, workflowID, VariableFilter{})
	if err != nil {
		return nil, err
	}
	rank := map[VarScope]int{ScopeGlobal: 0, ScopeEnvironment: 1, ScopeWorkflow: 2}
	slices.SortStableFunc(visible, func(a, b Variable) int { return rank[a.Scope] - rank[b.Scope] })
	out := make(map[string]any, len(visible))
	for _, v := range visible {
		out[v.Name] = v.Value
	}
	return out, nil
}
