package graph

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

// Built-in node kinds. Each has its own data variant; anything else is
// carried as GenericData.
const (
	KindInput     = "input"
	KindOutput    = "output"
	KindAIPrompt  = "aiPrompt"
	KindCondition = "condition"
	KindLoop      = "loop"
	KindTransform = "transform"
	KindSwitch    = "switch"
	KindHTTP      = "http"
	KindLLM       = "llm"
	KindDatabase  = "database"
	KindEmail     = "email"
	KindTrigger   = "trigger"
)

// NodeData is the per-type payload of a node. Implementations are plain
// value structs so a Clone is a full copy.
type NodeData interface {
	Kind() string
	Title() string
	Clone() NodeData
}

type InputData struct {
	Label      string `json:"label,omitempty" yaml:"label,omitempty"`
	InputType  string `json:"inputType,omitempty" yaml:"inputType,omitempty"`
	InputValue string `json:"inputValue,omitempty" yaml:"inputValue,omitempty"`

	Extra `json:"-" yaml:"-"`
}

type OutputData struct {
	Label        string `json:"label,omitempty" yaml:"label,omitempty"`
	OutputFormat string `json:"outputFormat,omitempty" yaml:"outputFormat,omitempty"`

	Extra `json:"-" yaml:"-"`
}

type AIPromptData struct {
	Label          string  `json:"label,omitempty" yaml:"label,omitempty"`
	PromptTemplate string  `json:"promptTemplate,omitempty" yaml:"promptTemplate,omitempty"`
	Model          string  `json:"model,omitempty" yaml:"model,omitempty"`
	PersonaID      string  `json:"personaId,omitempty" yaml:"personaId,omitempty"`
	Temperature    float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens      int     `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`

	Extra `json:"-" yaml:"-"`
}

type ConditionData struct {
	Label     string `json:"label,omitempty" yaml:"label,omitempty"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	Extra `json:"-" yaml:"-"`
}

type LoopData struct {
	Label         string `json:"label,omitempty" yaml:"label,omitempty"`
	LoopType      string `json:"loopType,omitempty" yaml:"loopType,omitempty"`
	LoopCount     int    `json:"loopCount,omitempty" yaml:"loopCount,omitempty"`
	LoopCondition string `json:"loopCondition,omitempty" yaml:"loopCondition,omitempty"`

	Extra `json:"-" yaml:"-"`
}

type TransformData struct {
	Label         string `json:"label,omitempty" yaml:"label,omitempty"`
	TransformType string `json:"transformType,omitempty" yaml:"transformType,omitempty"`
	Code          string `json:"code,omitempty" yaml:"code,omitempty"`

	Extra `json:"-" yaml:"-"`
}

type SwitchData struct {
	Label string   `json:"label,omitempty" yaml:"label,omitempty"`
	Cases []string `json:"cases,omitempty" yaml:"cases,omitempty"`

	Extra `json:"-" yaml:"-"`
}

type HTTPData struct {
	Label  string `json:"label,omitempty" yaml:"label,omitempty"`
	URL    string `json:"url,omitempty" yaml:"url,omitempty"`
	Method string `json:"method,omitempty" yaml:"method,omitempty"`

	Extra `json:"-" yaml:"-"`
}

type LLMData struct {
	Label  string `json:"label,omitempty" yaml:"label,omitempty"`
	Prompt string `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Model  string `json:"model,omitempty" yaml:"model,omitempty"`

	Extra `json:"-" yaml:"-"`
}

type DatabaseData struct {
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	Query string `json:"query,omitempty" yaml:"query,omitempty"`

	Extra `json:"-" yaml:"-"`
}

type EmailData struct {
	Label   string `json:"label,omitempty" yaml:"label,omitempty"`
	To      string `json:"to,omitempty" yaml:"to,omitempty"`
	Subject string `json:"subject,omitempty" yaml:"subject,omitempty"`

	Extra `json:"-" yaml:"-"`
}

type TriggerData struct {
	Label    string `json:"label,omitempty" yaml:"label,omitempty"`
	Schedule string `json:"schedule,omitempty" yaml:"schedule,omitempty"`

	Extra `json:"-" yaml:"-"`
}

// Extra carries the data keys a built-in variant does not model, and known
// keys whose zero value was written out, so documents round-trip unchanged.
type Extra map[string]any

func (e Extra) extra() Extra { return e }

func (e *Extra) setExtra(x Extra) { *e = x }

func (e Extra) clone() Extra {
	if e == nil {
		return nil
	}
	return Extra(cloneValue(map[string]any(e)).(map[string]any))
}

// GenericData keeps the raw fields of node types this build does not know.
type GenericData struct {
	Type   string
	Fields map[string]any
}

func (d InputData) Kind() string     { return KindInput }
func (d OutputData) Kind() string    { return KindOutput }
func (d AIPromptData) Kind() string  { return KindAIPrompt }
func (d ConditionData) Kind() string { return KindCondition }
func (d LoopData) Kind() string      { return KindLoop }
func (d TransformData) Kind() string { return KindTransform }
func (d SwitchData) Kind() string    { return KindSwitch }
func (d HTTPData) Kind() string      { return KindHTTP }
func (d LLMData) Kind() string       { return KindLLM }
func (d DatabaseData) Kind() string  { return KindDatabase }
func (d EmailData) Kind() string     { return KindEmail }
func (d TriggerData) Kind() string   { return KindTrigger }
func (d GenericData) Kind() string   { return d.Type }

func (d InputData) Title() string     { return d.Label }
func (d OutputData) Title() string    { return d.Label }
func (d AIPromptData) Title() string  { return d.Label }
func (d ConditionData) Title() string { return d.Label }
func (d LoopData) Title() string      { return d.Label }
func (d TransformData) Title() string { return d.Label }
func (d SwitchData) Title() string    { return d.Label }
func (d HTTPData) Title() string      { return d.Label }
func (d LLMData) Title() string       { return d.Label }
func (d DatabaseData) Title() string  { return d.Label }
func (d EmailData) Title() string     { return d.Label }
func (d TriggerData) Title() string   { return d.Label }

func (d GenericData) Title() string {
	s, _ := d.Fields["label"].(string)
	return s
}

func (d InputData) Clone() NodeData {
	d.Extra = d.Extra.clone()
	return d
}

func (d OutputData) Clone() NodeData {
	d.Extra = d.Extra.clone()
	return d
}

func (d AIPromptData) Clone() NodeData {
	d.Extra = d.Extra.clone()
	return d
}

func (d ConditionData) Clone() NodeData {
	d.Extra = d.Extra.clone()
	return d
}

func (d LoopData) Clone() NodeData {
	d.Extra = d.Extra.clone()
	return d
}

func (d TransformData) Clone() NodeData {
	d.Extra = d.Extra.clone()
	return d
}

func (d HTTPData) Clone() NodeData {
	d.Extra = d.Extra.clone()
	return d
}

func (d LLMData) Clone() NodeData {
	d.Extra = d.Extra.clone()
	return d
}

func (d DatabaseData) Clone() NodeData {
	d.Extra = d.Extra.clone()
	return d
}

func (d EmailData) Clone() NodeData {
	d.Extra = d.Extra.clone()
	return d
}

func (d TriggerData) Clone() NodeData {
	d.Extra = d.Extra.clone()
	return d
}

func (d SwitchData) Clone() NodeData {
	d.Extra = d.Extra.clone()
	d.Cases = slices.Clone(d.Cases)
	return d
}

func (d GenericData) Clone() NodeData {
	return GenericData{Type: d.Type, Fields: cloneValue(d.Fields).(map[string]any)}
}

// cloneValue deep-copies the JSON-shaped values found in generic fields.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return map[string]any(nil)
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// newVariant returns a pointer to the zero variant for kind, or nil when the
// kind has no dedicated variant.
func newVariant(kind string) any {
	switch kind {
	case KindInput:
		return &InputData{}
	case KindOutput:
		return &OutputData{}
	case KindAIPrompt:
		return &AIPromptData{}
	case KindCondition:
		return &ConditionData{}
	case KindLoop:
		return &LoopData{}
	case KindTransform:
		return &TransformData{}
	case KindSwitch:
		return &SwitchData{}
	case KindHTTP:
		return &HTTPData{}
	case KindLLM:
		return &LLMData{}
	case KindDatabase:
		return &DatabaseData{}
	case KindEmail:
		return &EmailData{}
	case KindTrigger:
		return &TriggerData{}
	}
	return nil
}

func deref(p any) NodeData {
	switch v := p.(type) {
	case *InputData:
		return *v
	case *OutputData:
		return *v
	case *AIPromptData:
		return *v
	case *ConditionData:
		return *v
	case *LoopData:
		return *v
	case *TransformData:
		return *v
	case *SwitchData:
		return *v
	case *HTTPData:
		return *v
	case *LLMData:
		return *v
	case *DatabaseData:
		return *v
	case *EmailData:
		return *v
	case *TriggerData:
		return *v
	}
	panic(fmt.Sprintf("graph: unexpected variant %T", p))
}

// IsBuiltinKind reports whether kind has a dedicated data variant.
func IsBuiltinKind(kind string) bool {
	return newVariant(kind) != nil
}

// NewData returns the zero data for kind.
func NewData(kind string) NodeData {
	if v := newVariant(kind); v != nil {
		return deref(v)
	}
	return GenericData{Type: kind, Fields: map[string]any{}}
}

// DecodeDataJSON decodes raw JSON into the variant for kind.
func DecodeDataJSON(kind string, raw []byte) (NodeData, error) {
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode %s data: %w", kind, err)
	}
	if v := newVariant(kind); v != nil {
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, fmt.Errorf("decode %s data: %w", kind, err)
		}
		return withExtra(v, fields)
	}
	return GenericData{Type: kind, Fields: fields}, nil
}

func decodeDataYAML(kind string, n *yaml.Node) (NodeData, error) {
	fields := map[string]any{}
	if err := n.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode %s data: %w", kind, err)
	}
	if v := newVariant(kind); v != nil {
		if err := n.Decode(v); err != nil {
			return nil, fmt.Errorf("decode %s data: %w", kind, err)
		}
		return withExtra(v, fields)
	}
	return GenericData{Type: kind, Fields: fields}, nil
}

// modelled returns the keys a variant writes on its own.
func modelled(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	known := map[string]any{}
	if err := json.Unmarshal(raw, &known); err != nil {
		return nil, err
	}
	return known, nil
}

// withExtra stores the decoded fields the variant v would not write back.
func withExtra(v any, fields map[string]any) (NodeData, error) {
	known, err := modelled(v)
	if err != nil {
		return nil, err
	}
	var extra Extra
	for k, val := range fields {
		if _, ok := known[k]; ok {
			continue
		}
		if extra == nil {
			extra = Extra{}
		}
		extra[k] = val
	}
	v.(interface{ setExtra(Extra) }).setExtra(extra)
	return deref(v), nil
}

// DataFromMap converts loosely typed fields (from a catalog file or an API
// request) into the variant for kind.
func DataFromMap(kind string, fields map[string]any) (NodeData, error) {
	if !IsBuiltinKind(kind) {
		return GenericData{Type: kind, Fields: cloneValue(maps.Clone(fields)).(map[string]any)}, nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", kind, err)
	}
	return DecodeDataJSON(kind, raw)
}

// dataPayload is what gets serialized under a node's "data" key. Modelled
// fields win over an Extra key of the same name.
func dataPayload(d NodeData) (any, error) {
	if g, ok := d.(GenericData); ok {
		if g.Fields == nil {
			return map[string]any{}, nil
		}
		return g.Fields, nil
	}
	x, ok := d.(interface{ extra() Extra })
	if !ok || len(x.extra()) == 0 {
		return d, nil
	}
	known, err := modelled(d)
	if err != nil {
		return nil, err
	}
	out := maps.Clone(map[string]any(x.extra()))
	maps.Copy(out, known)
	return out, nil
}
