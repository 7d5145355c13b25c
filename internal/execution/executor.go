package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/AaronLay10/FlowEngine/internal/graph"
)

// Request is what an executor receives for one node.
type Request struct {
	Node graph.Node
	// Inputs maps each upstream node id to its recorded output.
	Inputs map[string]any
	// Variables is a copy of the session variables.
	Variables map[string]any
}

// Executor runs one node and returns its output.
type Executor interface {
	Execute(ctx context.Context, req Request) (any, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req Request) (any, error)

func (f ExecutorFunc) Execute(ctx context.Context, req Request) (any, error) {
	return f(ctx, req)
}

// Default simulated latencies.
const (
	DefaultHTTPLatency = 300 * time.Millisecond
	DefaultLLMLatency  = 500 * time.Millisecond
)

// Simulator provides the placeholder executors for the built-in node types.
// They return structured results without touching the network.
type Simulator struct {
	HTTPLatency time.Duration
	LLMLatency  time.Duration
	Now         func() time.Time
}

// NewSimulator returns a simulator with the default latencies.
func NewSimulator() Simulator {
	return Simulator{HTTPLatency: DefaultHTTPLatency, LLMLatency: DefaultLLMLatency, Now: time.Now}
}

// Executors maps built-in node types to their simulated executors.
func (s Simulator) Executors() map[string]Executor {
	return map[string]Executor{
		graph.KindHTTP:      ExecutorFunc(s.http),
		graph.KindTransform: ExecutorFunc(s.transform),
		graph.KindCondition: ExecutorFunc(s.condition),
		graph.KindLLM:       ExecutorFunc(s.llm),
		graph.KindDatabase:  ExecutorFunc(s.database),
		graph.KindEmail:     ExecutorFunc(s.email),
		graph.KindTrigger:   ExecutorFunc(s.trigger),
	}
}

// Fallback handles node types without a dedicated executor.
func (s Simulator) Fallback() Executor {
	return ExecutorFunc(func(_ context.Context, req Request) (any, error) {
		return map[string]any{
			"message": fmt.Sprintf("Node type %s executed (placeholder)", req.Node.Type),
			"inputs":  req.Inputs,
		}, nil
	})
}

func (s Simulator) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// stringField reads a string field from generic data.
func stringField(d graph.NodeData, key string) string {
	if g, ok := d.(graph.GenericData); ok {
		s, _ := g.Fields[key].(string)
		return s
	}
	return ""
}

func (s Simulator) http(ctx context.Context, req Request) (any, error) {
	url, method := stringField(req.Node.Data, "url"), stringField(req.Node.Data, "method")
	if d, ok := req.Node.Data.(graph.HTTPData); ok {
		url, method = d.URL, d.Method
	}
	if url == "" {
		url = "https://api.example.com"
	}
	if method == "" {
		method = "GET"
	}
	if err := sleep(ctx, s.HTTPLatency); err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	return map[string]any{
		"status": 200,
		"body": map[string]any{
			"message": "HTTP request successful",
			"url":     url,
			"method":  method,
			"inputs":  req.Inputs,
		},
	}, nil
}

func (s Simulator) transform(_ context.Context, req Request) (any, error) {
	code := stringField(req.Node.Data, "code")
	if d, ok := req.Node.Data.(graph.TransformData); ok {
		code = d.Code
	}
	if code == "" {
		code = "No transformation code"
	}
	return map[string]any{
		"inputs":      req.Inputs,
		"transformed": true,
		"timestamp":   s.now().UTC().Format(time.RFC3339),
		"code":        code,
	}, nil
}

func (s Simulator) condition(_ context.Context, req Request) (any, error) {
	expr := stringField(req.Node.Data, "condition")
	if d, ok := req.Node.Data.(graph.ConditionData); ok {
		expr = d.Condition
	}
	var result bool
	if expr == "" {
		result = len(req.Inputs) > 0
	} else {
		result = EvalCondition(expr, EvalContext{Inputs: req.Inputs, Variables: req.Variables})
	}
	return map[string]any{
		"condition": expr,
		"result":    result,
		"inputs":    req.Inputs,
	}, nil
}

func (s Simulator) llm(ctx context.Context, req Request) (any, error) {
	prompt := stringField(req.Node.Data, "prompt")
	if d, ok := req.Node.Data.(graph.LLMData); ok {
		prompt = d.Prompt
	}
	if err := sleep(ctx, s.LLMLatency); err != nil {
		return nil, fmt.Errorf("llm call: %w", err)
	}
	return map[string]any{
		"response": "LLM response (simulated)",
		"prompt":   prompt,
		"inputs":   req.Inputs,
	}, nil
}

func (s Simulator) database(_ context.Context, req Request) (any, error) {
	query := stringField(req.Node.Data, "query")
	if d, ok := req.Node.Data.(graph.DatabaseData); ok {
		query = d.Query
	}
	return map[string]any{
		"rows":   []any{},
		"query":  query,
		"inputs": req.Inputs,
	}, nil
}

func (s Simulator) email(_ context.Context, req Request) (any, error) {
	to, subject := stringField(req.Node.Data, "to"), stringField(req.Node.Data, "subject")
	if d, ok := req.Node.Data.(graph.EmailData); ok {
		to, subject = d.To, d.Subject
	}
	return map[string]any{
		"sent":    true,
		"to":      to,
		"subject": subject,
		"inputs":  req.Inputs,
	}, nil
}

func (s Simulator) trigger(_ context.Context, req Request) (any, error) {
	return map[string]any{
		"triggered": true,
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"inputs":    req.Inputs,
	}, nil
}
