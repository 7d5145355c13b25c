package registry

import "github.com/AaronLay10/FlowEngine/internal/graph"

// Builtins returns the node types every canvas starts with.
func Builtins() []NodeTypeConfig {
	return []NodeTypeConfig{
		{
			Type: graph.KindInput, Label: "Input", Icon: "📥", Color: "#3b82f6",
			Description: "Workflow entry value", Category: CategoryInput,
			DefaultData: graph.InputData{Label: "Input"},
		},
		{
			Type: graph.KindOutput, Label: "Output", Icon: "📤", Color: "#10b981",
			Description: "Workflow result", Category: CategoryOutput,
			DefaultData: graph.OutputData{Label: "Output"},
		},
		{
			Type: graph.KindAIPrompt, Label: "AI Prompt", Icon: "🤖", Color: "#8b5cf6",
			Description: "Text generation with a language model", Category: CategoryAI,
			DefaultData: graph.AIPromptData{
				Label:       "AI Prompt",
				Model:       "llama3.2:latest",
				Temperature: 0.7,
				MaxTokens:   2000,
			},
			Validate: func(d graph.NodeData) bool {
				p, ok := d.(graph.AIPromptData)
				return ok && p.PromptTemplate != ""
			},
		},
		{
			Type: graph.KindCondition, Label: "Condition", Icon: "🔀", Color: "#f59e0b",
			Description: "Branch on an expression", Category: CategoryLogic,
			DefaultData: graph.ConditionData{Label: "Condition"},
		},
		{
			Type: graph.KindLoop, Label: "Loop", Icon: "🔁", Color: "#ec4899",
			Description: "Repeat a section", Category: CategoryLogic,
			DefaultData: graph.LoopData{Label: "Loop", LoopType: "count", LoopCount: 3},
		},
		{
			Type: graph.KindTransform, Label: "Transform", Icon: "⚙️", Color: "#06b6d4",
			Description: "Reshape data", Category: CategoryTransform,
			DefaultData: graph.TransformData{Label: "Transform", TransformType: "format"},
		},
		{
			Type: graph.KindSwitch, Label: "Switch", Icon: "🔀", Color: "#f97316",
			Description: "Route to one of several branches", Category: CategoryLogic,
			DefaultData: graph.SwitchData{Label: "Switch"},
		},
		{
			Type: graph.KindHTTP, Label: "HTTP Request", Icon: "🌐", Color: "#0ea5e9",
			Description: "Call an HTTP endpoint", Category: CategoryCustom,
			DefaultData: graph.HTTPData{Label: "HTTP Request", URL: "https://api.example.com", Method: "GET"},
		},
		{
			Type: graph.KindLLM, Label: "LLM", Icon: "🧠", Color: "#a855f7",
			Description: "Single model completion", Category: CategoryAI,
			DefaultData: graph.LLMData{Label: "LLM"},
		},
		{
			Type: graph.KindDatabase, Label: "Database", Icon: "🗄️", Color: "#64748b",
			Description: "Run a query", Category: CategoryCustom,
			DefaultData: graph.DatabaseData{Label: "Database"},
		},
		{
			Type: graph.KindEmail, Label: "Email", Icon: "✉️", Color: "#ef4444",
			Description: "Send a message", Category: CategoryOutput,
			DefaultData: graph.EmailData{Label: "Email"},
		},
		{
			Type: graph.KindTrigger, Label: "Trigger", Icon: "⚡", Color: "#eab308",
			Description: "Start the workflow", Category: CategoryInput,
			DefaultData: graph.TriggerData{Label: "Trigger"},
		},
	}
}
