package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/AaronLay10/FlowEngine/internal/execution"
	"github.com/AaronLay10/FlowEngine/internal/graph"
	"github.com/AaronLay10/FlowEngine/internal/layout"
	"github.com/AaronLay10/FlowEngine/internal/registry"
)

// errInvalid marks a document that loaded but failed checks. The details
// have already been printed.
var errInvalid = errors.New("document has problems")

func disableColor() {
	color.NoColor = true
}

func validateCmd(opts *rootOptions) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "validate <document>",
		Short: "Check a document for structural and per-type problems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := opts.registry()
			if err != nil {
				return err
			}
			doc, err := graph.LoadDocument(args[0])
			if err != nil {
				return err
			}
			r := checkDocument(*doc, reg)
			r.print(cmd.OutOrStdout(), args[0])
			if len(r.invalid) > 0 || (strict && r.warnings() > 0) {
				return errInvalid
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "treat warnings as errors")
	return cmd
}

type report struct {
	nodes, edges int
	invalid      []string
	unknown      []string
	unreachable  []string
	backEdges    []string
}

func (r report) warnings() int {
	return len(r.unknown) + len(r.unreachable) + len(r.backEdges)
}

func checkDocument(doc graph.Document, reg *registry.Registry) report {
	r := report{nodes: len(doc.Nodes), edges: len(doc.Edges)}
	for _, n := range doc.Nodes {
		if _, ok := reg.Get(n.Type); !ok {
			r.unknown = append(r.unknown, n.ID)
		} else if !reg.Validate(n) {
			r.invalid = append(r.invalid, n.ID)
		}
	}
	tr := graph.Walk(doc.Snapshot())
	for _, n := range doc.Nodes {
		if !tr.Reachable[n.ID] {
			r.unreachable = append(r.unreachable, n.ID)
		}
	}
	for _, e := range tr.BackEdges {
		r.backEdges = append(r.backEdges, e.ID)
	}
	return r
}

func (r report) print(w io.Writer, path string) {
	fmt.Fprintf(w, "%s %s: %d nodes, %d edges\n", brand.Sprint("▸"), path, r.nodes, r.edges)
	line := func(ok bool, label string, ids []string) {
		if len(ids) == 0 {
			fmt.Fprintf(w, "  %s %s\n", statusIcon(true), label)
			return
		}
		mark := warn.Sprint("!")
		if !ok {
			mark = statusIcon(false)
		}
		fmt.Fprintf(w, "  %s %s: %s\n", mark, label, strings.Join(ids, ", "))
	}
	line(false, "incomplete nodes", r.invalid)
	line(true, "unknown node types", r.unknown)
	line(true, "unreachable nodes", r.unreachable)
	line(true, "cycles (back edges)", r.backEdges)
}

func layoutCmd(opts *rootOptions) *cobra.Command {
	var (
		output string
		lo     = layout.DefaultOptions()
	)
	cmd := &cobra.Command{
		Use:   "layout <document>",
		Short: "Arrange the nodes in layers and write the document back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := graph.LoadDocument(args[0])
			if err != nil {
				return err
			}
			var lay layout.Layering
			doc.Nodes, lay = layout.AutoLayout(doc.Nodes, doc.Edges, lo)
			for _, e := range lay.BackEdges {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s back edge %s ignored\n", warn.Sprint("!"), e.ID)
			}
			if output == "-" {
				data, err := graph.Encode(*doc, graph.FormatFromPath(args[0]))
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if output == "" {
				output = args[0]
			}
			if err := graph.SaveDocument(output, *doc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d nodes in %d layers → %s\n", statusIcon(true), len(doc.Nodes), len(lay.Layers), output)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", "", "write here instead of in place, - for stdout")
	f.Float64Var(&lo.HorizontalSpacing, "horizontal-spacing", lo.HorizontalSpacing, "distance between layers")
	f.Float64Var(&lo.VerticalSpacing, "vertical-spacing", lo.VerticalSpacing, "distance between nodes of a layer")
	f.IntVar(&lo.CrossingPasses, "passes", lo.CrossingPasses, "crossing reduction sweeps")
	return cmd
}

func convertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <in> <out>",
		Short: "Convert a document between JSON and YAML",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := graph.LoadDocument(args[0])
			if err != nil {
				return err
			}
			if err := graph.SaveDocument(args[1], *doc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s → %s (%s)\n", statusIcon(true), args[0], args[1], graph.FormatFromPath(args[1]))
			return nil
		},
	}
}

// parseVars turns name=value pairs into variables. Values that parse as
// JSON keep their type; anything else is a string.
func parseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("variable %q: want name=value", p)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		vars[name] = v
	}
	return vars, nil
}

func runCmd(opts *rootOptions) *cobra.Command {
	var (
		vars        []string
		breakpoints []string
		delay       time.Duration
		timeout     time.Duration
		pauseAtBP   bool
		showOutputs bool
	)
	cmd := &cobra.Command{
		Use:   "run <document>",
		Short: "Dry-run a document with the simulated executors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := graph.LoadDocument(args[0])
			if err != nil {
				return err
			}
			vs, err := parseVars(vars)
			if err != nil {
				return err
			}
			bps := make([]execution.Breakpoint, len(breakpoints))
			for i, id := range breakpoints {
				bps[i] = execution.Breakpoint{NodeID: id, Enabled: true}
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			logger := opts.logger()
			defer func() { _ = logger.Sync() }()
			eng := execution.New(doc.Snapshot(), nil,
				execution.WithSimulator(execution.NewSimulator()),
				execution.WithStepDelay(delay),
				execution.WithBreakpoints(bps...),
				execution.WithVariables(vs),
				execution.WithLogger(logger),
			)

			if err := eng.Start(ctx); err != nil {
				return err
			}
			for !pauseAtBP && ctx.Err() == nil && eng.State().Status == execution.StatusPaused {
				if err := eng.Continue(ctx); err != nil {
					return err
				}
			}

			st := eng.State()
			w := cmd.OutOrStdout()
			printLogs(w, st.Logs)
			fmt.Fprintf(w, "\n%s %s  %s %s\n", brand.Sprint("status"), statusText(st.Status), brand.Sprint("path"), strings.Join(st.CallStack, " → "))
			if showOutputs {
				printOutputs(w, eng.Outputs())
			}
			if st.Status == execution.StatusError {
				return fmt.Errorf("run failed at node %s", st.CurrentNodeID)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&vars, "var", nil, "session variable name=value (repeatable)")
	f.StringArrayVar(&breakpoints, "break", nil, "node id to break on (repeatable)")
	f.DurationVar(&delay, "step-delay", 0, "pause between nodes")
	f.DurationVar(&timeout, "timeout", time.Minute, "abort the run after this long")
	f.BoolVar(&pauseAtBP, "pause", false, "stop at the first breakpoint instead of continuing")
	f.BoolVar(&showOutputs, "outputs", false, "print every node output as JSON")
	return cmd
}

func statusText(s execution.Status) string {
	switch s {
	case execution.StatusCompleted:
		return good.Sprint(s)
	case execution.StatusError:
		return bad.Sprint(s)
	case execution.StatusPaused:
		return warn.Sprint(s)
	default:
		return string(s)
	}
}

func printLogs(w io.Writer, logs []execution.LogEntry) {
	for _, l := range logs {
		c := subtle
		switch l.Level {
		case execution.LevelWarning:
			c = warn
		case execution.LevelError:
			c = bad
		}
		fmt.Fprintf(w, "  %s %-12s %s\n", subtle.Sprint(l.Timestamp.Format("15:04:05.000")), l.NodeID, c.Sprint(l.Message))
	}
}

func printOutputs(w io.Writer, outputs map[string]any) {
	ids := make([]string, 0, len(outputs))
	for id := range outputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		b, err := json.Marshal(outputs[id])
		if err != nil {
			b = []byte(fmt.Sprint(outputs[id]))
		}
		fmt.Fprintf(w, "  %s %s\n", brand.Sprint(id), b)
	}
}

func catalogCmd(opts *rootOptions) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the available node types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := opts.registry()
			if err != nil {
				return err
			}
			types := reg.All()
			if category != "" {
				types = reg.ByCategory(registry.Category(category))
			}
			rows := make([][]string, 0, len(types))
			for _, t := range types {
				rows = append(rows, []string{t.Type, t.Label, string(t.Category), t.Description})
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), subtle.Sprint("  no node types"))
				return nil
			}
			table(cmd.OutOrStdout(), []string{"TYPE", "LABEL", "CATEGORY", "DESCRIPTION"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only this category")
	return cmd
}
