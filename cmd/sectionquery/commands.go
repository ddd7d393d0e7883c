package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nainya/sectionquery/pkg/document"
	"github.com/nainya/sectionquery/pkg/query"
)

var queryCmd = &cobra.Command{
	Use:   "query <document> <expression>",
	Short: "Resolve one expression",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, _ := newEngine()
		res := engine.Process(cmd.Context(), args[0], args[1])
		return printResults(cmd.OutOrStdout(), []*query.Result{res})
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch <document> <expression>...",
	Short: "Resolve several expressions, loading each section once",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, _ := newEngine()
		results := engine.ProcessMany(cmd.Context(), args[0], args[1:])
		if err := printResults(cmd.OutOrStdout(), results); err != nil {
			return err
		}
		if !jsonOutput {
			printStats(cmd.OutOrStdout(), engine.Stats())
		}
		return nil
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare <document> <expression>",
	Short: "Time full-document resolution against section-only resolution",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, _ := newEngine()
		return printComparison(cmd.OutOrStdout(), engine.Compare(cmd.Context(), args[0], args[1]))
	},
}

var sectionsCmd = &cobra.Command{
	Use:   "sections <document>",
	Short: "List the top-level definitions of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, _ := newEngine()
		defs, err := engine.Locator().Definitions(args[0])
		if err != nil {
			return err
		}
		return printDefinitions(cmd.OutOrStdout(), defs)
	},
}

type nodeView struct {
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Alias string `json:"alias,omitempty"`
	Path  string `json:"path"`
	Line  int    `json:"line"`
}

type resultView struct {
	Document   string     `json:"document"`
	Expression string     `json:"expression"`
	Route      string     `json:"route"`
	Section    string     `json:"section,omitempty"`
	CacheHit   bool       `json:"cache_hit"`
	DurationMs float64    `json:"duration_ms"`
	Error      string     `json:"error,omitempty"`
	ErrorKind  string     `json:"error_kind"`
	Nodes      []nodeView `json:"nodes"`
}

func viewOf(r *query.Result) resultView {
	v := resultView{
		Document:   r.DocumentID,
		Expression: r.Expression,
		Route:      r.Route.String(),
		CacheHit:   r.CacheHit,
		DurationMs: r.DurationMs(),
		ErrorKind:  r.ErrKind.String(),
		Nodes:      make([]nodeView, 0, len(r.Nodes)),
	}
	if r.Section != nil {
		v.Section = r.Section.Kind
	}
	if r.Err != nil {
		v.Error = r.Err.Error()
	}
	for _, n := range r.Nodes {
		v.Nodes = append(v.Nodes, nodeView{
			Kind:  n.Kind.String(),
			Name:  n.Name,
			Alias: n.Alias,
			Path:  n.Path,
			Line:  n.Line,
		})
	}
	return v
}

func printResults(w io.Writer, results []*query.Result) error {
	if jsonOutput {
		views := make([]resultView, len(results))
		for i, r := range results {
			views[i] = viewOf(r)
		}
		return writeJSON(w, views)
	}

	failed := 0
	for _, r := range results {
		fmt.Fprintf(w, "%s  [%s, %.3fms", r.Expression, r.Route, r.DurationMs())
		if r.CacheHit {
			fmt.Fprint(w, ", cached")
		}
		fmt.Fprintln(w, "]")
		if r.Err != nil {
			failed++
			fmt.Fprintf(w, "  %s: %v\n", r.ErrKind, r.Err)
			continue
		}
		for _, n := range r.Nodes {
			fmt.Fprintf(w, "  %-14s %-24s line %d\n", n.Kind, n.Name, n.Line)
		}
		fmt.Fprintf(w, "  %d node(s)\n", len(r.Nodes))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d expressions failed", failed, len(results))
	}
	return nil
}

func printStats(w io.Writer, s query.Stats) {
	fmt.Fprintf(w, "\n%d queries, avg %.3fms (min %.3f, max %.3f), %d scans, %d bytes read, %d cached entries\n",
		s.TotalQueries, s.AverageMs, s.MinMs, s.MaxMs, s.Scans, s.BytesRead, s.CacheSize)
}

func printComparison(w io.Writer, c *query.Comparison) error {
	if jsonOutput {
		return writeJSON(w, map[string]interface{}{
			"document":                c.DocumentID,
			"expression":              c.Expression,
			"traditional_time_ms":     c.TraditionalMs(),
			"lazy_time_ms":            c.LazyMs(),
			"traditional_result_size": c.TraditionalResultSize,
			"lazy_result_size":        c.LazyResultSize,
			"improvement_percent":     c.ImprovementPercent,
			"results_match":           c.ResultsMatch,
			"traditional_error":       c.TraditionalError,
			"lazy_error":              c.LazyError,
		})
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tTIME (ms)\tNODES\tERROR")
	fmt.Fprintf(tw, "full document\t%.3f\t%d\t%s\n", c.TraditionalMs(), c.TraditionalResultSize, c.TraditionalError)
	fmt.Fprintf(tw, "section only\t%.3f\t%d\t%s\n", c.LazyMs(), c.LazyResultSize, c.LazyError)
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "improvement %.1f%%, results match: %t\n", c.ImprovementPercent, c.ResultsMatch)
	return nil
}

func printDefinitions(w io.Writer, defs []document.Definition) error {
	if jsonOutput {
		return writeJSON(w, defs)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tNAME\tLINE\tSTART\tEND")
	for _, d := range defs {
		name := d.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", d.Kind, name, d.Line, d.Start, d.End)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
