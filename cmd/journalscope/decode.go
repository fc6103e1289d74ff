package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/journalscope/internal/ingest"
	"github.com/tinytelemetry/journalscope/internal/jmes"
	"github.com/tinytelemetry/journalscope/internal/model"
)

// decoded is the outcome of decoding one file.
type decoded struct {
	Path string
	Doc  *model.Document
	Err  error
}

func (a *app) decodeOptions() []ingest.Option {
	return []ingest.Option{ingest.WithMaxLineSize(a.cfg.MaxLineSize)}
}

// decodeFile decodes one journal and records the outcome in the metrics.
func decodeFile(path string, opts ...ingest.Option) (*model.Document, error) {
	start := time.Now()
	doc, err := ingest.DecodeFile(path, opts...)
	observeDecode(time.Since(start), err)
	return doc, err
}

// decodeAll decodes paths with at most workers concurrent decodes. A
// failing file does not stop the others; its error is kept in the result.
// Results keep the order of paths.
func decodeAll(ctx context.Context, paths []string, workers int, opts ...ingest.Option) ([]decoded, error) {
	if workers <= 0 {
		workers = model.DefaultDecodeWorkers
	}
	results := make([]decoded, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := decodeFile(path, opts...)
			results[i] = decoded{Path: path, Doc: doc, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// reportFailures prints each failed decode to w and returns an error when
// at least one failed.
func reportFailures(w io.Writer, results []decoded) error {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(w, "%s: %v\n", r.Path, r.Err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d journals failed to decode", failed, len(results))
	}
	return nil
}

func (a *app) decodeCmd() *cobra.Command {
	var (
		format      string
		withRecords bool
	)
	cmd := &cobra.Command{
		Use:   "decode FILE...",
		Short: "Decode journals and print a summary",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := decodeAll(cmd.Context(), args, a.cfg.DecodeWorkers, a.decodeOptions()...)
			if err != nil {
				return err
			}
			var ok []decoded
			for _, r := range results {
				if r.Err == nil {
					ok = append(ok, r)
				}
			}
			if err := writeDecoded(cmd.OutOrStdout(), ok, format, withRecords); err != nil {
				return err
			}
			return reportFailures(cmd.ErrOrStderr(), results)
		},
	}
	cmd.Flags().Int("workers", model.DefaultDecodeWorkers, "concurrent decodes")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json or yaml")
	cmd.Flags().BoolVar(&withRecords, "records", false, "include records in json/yaml output")
	bindFlag(a.v, cmd.Flags().Lookup("workers"), "decode-workers")
	return cmd
}

func writeDecoded(w io.Writer, results []decoded, format string, withRecords bool) error {
	switch strings.ToLower(format) {
	case "", "text":
		for _, r := range results {
			fmt.Fprintln(w, renderSummary(r.Path, r.Doc))
		}
		return nil
	case "json", "yaml":
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}

	var out any
	if len(results) == 1 {
		out = results[0].Doc.View(withRecords)
	} else {
		views := make([]model.View, 0, len(results))
		for _, r := range results {
			views = append(views, r.Doc.View(withRecords))
		}
		out = views
	}

	if strings.EqualFold(format, "json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	b, err := toYAML(out)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// toYAML renders v through its JSON form so YAML keys match the JSON tags.
func toYAML(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, fmt.Errorf("unmarshal json: %w", err)
	}
	return yaml.Marshal(generic)
}

func renderSummary(path string, doc *model.Document) string {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	bold := lipgloss.NewStyle().Bold(true)

	flag := func(on bool, good bool) string {
		if on == good {
			return green.Render("●")
		}
		return red.Render("●")
	}
	row := func(label, value string) string {
		return fmt.Sprintf("    %-18s %s", label, value)
	}

	s := doc.Summarize()
	m := doc.Meta

	var lines []string
	lines = append(lines, bold.Render("  "+shortenPath(path)))
	lines = append(lines, "")
	lines = append(lines, row("Revit", cyan.Render(fmt.Sprintf("%d", m.Version))+dim.Render(" "+strings.TrimSpace(m.Release+" "+m.Build))))
	if m.Branch != "" {
		lines = append(lines, row("Branch", m.Branch))
	}
	lines = append(lines, row("User", m.Username))
	lines = append(lines, row("Machine", m.MachineName))
	if m.OSVersion != "" {
		lines = append(lines, row("OS", m.OSVersion))
	}
	lines = append(lines, row("Blocks", fmt.Sprintf("%d", s.Blocks)))
	lines = append(lines, row("Records", fmt.Sprintf("%d", s.Records)))
	if !s.Started.IsZero() {
		lines = append(lines, row("Started", s.Started.Format(time.RFC3339)))
		lines = append(lines, row("Finished", s.Finished.Format(time.RFC3339)))
	}
	lines = append(lines, row("Session", s.SessionDuration.String()))
	if s.StartupTime != nil {
		lines = append(lines, row("Startup", s.StartupTime.Format(time.RFC3339)))
	}
	if s.License != "" {
		lines = append(lines, row("License", s.License))
	}
	lines = append(lines, row("Clean shutdown", flag(s.TerminatedCleanly, true)))
	lines = append(lines, row("API errors", flag(s.HasAPIErrors, false)))
	lines = append(lines, row("Exceptions", flag(s.HasExceptions, false)))
	lines = append(lines, "")

	kinds := make([]string, 0, len(s.Kinds))
	for k := range s.Kinds {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		if s.Kinds[kinds[i]] != s.Kinds[kinds[j]] {
			return s.Kinds[kinds[i]] > s.Kinds[kinds[j]]
		}
		return kinds[i] < kinds[j]
	})
	for _, k := range kinds {
		lines = append(lines, row(k, dim.Render(fmt.Sprintf("%d", s.Kinds[k]))))
	}
	lines = append(lines, dim.Render(fmt.Sprintf("    decoded in %s", s.ProcessingTime)))
	return strings.Join(lines, "\n")
}

func (a *app) queryCmd() *cobra.Command {
	var (
		expr   string
		pretty bool
		vars   []string
	)
	cmd := &cobra.Command{
		Use:   "query FILE",
		Short: "Evaluate a JMESPath expression against a decoded journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, kv := range vars {
				name, value, ok := strings.Cut(kv, "=")
				if !ok || name == "" {
					return fmt.Errorf("invalid --var %q (want name=value)", kv)
				}
				expr = jmes.ReplacePlaceholder(expr, name, value)
			}
			doc, err := decodeFile(args[0], a.decodeOptions()...)
			if err != nil {
				return err
			}
			res, err := jmes.Search(doc, expr)
			if err != nil {
				return err
			}
			out, err := jmes.Format(res, pretty)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&expr, "jmes", "q", "", "JMESPath expression")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent JSON output")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "replace {{name}} in the expression with a string literal (name=value)")
	_ = cmd.MarkFlagRequired("jmes")
	return cmd
}
