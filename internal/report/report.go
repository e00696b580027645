// Package report renders a finished batch run for people: a Markdown
// document and the same document as HTML.
package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"goamcc/domain/run"
)

// Markdown renders the summary table, the run parameters and one line per
// searched instance
func Markdown(r *run.Report) []byte {
	var b bytes.Buffer
	s := r.Summary

	fmt.Fprintf(&b, "# Counterfactual run %s\n\n", r.RunID)
	fmt.Fprintf(&b, "Dataset `%s`, fingerprint `%s`.\n\n", r.Parameters.DataPath, shortFingerprint(s.Fingerprint))

	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Instances | %d |\n", s.Instances)
	fmt.Fprintf(&b, "| Successes | %d |\n", s.Successes)
	fmt.Fprintf(&b, "| Failures | %d |\n", s.Failures)
	fmt.Fprintf(&b, "| Timeouts | %d |\n", s.Timeouts)
	fmt.Fprintf(&b, "| Success rate | %.1f%% |\n", s.SuccessRate*100)
	fmt.Fprintf(&b, "| Mean time (s) | %.4f |\n", s.MeanTime)
	fmt.Fprintf(&b, "| Median time (s) | %.4f |\n", s.MedianTime)
	fmt.Fprintf(&b, "| P95 time (s) | %.4f |\n", s.P95Time)
	fmt.Fprintf(&b, "| Mean changes | %.2f |\n", s.MeanChanges)
	fmt.Fprintf(&b, "| Classifier accuracy | %.3f |\n\n", r.Accuracy)

	p := r.Parameters
	b.WriteString("## Parameters\n\n")
	fmt.Fprintf(&b, "- Target column: %d\n", p.TargetIdx)
	fmt.Fprintf(&b, "- Anchor precision threshold: %.2f\n", p.ThreshProb)
	fmt.Fprintf(&b, "- Search timeout: %ds\n", p.TimeoutSeconds)
	fmt.Fprintf(&b, "- Ignored indices: %s\n", formatInts(p.IgnoreIndices))
	if len(p.TransitionRules) > 0 {
		fmt.Fprintf(&b, "- Transition rules: %d feature(s)\n", len(p.TransitionRules))
	}
	b.WriteString("\n")

	b.WriteString("## Instances\n\n")
	if len(r.Outcomes) == 0 {
		b.WriteString("No test instances matched the undesired label.\n")
		return b.Bytes()
	}
	b.WriteString("| Index | Status | Explanation | Changes | Time (s) |\n|---|---|---|---|---|\n")
	for _, o := range r.Outcomes {
		elapsed := "-"
		if o.HasElapsed {
			elapsed = fmt.Sprintf("%.4f", o.Elapsed.Seconds())
		}
		changes := "-"
		if len(o.Changes) > 0 {
			changes = run.FormatChanges(o.Changes)
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n",
			o.Index, o.Status, escapeCell(o.Explanation), escapeCell(changes), elapsed)
	}
	return b.Bytes()
}

// HTML converts the Markdown rendering to an HTML fragment
func HTML(r *run.Report) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return markdown.ToHTML(Markdown(r), p, renderer)
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func formatInts(xs []int) string {
	if len(xs) == 0 {
		return "none"
	}
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ", ")
}

func escapeCell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", `\|`)
}
