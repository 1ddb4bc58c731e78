package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/cargo-wasm/build"
)

type reportStyles struct {
	title lipgloss.Style
	ok    lipgloss.Style
	fail  lipgloss.Style
	dim   lipgloss.Style
	size  lipgloss.Style
}

func newReportStyles(color bool) reportStyles {
	if !color {
		plain := lipgloss.NewStyle()
		return reportStyles{title: plain, ok: plain, fail: plain, dim: plain, size: plain}
	}
	return reportStyles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1),
		ok:   lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98")),
		fail: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
		dim:  lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
		size: lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB")),
	}
}

// renderReport formats the per-package outcome, optimizer savings and the
// bootstrap location.
func renderReport(r *build.Report, color bool) string {
	s := newReportStyles(color)
	var b strings.Builder

	if len(r.Packages) == 0 {
		b.WriteString(s.dim.Render("no packages depend on wasm-bindgen"))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(s.title.Render("cargo-wasm"))
	b.WriteString(" ")
	b.WriteString(s.dim.Render("run " + r.RunID))
	b.WriteString("\n\n")

	width := 0
	for _, p := range r.Packages {
		width = max(width, lipgloss.Width(p.Package.Name))
	}

	for _, p := range r.Packages {
		name := p.Package.Name + strings.Repeat(" ", width-lipgloss.Width(p.Package.Name))
		if p.OK() {
			b.WriteString(s.ok.Render("✓ " + name))
			b.WriteString("  ")
			b.WriteString(s.dim.Render("wasm-bindgen " + p.Package.BindgenVersion))
			b.WriteString("  ")
			b.WriteString(p.Outputs.JS)
		} else {
			b.WriteString(s.fail.Render("✗ " + name))
			b.WriteString("  ")
			b.WriteString(s.fail.Render(p.Err.Error()))
		}
		b.WriteString("\n")
	}

	if len(r.Sizes) > 0 {
		b.WriteString("\n")
		for _, sz := range r.Sizes {
			line := fmt.Sprintf("%s  %s -> %s  (%.1f%%)",
				filepath.Base(sz.Path), formatBytes(sz.Original), formatBytes(sz.Final), sz.Reduction())
			b.WriteString(s.size.Render(line))
			b.WriteString(" ")
			b.WriteString(s.dim.Render(sz.Level.String()))
			b.WriteString("\n")
		}
	}

	if r.Bootstrap != "" {
		b.WriteString("\n")
		b.WriteString("bootstrap: ")
		b.WriteString(r.Bootstrap)
		b.WriteString("\n")
	}

	for _, st := range r.Skipped {
		b.WriteString(s.dim.Render(fmt.Sprintf("skipped %s after failures", st)))
		b.WriteString("\n")
	}

	return b.String()
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
