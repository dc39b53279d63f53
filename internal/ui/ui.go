// Package ui prints engine CLI output: status lines, context and site tables
// and journal events.
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/craftercms/engine-sub000/internal/server"
	"github.com/craftercms/engine-sub000/internal/site"
	"github.com/craftercms/engine-sub000/internal/telemetry"
	"github.com/craftercms/engine-sub000/internal/tenants"
)

// Semantic color palette.
var (
	colorPrimary = lipgloss.Color("#00BFFF")
	colorAccent  = lipgloss.Color("#FFD700")
	colorSuccess = lipgloss.Color("#00E676")
	colorDanger  = lipgloss.Color("#FF5252")
	colorMuted   = lipgloss.Color("#8C8C8C")
)

var (
	styleBold    = lipgloss.NewStyle().Bold(true)
	styleTitle   = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	styleHeader  = lipgloss.NewStyle().Bold(true).Foreground(colorMuted)
	styleSuccess = lipgloss.NewStyle().Bold(true).Foreground(colorSuccess)
	styleWarn    = lipgloss.NewStyle().Foreground(colorAccent)
	styleDanger  = lipgloss.NewStyle().Bold(true).Foreground(colorDanger)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
)

// Printer writes tables to out and status lines to errOut.
type Printer struct {
	out    io.Writer
	errOut io.Writer
}

// New returns a printer on stdout and stderr.
func New() *Printer {
	return NewWithWriters(os.Stdout, os.Stderr)
}

// NewWithWriters returns a printer on the given writers.
func NewWithWriters(out, errOut io.Writer) *Printer {
	return &Printer{out: out, errOut: errOut}
}

// Banner prints the startup line of the serve command.
func (p *Printer) Banner(mode, listen string) {
	fmt.Fprintf(p.errOut, "%s %s\n", styleTitle.Render("engine"), styleMuted.Render(mode+" on "+listen))
}

// Info prints a de-emphasized status line.
func (p *Printer) Info(msg string) {
	fmt.Fprintln(p.errOut, styleMuted.Render(msg))
}

// Success prints a confirmation line.
func (p *Printer) Success(msg string) {
	fmt.Fprintln(p.errOut, styleSuccess.Render("✓")+" "+msg)
}

// Error prints an error line.
func (p *Printer) Error(msg string) {
	fmt.Fprintln(p.errOut, styleDanger.Render("error:")+" "+msg)
}

// Contexts prints one row per live context.
func (p *Printer) Contexts(list []server.ContextInfo) {
	if len(list) == 0 {
		fmt.Fprintln(p.out, styleMuted.Render("(no contexts)"))
		return
	}
	rows := make([][]string, 0, len(list))
	for _, c := range list {
		name := c.Site
		if c.Fallback {
			name += " (fallback)"
		}
		rows = append(rows, []string{
			name,
			stateLabel(c.State),
			fmt.Sprintf("%d", c.Accessors),
			c.CreatedAt.Local().Format(time.DateTime),
			c.ID,
		})
	}
	p.table([]string{"SITE", "STATE", "ACCESSORS", "CREATED", "ID"}, rows)
}

// Sites prints the registered sites of a tenant database.
func (p *Printer) Sites(list []tenants.Site) {
	if len(list) == 0 {
		fmt.Fprintln(p.out, styleMuted.Render("(no sites)"))
		return
	}
	rows := make([][]string, 0, len(list))
	for _, s := range list {
		rows = append(rows, []string{s.Name, s.AddedAt.Local().Format(time.DateTime)})
	}
	p.table([]string{"SITE", "ADDED"}, rows)
}

// Event prints one journal event on a single line.
func (p *Printer) Event(evt telemetry.Event) {
	parts := []string{
		styleMuted.Render("[" + evt.Timestamp.Local().Format(time.TimeOnly) + "]"),
		eventKind(evt.Kind),
	}
	if evt.Site != "" {
		parts = append(parts, "site="+evt.Site)
	}
	if evt.ContextID != "" {
		parts = append(parts, styleMuted.Render("context="+evt.ContextID))
	}
	if evt.Data != nil {
		if m, ok := evt.Data.(map[string]any); ok {
			parts = append(parts, formatDataMap(m))
		} else {
			data, _ := json.Marshal(evt.Data)
			parts = append(parts, string(data))
		}
	}
	fmt.Fprintln(p.out, strings.Join(parts, " "))
}

// RawLine prints a journal line that could not be decoded.
func (p *Printer) RawLine(line string) {
	fmt.Fprintln(p.out, styleWarn.Render("???")+" "+line)
}

// table prints left-aligned columns sized to their widest cell.
func (p *Printer) table(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, r := range rows {
		for i, cell := range r {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	cells := make([]string, len(header))
	for i, h := range header {
		cells[i] = styleHeader.Width(widths[i] + 2).Render(h)
	}
	fmt.Fprintln(p.out, strings.TrimRight(strings.Join(cells, ""), " "))

	for _, r := range rows {
		for i, cell := range r {
			cells[i] = lipgloss.NewStyle().Width(widths[i] + 2).Render(cell)
		}
		fmt.Fprintln(p.out, strings.TrimRight(strings.Join(cells, ""), " "))
	}
}

func stateLabel(state string) string {
	switch state {
	case site.StateReady:
		return styleSuccess.Render(state)
	case site.StateInitializing:
		return styleWarn.Render(state)
	case site.StateDestroyed:
		return styleDanger.Render(state)
	}
	return state
}

func eventKind(kind string) string {
	switch kind {
	case telemetry.KindCreateFailed, telemetry.KindContextInvalid, telemetry.KindCreateDenied:
		return styleDanger.Render(kind)
	case telemetry.KindCreateRetry, telemetry.KindChangeDetected, telemetry.KindRebuildTriggered:
		return styleWarn.Render(kind)
	case telemetry.KindContextReady, telemetry.KindContextRebuilt:
		return styleSuccess.Render(kind)
	}
	return styleBold.Render(kind)
}

// formatDataMap formats a data map as key=value pairs sorted by key.
func formatDataMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%v", k, m[k])
	}
	return b.String()
}
