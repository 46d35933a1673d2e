// Package main provides UI utilities for the Recommendation CLI.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/text/width"
)

// UI provides user-friendly output utilities. Decorations go to errOut so that
// out stays machine-readable in JSON mode.
type UI struct {
	out         io.Writer
	errOut      io.Writer
	jsonMode    bool
	interactive bool
}

// NewUI creates a new UI instance. Progress indicators render only on a terminal.
func NewUI(out, errOut io.Writer, jsonMode bool) *UI {
	return &UI{
		out:         out,
		errOut:      errOut,
		jsonMode:    jsonMode,
		interactive: !jsonMode && IsTerminal(),
	}
}

// JSON writes v as indented JSON to out.
func (ui *UI) JSON(v interface{}) error {
	enc := json.NewEncoder(ui.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Success prints a success message.
func (ui *UI) Success(format string, args ...interface{}) {
	ui.line(color.FgGreen, "✓", format, args...)
}

// Warning prints a warning message.
func (ui *UI) Warning(format string, args ...interface{}) {
	ui.line(color.FgYellow, "⚠", format, args...)
}

// Info prints an info message.
func (ui *UI) Info(format string, args ...interface{}) {
	ui.line(color.FgCyan, "ℹ", format, args...)
}

// Step prints a step message.
func (ui *UI) Step(format string, args ...interface{}) {
	ui.line(color.FgBlue, "→", format, args...)
}

func (ui *UI) line(attr color.Attribute, symbol, format string, args ...interface{}) {
	if ui.jsonMode {
		return
	}
	color.New(attr).Fprintf(ui.out, "%s %s\n", symbol, fmt.Sprintf(format, args...))
}

// Section prints a section header.
func (ui *UI) Section(title string) {
	if ui.jsonMode {
		return
	}
	fmt.Fprintln(ui.out)
	color.New(color.FgMagenta, color.Bold).Fprintf(ui.out, "━━━ %s ━━━\n", strings.ToUpper(title))
}

// KeyValue prints a key-value pair.
func (ui *UI) KeyValue(key string, value interface{}) {
	if ui.jsonMode {
		return
	}
	color.New(color.FgYellow).Fprintf(ui.out, "  %s: ", key)
	fmt.Fprintf(ui.out, "%v\n", value)
}

// Table prints a formatted table. Column widths account for wide Hangul runes.
func (ui *UI) Table(headers []string, rows [][]string) {
	if ui.jsonMode || len(headers) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = displayWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && displayWidth(cell) > widths[i] {
				widths[i] = displayWidth(cell)
			}
		}
	}

	border := color.New(color.FgCyan, color.Bold)
	rule := func(left, mid, right string) {
		border.Fprint(ui.out, left)
		for i, w := range widths {
			fmt.Fprint(ui.out, strings.Repeat("─", w+2))
			if i < len(widths)-1 {
				border.Fprint(ui.out, mid)
			}
		}
		border.Fprint(ui.out, right+"\n")
	}
	printRow := func(cells []string) {
		border.Fprint(ui.out, "│")
		for i, w := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			fmt.Fprintf(ui.out, " %s%s ", cell, strings.Repeat(" ", w-displayWidth(cell)))
			border.Fprint(ui.out, "│")
		}
		fmt.Fprintln(ui.out)
	}

	rule("┌", "┬", "┐")
	printRow(headers)
	rule("├", "┼", "┤")
	for _, row := range rows {
		printRow(row)
	}
	rule("└", "┴", "┘")
}

// displayWidth counts East Asian wide and fullwidth runes as two columns.
func displayWidth(s string) int {
	n := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}

// Spinner wraps a spinner for indeterminate progress. A nil Spinner is a no-op.
type Spinner struct {
	spinner *spinner.Spinner
}

// Spinner starts a spinner with message, or returns nil when not interactive.
func (ui *UI) Spinner(message string) *Spinner {
	if !ui.interactive {
		return nil
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(ui.errOut))
	s.Suffix = " " + message
	s.Start()
	return &Spinner{spinner: s}
}

// Stop stops the spinner animation and clears the line.
func (s *Spinner) Stop() {
	if s != nil {
		s.spinner.Stop()
	}
}

// ProgressBar wraps a progressbar for single-task deterministic progress. A nil
// ProgressBar is a no-op.
type ProgressBar struct {
	bar *progressbar.ProgressBar
}

// ProgressBar creates a bar of unknown length, or returns nil when not interactive.
func (ui *UI) ProgressBar(description string) *ProgressBar {
	if !ui.interactive {
		return nil
	}
	bar := progressbar.NewOptions64(
		-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(ui.errOut),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("products"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(ui.errOut, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &ProgressBar{bar: bar}
}

// Set moves the bar to current.
func (p *ProgressBar) Set(current int) {
	if p != nil {
		_ = p.bar.Set(current)
	}
}

// Finish completes the bar.
func (p *ProgressBar) Finish() {
	if p != nil {
		_ = p.bar.Finish()
	}
}

// Multi tracks one or more concurrent counters. A nil Multi is a no-op.
type Multi struct {
	progress *mpb.Progress
}

// MultiBar tracks concurrent work with mpb, or returns nil when not interactive.
func (ui *UI) MultiBar() *Multi {
	if !ui.interactive {
		return nil
	}
	return &Multi{progress: mpb.New(mpb.WithOutput(ui.errOut), mpb.WithWidth(64))}
}

// AddBar adds a counter bar of total items.
func (m *Multi) AddBar(name string, total int64) *mpb.Bar {
	if m == nil {
		return nil
	}
	return m.progress.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DSyncSpaceR}),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 5}),
			decor.OnComplete(
				decor.AverageETA(decor.ET_STYLE_GO, decor.WC{W: 12}),
				" done",
			),
		),
	)
}

// Wait blocks until every bar completes.
func (m *Multi) Wait() {
	if m != nil {
		m.progress.Wait()
	}
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// IsTerminal checks if stdout is a terminal.
func IsTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
