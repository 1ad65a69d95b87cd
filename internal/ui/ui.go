// Package ui renders smpltool's terminal output.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Out receives everything printed by this package.
var Out io.Writer = os.Stdout

var (
	primaryColor   = lipgloss.Color("#7D56F4")
	secondaryColor = lipgloss.Color("#00D9FF")
	successColor   = lipgloss.Color("#04B575")
	errorColor     = lipgloss.Color("#FF5F87")
	warningColor   = lipgloss.Color("#FFAF00")
	mutedColor     = lipgloss.Color("#626262")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1).
			PaddingLeft(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(secondaryColor).
			PaddingLeft(1)

	successStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	infoStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	keyStyle = lipgloss.NewStyle().
			Foreground(secondaryColor).
			Bold(true)

	checkmark = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true).
			SetString("✓")

	cross = lipgloss.NewStyle().
		Foreground(errorColor).
		Bold(true).
		SetString("✗")

	stepStyle = lipgloss.NewStyle().
			PaddingLeft(2)
)

func printLine(s string) {
	fmt.Fprintln(Out, s)
}

// PrintTitle prints a major title.
func PrintTitle(title string) {
	printLine(titleStyle.Render("╭─ " + title + " ─╮"))
}

// PrintHeader prints a section header.
func PrintHeader(title string) {
	printLine(headerStyle.Render("▸ " + title))
}

// PrintSuccess prints a success message.
func PrintSuccess(message string) {
	printLine(stepStyle.Render(checkmark.String() + " " + successStyle.Render(message)))
}

// PrintError prints an error message.
func PrintError(message string) {
	printLine(stepStyle.Render(cross.String() + " " + errorStyle.Render(message)))
}

// PrintWarning prints a warning message.
func PrintWarning(message string) {
	printLine(stepStyle.Render("⚠ " + warningStyle.Render(message)))
}

// PrintKeyValue prints a key-value pair.
func PrintKeyValue(key, value string) {
	printLine(stepStyle.Render(keyStyle.Render(key+":") + " " + value))
}

// PrintTable prints rows under headers, sizing each column to its widest cell.
func PrintTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	printLine(stepStyle.Render(keyStyle.Render(tableRow(headers, widths))))

	rules := make([]string, len(widths))
	for i, w := range widths {
		rules[i] = strings.Repeat("─", w)
	}
	printLine(stepStyle.Render(infoStyle.Render(strings.Join(rules, "─┼─"))))

	for _, row := range rows {
		printLine(stepStyle.Render(tableRow(row, widths)))
	}
}

func tableRow(columns []string, widths []int) string {
	cells := make([]string, len(widths))
	for i, w := range widths {
		col := ""
		if i < len(columns) {
			col = columns[i]
		}
		cells[i] = col + strings.Repeat(" ", w-lipgloss.Width(col))
	}
	return strings.TrimRight(strings.Join(cells, " │ "), " ")
}

// PrintProgress redraws a one-line progress bar; the line ends when current
// reaches total.
func PrintProgress(current, total int, message string) {
	if total <= 0 {
		return
	}
	const barWidth = 30
	filled := min(current*barWidth/total, barWidth)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	fmt.Fprintf(Out, "\r  [%s] %d%% %s", bar, current*100/total, message)
	if current >= total {
		fmt.Fprintln(Out)
	}
}

// HighlightJSON writes JSON to w, syntax highlighted for 256-color terminals
// when color is set.
func HighlightJSON(w io.Writer, data []byte, color bool) error {
	return Highlight(w, data, "json", color)
}

// Highlight writes source in the named chroma language to w, highlighted
// when color is set and written verbatim otherwise.
func Highlight(w io.Writer, data []byte, language string, color bool) error {
	if !color {
		_, err := w.Write(data)
		return err
	}

	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	iterator, err := chroma.Coalesce(lexer).Tokenise(nil, string(data))
	if err != nil {
		return fmt.Errorf("tokenising %s: %w", language, err)
	}

	style := styles.Get("monokai")
	if style == nil {
		style = styles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}
	return formatter.Format(w, style, iterator)
}

// IsTerminal reports whether f is a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
