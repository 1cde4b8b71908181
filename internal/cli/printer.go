package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	SymbolPass    = "✓"
	SymbolFail    = "✗"
	SymbolArrow   = "→"
	SymbolWarning = "⚠"
	SymbolInfo    = "ℹ"

	Indent = "  "
)

var out io.Writer = os.Stdout

// SetOutput redirects all printer output. The runner sends it to stderr so
// stdout carries only the result record.
func SetOutput(w io.Writer) {
	out = w
}

func Output() io.Writer {
	return out
}

func Header(title string) {
	width := 60
	padding := (width - len(title) - 2) / 2
	border := strings.Repeat("═", width)

	fmt.Fprintln(out)
	fmt.Fprintf(out, "╔%s╗\n", border)
	fmt.Fprintf(out, "║%s %s %s║\n", strings.Repeat(" ", padding), title, strings.Repeat(" ", width-padding-len(title)-2))
	fmt.Fprintf(out, "╚%s╝\n", border)
	fmt.Fprintln(out)
}

func Section(title string) {
	fmt.Fprintf(out, "\n━━ %s ━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n", title)
}

// BenchmarkHeader opens the block of one benchmark variation.
func BenchmarkHeader(name, query string, concurrency int) {
	title := fmt.Sprintf("%s %s %s (C=%d)", name, SymbolArrow, query, concurrency)
	fmt.Fprintf(out, "\n┌─ %s %s\n", title, strings.Repeat("─", max(58-len([]rune(title)), 2)))
}

func BenchmarkFooter() {
	fmt.Fprintln(out, "└"+strings.Repeat("─", 60))
}

func Infof(format string, args ...any) {
	fmt.Fprintf(out, "%s%s %s\n", Indent, SymbolInfo, fmt.Sprintf(format, args...))
}

func Successf(format string, args ...any) {
	fmt.Fprintf(out, "%s%s %s\n", Indent, SymbolPass, fmt.Sprintf(format, args...))
}

func Failf(format string, args ...any) {
	fmt.Fprintf(out, "%s%s %s\n", Indent, SymbolFail, fmt.Sprintf(format, args...))
}

func Warnf(format string, args ...any) {
	fmt.Fprintf(out, "%s%s %s\n", Indent, SymbolWarning, fmt.Sprintf(format, args...))
}

func Linef(format string, args ...any) {
	fmt.Fprintf(out, "%s%s\n", Indent, fmt.Sprintf(format, args...))
}

func KeyValue(key, value string) {
	fmt.Fprintf(out, "%s%-20s %s\n", Indent, key+":", value)
}

func Blank() {
	fmt.Fprintln(out)
}

func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func FormatMemory(bytes float64) string {
	mb := bytes / 1024 / 1024
	if mb < 1 {
		return fmt.Sprintf("%.0fKB", bytes/1024)
	}
	if mb < 100 {
		return fmt.Sprintf("%.1fMB", mb)
	}
	return fmt.Sprintf("%.0fMB", mb)
}

func FormatCpu(percent float64, samples int) string {
	if samples < 2 || percent < 0.1 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", percent)
}

func Truncate(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}

func FormatReqs(count int) string {
	if count < 1000 {
		return strconv.Itoa(count)
	}
	if count < 1_000_000 {
		return fmt.Sprintf("%.2fk", float64(count)/1000)
	}
	return fmt.Sprintf("%.2fM", float64(count)/1_000_000)
}
