package cli

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var ErrNothingSelected = errors.New("nothing selected")

// Options are the run choices made interactively or on the command line.
type Options struct {
	Warmup     bool
	Resources  bool
	Export     bool
	Benchmarks []string // empty means all benchmarks
	Queries    []string // empty means all queries
	Levels     []int
}

func DefaultOptions() Options {
	return Options{Warmup: true, Resources: true}
}

// Interactive reports whether both stdin and stdout are terminals.
func Interactive() bool {
	return isTerminal(os.Stdin.Fd()) && isTerminal(os.Stdout.Fd())
}

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

var bannerLines = []string{
	"██████╗ ███████╗███╗   ██╗ ██████╗██╗  ██╗",
	"██╔══██╗██╔════╝████╗  ██║██╔════╝██║  ██║",
	"██████╔╝█████╗  ██╔██╗ ██║██║     ███████║",
	"██╔══██╗██╔══╝  ██║╚██╗██║██║     ██╔══██║",
	"██████╔╝███████╗██║ ╚████║╚██████╗██║  ██║",
	"╚═════╝ ╚══════╝╚═╝  ╚═══╝ ╚═════╝╚═╝  ╚═╝",
}

var gradientStops = [][3]float64{
	{79, 70, 229},   // indigo #4F46E5
	{129, 92, 246},  // violet #8B5CF6
	{168, 85, 247},  // purple #A855F7
	{217, 70, 239},  // fuchsia #D946EF
	{236, 72, 153},  // pink #EC4899
	{251, 113, 133}, // rose #FB7185
}

func lerpColor(c1, c2 [3]float64, t float64) [3]float64 {
	return [3]float64{
		c1[0] + (c2[0]-c1[0])*t,
		c1[1] + (c2[1]-c1[1])*t,
		c1[2] + (c2[2]-c1[2])*t,
	}
}

func getGradientColor(t float64) [3]float64 {
	if t <= 0 {
		return gradientStops[0]
	}
	if t >= 1 {
		return gradientStops[len(gradientStops)-1]
	}

	// Find which segment we're in
	segments := float64(len(gradientStops) - 1)
	scaled := t * segments
	idx := int(scaled)
	if idx >= len(gradientStops)-1 {
		idx = len(gradientStops) - 2
	}
	localT := scaled - float64(idx)

	return lerpColor(gradientStops[idx], gradientStops[idx+1], localT)
}

func PrintBanner() {
	fmt.Fprintln(out)

	height := len(bannerLines)
	width := 0
	for _, line := range bannerLines {
		if w := len([]rune(line)); w > width {
			width = w
		}
	}

	for y, line := range bannerLines {
		runes := []rune(line)
		var result strings.Builder

		for x, r := range runes {
			diagonal := (float64(x)/float64(width))*0.5 + (float64(y)/float64(height))*0.5
			color := getGradientColor(diagonal)

			style := lipgloss.NewStyle().Foreground(lipgloss.Color(
				fmt.Sprintf("#%02X%02X%02X", int(color[0]), int(color[1]), int(color[2])),
			))
			result.WriteString(style.Render(string(r)))
		}
		fmt.Fprintln(out, result.String())
	}
	fmt.Fprintln(out)
}

func options(values []string) []huh.Option[string] {
	opts := make([]huh.Option[string], len(values))
	for i, v := range values {
		opts[i] = huh.NewOption(v, v)
	}
	return opts
}

func PromptOptions(benchmarks, queries []string, levels []int) (*Options, error) {
	opts := DefaultOptions()

	var phases []string
	var benchMode, queryMode string
	var selectedBenchmarks, selectedQueries []string
	levelText := joinLevels(levels)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select drivers to benchmark").
				Options(
					huh.NewOption("All drivers (recommended)", "all"),
					huh.NewOption("Select specific drivers", "select"),
				).Value(&benchMode),
		),
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Select drivers").
				Description("Select the driver benchmarks you want to run").
				Options(options(benchmarks)...).
				Value(&selectedBenchmarks),
		).WithHideFunc(func() bool { return benchMode != "select" }),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select queries").
				Options(
					huh.NewOption("All queries", "all"),
					huh.NewOption("Select specific queries", "select"),
				).Value(&queryMode),
		),
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Select queries").
				Options(options(queries)...).
				Value(&selectedQueries),
		).WithHideFunc(func() bool { return queryMode != "select" }),
		huh.NewGroup(
			huh.NewInput().
				Title("Concurrency levels").
				Description("Comma-separated worker counts").
				Value(&levelText).
				Validate(func(s string) error {
					_, err := ParseLevels(s)
					return err
				}),
			huh.NewMultiSelect[string]().
				Title("Select benchmark phases").
				Description("Choose which phases to run").
				Options(
					huh.NewOption("Warmup (recommended)", "warmup").Selected(true),
					huh.NewOption("Server resource monitoring", "resources").Selected(true),
					huh.NewOption("Export to InfluxDB", "export"),
				).Value(&phases),
		),
	).WithTheme(huh.ThemeCatppuccin()).WithKeyMap(huh.NewDefaultKeyMap())

	if err := form.Run(); err != nil {
		return nil, err
	}

	opts.Warmup = slices.Contains(phases, "warmup")
	opts.Resources = slices.Contains(phases, "resources")
	opts.Export = slices.Contains(phases, "export")

	if benchMode == "select" {
		if len(selectedBenchmarks) == 0 {
			return nil, fmt.Errorf("%w: please select at least one driver", ErrNothingSelected)
		}
		opts.Benchmarks = selectedBenchmarks
	}
	if queryMode == "select" {
		if len(selectedQueries) == 0 {
			return nil, fmt.Errorf("%w: please select at least one query", ErrNothingSelected)
		}
		opts.Queries = selectedQueries
	}

	parsed, err := ParseLevels(levelText)
	if err != nil {
		return nil, err
	}
	opts.Levels = parsed
	return &opts, nil
}

// ParseLevels reads a comma-separated list of positive worker counts.
func ParseLevels(s string) ([]int, error) {
	var levels []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid concurrency level %q", part)
		}
		levels = append(levels, n)
	}
	if len(levels) == 0 {
		return nil, fmt.Errorf("%w: no concurrency level given", ErrNothingSelected)
	}
	return levels, nil
}

func joinLevels(levels []int) string {
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = strconv.Itoa(l)
	}
	return strings.Join(parts, ",")
}

func PrintSummary(opts *Options, benchmarkCount int) {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	enabledStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	disabledStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	formatStatus := func(enabled bool) string {
		if enabled {
			return enabledStyle.Render("enabled")
		}
		return disabledStyle.Render("disabled")
	}
	list := func(values []string, all string) string {
		if len(values) == 0 {
			return valueStyle.Render(all)
		}
		return valueStyle.Render(strings.Join(values, ", "))
	}

	fmt.Fprintln(out, headerStyle.Render("Configuration"))
	fmt.Fprintln(out, strings.Repeat("─", 40))

	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Warmup:"), formatStatus(opts.Warmup))
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Resources:"), formatStatus(opts.Resources))
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Export:"), formatStatus(opts.Export))
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Drivers:"), list(opts.Benchmarks, fmt.Sprintf("all (%d)", benchmarkCount)))
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Queries:"), list(opts.Queries, "all"))
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Concurrency:"), valueStyle.Render(joinLevels(opts.Levels)))

	fmt.Fprintln(out, strings.Repeat("─", 40))
	fmt.Fprintln(out)
}
