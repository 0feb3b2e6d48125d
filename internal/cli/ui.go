package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/dataflow/pkg/network"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorCyan   = lipgloss.Color("36")  // Teal - primary actions
	colorGreen  = lipgloss.Color("35")  // Green - success
	colorYellow = lipgloss.Color("220") // Amber - warnings
	colorRed    = lipgloss.Color("167") // Soft red - errors
	colorBlue   = lipgloss.Color("75")  // Light blue - in flight
	colorWhite  = lipgloss.Color("255") // Bright white - values
	colorGray   = lipgloss.Color("245") // Gray - secondary text
	colorDim    = lipgloss.Color("240") // Dim gray - muted text
)

// =============================================================================
// Public Styles
// =============================================================================

var (
	// StyleTitle for main headings.
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)

	// StyleDim for secondary/muted text.
	StyleDim = lipgloss.NewStyle().Foreground(colorDim)

	// StyleValue for data values.
	StyleValue = lipgloss.NewStyle().Foreground(colorWhite)

	// StyleNumber for numeric values.
	StyleNumber = lipgloss.NewStyle().Foreground(colorCyan)

	// StyleWarning for warning messages.
	StyleWarning = lipgloss.NewStyle().Foreground(colorYellow)
)

// =============================================================================
// Internal Styles
// =============================================================================

var (
	styleIconSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleIconError   = lipgloss.NewStyle().Foreground(colorRed)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorYellow)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorGray)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorCyan)

	styleHeader   = lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	styleInFlight = lipgloss.NewStyle().Foreground(colorBlue)
)

// stateStyles colors processor states.
var stateStyles = map[network.State]lipgloss.Style{
	network.Invalid: lipgloss.NewStyle().Foreground(colorYellow),
	network.Valid:   lipgloss.NewStyle().Foreground(colorGreen),
	network.Error:   lipgloss.NewStyle().Foreground(colorRed),
}

// =============================================================================
// Icons
// =============================================================================

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
)

// =============================================================================
// Status Output
// =============================================================================

// printSuccess prints a success message.
func printSuccess(w io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(w, styleIconSuccess.Render(iconSuccess)+" "+msg)
}

// printError prints an error message.
func printError(w io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(w, styleIconError.Render(iconError)+" "+msg)
}

// printWarning prints a warning message.
func printWarning(w io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(w, styleIconWarning.Render(iconWarning)+" "+StyleWarning.Render(msg))
}

// printInfo prints an info/status message.
func printInfo(w io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(w, styleIconInfo.Render(iconInfo)+" "+msg)
}

// printDetail prints a detail line (indented).
func printDetail(w io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(w, "  "+StyleDim.Render(msg))
}

// printFile prints a file output line.
func printFile(w io.Writer, path string) {
	fmt.Fprintln(w, "  "+StyleDim.Render(iconArrow)+" "+StyleValue.Render(path))
}

// printKeyValue prints a labeled value.
func printKeyValue(w io.Writer, key, value string) {
	keyStyle := lipgloss.NewStyle().Foreground(colorGray).Width(12)
	fmt.Fprintln(w, keyStyle.Render(key)+" "+StyleValue.Render(value))
}

// =============================================================================
// Network Display
// =============================================================================

// stateRow is one line of the processor table.
type stateRow struct {
	id       string
	kind     string
	state    network.State
	inFlight bool
	progress float64
	err      error
}

// stateRows snapshots every processor of net, sorted by identifier.
func stateRows(net *network.Network, inFlight []string) []stateRow {
	nodes := net.Processors()
	rows := make([]stateRow, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, stateRow{
			id:       n.ID(),
			kind:     processorKind(n),
			state:    n.State(),
			inFlight: slices.Contains(inFlight, n.ID()),
			progress: n.Progress(),
			err:      n.Err(),
		})
	}
	slices.SortFunc(rows, func(a, b stateRow) int { return strings.Compare(a.id, b.id) })
	return rows
}

// processorKind names the Go type behind a node, e.g. "Blur".
func processorKind(n *network.Node) string {
	name := fmt.Sprintf("%T", n.Processor())
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// stateTable renders rows as a bordered table. cursor marks the selected row;
// -1 marks none.
func stateTable(rows []stateRow, cursor int) string {
	data := make([][]string, len(rows))
	for i, r := range rows {
		mark := "  "
		if i == cursor {
			mark = "▸ "
		}
		state := r.state.String()
		if r.inFlight {
			state = fmt.Sprintf("running %3.0f%%", 100*r.progress)
		}
		detail := ""
		if r.err != nil {
			detail = truncate(r.err.Error(), 60)
		}
		data[i] = []string{mark, r.id, r.kind, state, detail}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Processor", "Type", "State", "Error").
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return styleHeader
			}
			if row < 0 || row >= len(rows) {
				return lipgloss.NewStyle()
			}
			r := rows[row]
			base := lipgloss.NewStyle()
			if row == cursor {
				base = base.Bold(true)
			}
			switch col {
			case 2:
				return base.Foreground(colorGray)
			case 3:
				if r.inFlight {
					return base.Inherit(styleInFlight)
				}
				return base.Inherit(stateStyles[r.state])
			case 4:
				return base.Foreground(colorRed)
			}
			return base
		})
	return t.Render()
}

// printStates prints the processor table followed by a one-line summary.
func printStates(w io.Writer, net *network.Network, inFlight []string) {
	rows := stateRows(net, inFlight)
	fmt.Fprintln(w, stateTable(rows, -1))

	counts := make(map[network.State]int)
	for _, r := range rows {
		counts[r.state]++
	}
	parts := make([]string, 0, 3)
	for _, s := range []network.State{network.Valid, network.Invalid, network.Error} {
		if counts[s] > 0 {
			parts = append(parts, stateStyles[s].Render(fmt.Sprintf("%d %s", counts[s], s)))
		}
	}
	fmt.Fprintln(w, "  "+strings.Join(parts, StyleDim.Render(" · ")))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
