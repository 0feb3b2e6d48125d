package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/dataflow/pkg/evaluator"
	"github.com/matzehuels/dataflow/pkg/network"
)

// watchCommand creates the watch command.
func (c *CLI) watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <pipeline>",
		Short: "Evaluate a pipeline in an interactive terminal view",
		Long: `Build the network described by a pipeline file and keep it evaluated
while showing live processor states. Invalidate a processor or reseed a
source to watch the change propagate downstream.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.watch(cmd.Context(), args[0])
		},
	}
}

func (c *CLI) watch(ctx context.Context, path string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	svc, err := newServices(cfg, c.Logger)
	if err != nil {
		return err
	}
	defer svc.close()

	net, err := svc.loadNetwork(path)
	if err != nil {
		return err
	}
	ev, err := svc.evaluator(net)
	if err != nil {
		return err
	}
	defer ev.Close()

	// Log lines would tear the view.
	level := c.Logger.GetLevel()
	c.Logger.SetLevel(log.FatalLevel)
	defer c.Logger.SetLevel(level)

	ev.Watch()
	_, err = tea.NewProgram(newWatchModel(path, net, ev), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

// =============================================================================
// watchModel - live processor states
// =============================================================================

type watchKeys struct {
	Up         key.Binding
	Down       key.Binding
	Invalidate key.Binding
	Reseed     key.Binding
	Quit       key.Binding
}

var defaultWatchKeys = watchKeys{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Invalidate: key.NewBinding(
		key.WithKeys("i", "enter"),
		key.WithHelp("i", "invalidate"),
	),
	Reseed: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "reseed"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c", "esc"),
		key.WithHelp("q", "quit"),
	),
}

func (k watchKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Invalidate, k.Reseed, k.Quit}
}

func (k watchKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// seeder is implemented by sources whose output depends on a seed.
type seeder interface {
	Seed() int64
	SetSeed(int64)
}

type refreshMsg time.Time

func refreshCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

type watchModel struct {
	title   string
	net     *network.Network
	ev      *evaluator.Evaluator
	keys    watchKeys
	help    help.Model
	rows    []stateRow
	cursor  int
	message string
}

func newWatchModel(title string, net *network.Network, ev *evaluator.Evaluator) watchModel {
	m := watchModel{
		title: title,
		net:   net,
		ev:    ev,
		keys:  defaultWatchKeys,
		help:  help.New(),
	}
	m.refresh()
	return m
}

func (m *watchModel) refresh() {
	m.rows = stateRows(m.net, m.ev.InFlight())
	m.cursor = min(m.cursor, max(len(m.rows)-1, 0))
}

func (m watchModel) selected() (*network.Node, bool) {
	if m.cursor >= len(m.rows) {
		return nil, false
	}
	return m.net.Processor(m.rows[m.cursor].id)
}

func (m watchModel) Init() tea.Cmd {
	return refreshCmd()
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case refreshMsg:
		m.refresh()
		return m, refreshCmd()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.rows)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Invalidate):
			if n, ok := m.selected(); ok {
				n.Invalidate()
				m.message = fmt.Sprintf("invalidated %s", n.ID())
			}
		case key.Matches(msg, m.keys.Reseed):
			n, ok := m.selected()
			if !ok {
				break
			}
			s, ok := n.Processor().(seeder)
			if !ok {
				m.message = fmt.Sprintf("%s has no seed", n.ID())
				break
			}
			s.SetSeed(s.Seed() + 1)
			n.Invalidate()
			m.message = fmt.Sprintf("reseeded %s to %d", n.ID(), s.Seed())
		}
		m.refresh()
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Watching " + m.title))
	b.WriteString("\n\n")
	b.WriteString(stateTable(m.rows, m.cursor))
	b.WriteString("\n")

	inFlight := 0
	for _, r := range m.rows {
		if r.inFlight {
			inFlight++
		}
	}
	status := fmt.Sprintf("  version %d · %d processors · %d in flight", m.net.Version(), len(m.rows), inFlight)
	b.WriteString(StyleDim.Render(status))
	if err := m.ev.Err(); err != nil {
		b.WriteString("\n  " + styleIconError.Render(iconError) + " " + err.Error())
	}
	if m.message != "" {
		b.WriteString("\n  " + styleIconInfo.Render(iconInfo) + " " + m.message)
	}
	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}
