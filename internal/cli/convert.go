package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/dataflow/pkg/repr"
)

// convertCommand shows how the registry converts between backends.
func (c *CLI) convertCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <kind> [from to]",
		Short: "Show converter paths between backends",
		Long: `Show the conversion path the registry resolves for a data kind.

With only a kind, prints the total cost between every pair of backends.
With a source and target backend, prints each step of the cheapest path.`,
		Example: `  dataflow convert layer
  dataflow convert volume compute gpu`,
		Args: cobra.MatchAll(cobra.RangeArgs(1, 3), func(cmd *cobra.Command, args []string) error {
			if len(args) == 2 {
				return fmt.Errorf("expected a kind alone or a kind with both backends")
			}
			return nil
		}),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return kindNames(), cobra.ShellCompDirectiveNoFileComp
			}
			return backendNames(), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.convert(args)
		},
	}
	return cmd
}

func (c *CLI) convert(args []string) error {
	kind, err := repr.ParseOwnerKind(args[0])
	if err != nil {
		return err
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	svc, err := newServices(cfg, c.Logger)
	if err != nil {
		return err
	}
	defer svc.close()

	if len(args) == 1 {
		fmt.Fprintln(c.out, costMatrix(svc.registry, kind))
		return nil
	}

	from, err := repr.ParseBackend(args[1])
	if err != nil {
		return err
	}
	to, err := repr.ParseBackend(args[2])
	if err != nil {
		return err
	}
	path, err := svc.registry.Resolve(kind, from, to)
	if err != nil {
		return err
	}
	if len(path) == 0 {
		printInfo(c.out, "%s is already on %s", kind, to)
		return nil
	}
	total := 0
	for _, conv := range path {
		total += conv.Cost
		ctxNote := ""
		if conv.RequiresContext() {
			ctxNote = StyleDim.Render(" (context thread)")
		}
		printKeyValue(c.out, conv.From.String()+" "+iconArrow, fmt.Sprintf("%s  cost %d%s", conv.To, conv.Cost, ctxNote))
	}
	printSuccess(c.out, "%s %s %s %s: %d steps, cost %s", kind, from, iconArrow, to, len(path), StyleNumber.Render(fmt.Sprint(total)))
	return nil
}

// costMatrix renders the cheapest path cost between every pair of backends.
// Unreachable pairs show a dash.
func costMatrix(reg *repr.Registry, kind repr.OwnerKind) string {
	backends := repr.Backends
	headers := []string{kind.String()}
	for _, b := range backends {
		headers = append(headers, b.String())
	}

	rows := make([][]string, 0, len(backends))
	for _, from := range backends {
		row := []string{from.String()}
		for _, to := range backends {
			path, err := reg.Resolve(kind, from, to)
			if err != nil {
				row = append(row, "-")
				continue
			}
			cost := 0
			for _, conv := range path {
				cost += conv.Cost
			}
			row = append(row, fmt.Sprint(cost))
		}
		rows = append(rows, row)
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 || col == 0 {
				return styleHeader
			}
			return lipgloss.NewStyle().Foreground(colorWhite).Align(lipgloss.Right)
		}).
		Render()
}

func kindNames() []string {
	var names []string
	for _, k := range repr.OwnerKinds {
		names = append(names, k.String())
	}
	return names
}

func backendNames() []string {
	var names []string
	for _, b := range repr.Backends {
		names = append(names, b.String())
	}
	return names
}
