package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/dataflow/pkg/errors"
	"github.com/matzehuels/dataflow/pkg/render/netgraph"
)

// graphOptions holds flags for the graph command.
type graphOptions struct {
	output   string
	format   string
	detailed bool
	evaluate bool
}

// graphCommand creates the graph command.
func (c *CLI) graphCommand() *cobra.Command {
	var opts graphOptions

	cmd := &cobra.Command{
		Use:   "graph <pipeline>",
		Short: "Draw a pipeline as DOT or SVG",
		Long: `Draw the network described by a pipeline file. Processors are colored by
state, so evaluating first (--evaluate) shows which processors succeeded.`,
		Example: `  dataflow graph pipeline.toml
  dataflow graph pipeline.toml -o network.svg --evaluate`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.graph(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (stdout if empty)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "dot or svg (default from output extension, else dot)")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "show port kinds")
	cmd.Flags().BoolVar(&opts.evaluate, "evaluate", false, "evaluate before drawing")

	return cmd
}

func (c *CLI) graph(ctx context.Context, path string, opts graphOptions) error {
	format, err := graphFormat(opts)
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

	net, err := svc.loadNetwork(path)
	if err != nil {
		return err
	}
	if opts.evaluate {
		ev, err := svc.evaluator(net)
		if err != nil {
			return err
		}
		defer ev.Close()
		if _, err := runToCompletion(ctx, ev); err != nil {
			return err
		}
	}

	out := []byte(netgraph.ToDOT(net, netgraph.Options{Detailed: opts.detailed}))
	if format == "svg" {
		if out, err = netgraph.RenderSVG(ctx, string(out)); err != nil {
			return err
		}
	}

	if opts.output == "" {
		_, err := c.out.Write(out)
		return err
	}
	if err := os.WriteFile(opts.output, out, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", opts.output, err)
	}
	printSuccess(c.out, "Wrote %s", format)
	printFile(c.out, opts.output)
	return nil
}

// graphFormat picks the output format from --format or the file extension.
func graphFormat(opts graphOptions) (string, error) {
	format := strings.ToLower(opts.format)
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(opts.output)), ".")
		if format != "svg" {
			format = "dot"
		}
	}
	switch format {
	case "dot", "svg":
		return format, nil
	default:
		return "", errors.New(errors.ErrCodeInvalidInput, "unknown graph format %q (want dot or svg)", opts.format)
	}
}
