package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/dataflow/pkg/errors"
	"github.com/matzehuels/dataflow/pkg/evaluator"
	"github.com/matzehuels/dataflow/pkg/network"
)

// runOptions holds flags for the run command.
type runOptions struct {
	timeout time.Duration
	quiet   bool
}

// runCommand creates the run command.
func (c *CLI) runCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <pipeline>",
		Short: "Evaluate a pipeline until every processor settles",
		Long: `Build the network described by a pipeline file, evaluate it until no
processor can make progress and print the resulting processor states.

The command fails if any processor ends in the error state.`,
		Example: `  dataflow run pipeline.toml
  dataflow run pipeline.yaml --timeout 30s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPipeline(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "give up after this long (0 = no limit)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "print only failures")

	return cmd
}

func (c *CLI) runPipeline(ctx context.Context, path string, opts runOptions) error {
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

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	prog := newProgress(c.Logger)
	var spin *Spinner
	if !opts.quiet {
		spin = newSpinner(ctx, c.out, fmt.Sprintf("Evaluating %d processors", net.ProcessorCount()))
		spin.Start()
		stop := trackProgress(spin, net, ev)
		defer stop()
	}
	results, err := runToCompletion(ctx, ev)
	if spin != nil {
		spin.Stop()
	}
	if err != nil {
		return err
	}

	summary := summarize(results)
	prog.done(fmt.Sprintf("Evaluated %d processors in %d passes", summary.Processed, len(results)))

	failed := failedNodes(net)
	if !opts.quiet {
		printStates(c.out, net, ev.InFlight())
	}
	for _, n := range failed {
		printError(c.out, "%s: %v", n.ID(), n.Err())
	}
	if !opts.quiet {
		for _, n := range net.Processors() {
			if n.State() == network.Invalid {
				printWarning(c.out, "%s was not evaluated", n.ID())
			}
		}
	}
	if len(failed) > 0 {
		return errors.New(errors.ErrCodeProcessorFailed, "%d of %d processors failed", len(failed), net.ProcessorCount())
	}
	if !opts.quiet {
		printSuccess(c.out, "All %d processors valid", net.ProcessorCount())
	}
	return nil
}

// trackProgress updates the spinner with running background tasks until the
// returned function is called.
func trackProgress(spin *Spinner, net *network.Network, ev *evaluator.Evaluator) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			ids := ev.InFlight()
			if len(ids) == 0 {
				continue
			}
			if n, ok := net.Processor(ids[0]); ok {
				spin.SetMessage(fmt.Sprintf("Running %s (%.0f%%), %d in flight", n.ID(), 100*n.Progress(), len(ids)))
			}
		}
	}()
	return func() { close(done) }
}

// summarize adds up the results of several passes.
func summarize(results []*evaluator.Result) evaluator.Result {
	var sum evaluator.Result
	for _, r := range results {
		sum.Processed += r.Processed
		sum.Failed += r.Failed
		sum.Dispatched += r.Dispatched
		sum.Duration += r.Duration
		sum.Errors = append(sum.Errors, r.Errors...)
	}
	return sum
}

func failedNodes(net *network.Network) []*network.Node {
	var failed []*network.Node
	for _, n := range net.Processors() {
		if n.State() == network.Error {
			failed = append(failed, n)
		}
	}
	return failed
}
