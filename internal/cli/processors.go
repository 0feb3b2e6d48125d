package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/dataflow/pkg/processors"
)

// processorsCommand lists the processor types a pipeline can use.
func (c *CLI) processorsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "processors",
		Short: "List processor types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range processors.Types() {
				fmt.Fprintln(c.out, name)
			}
			return nil
		},
	}
}
