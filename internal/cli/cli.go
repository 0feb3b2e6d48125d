package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/dataflow/pkg/buildinfo"
	"github.com/matzehuels/dataflow/pkg/config"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for display and completions.
	appName = "dataflow"

	// defaultConfigFile is read when --config is not given and it exists.
	defaultConfigFile = "dataflow.toml"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	verbose    bool      // level chosen on the command line wins over the config
	out        io.Writer // command output, separate from log lines
}

// New creates a new CLI instance logging to w. Command output goes to stdout.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level), out: os.Stdout}
}

// SetOutput redirects command output.
func (c *CLI) SetOutput(w io.Writer) {
	c.out = w
}

// SetLogLevel updates the logger's level. A debug level is kept even if the
// config file asks for less.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
	c.verbose = level <= log.DebugLevel
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Dataflow evaluates processor networks",
		Long:         `Dataflow builds processor networks from pipeline files and evaluates them, converting data between RAM, compute, GPU and disk representations as processors need them.`,
		Version:      buildinfo.Get().Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (.toml or .yaml), default ./"+defaultConfigFile+" if present")

	root.AddCommand(c.runCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.convertCommand())
	root.AddCommand(c.processorsCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.watchCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// loadConfig reads --config, falling back to ./dataflow.toml and then to
// the defaults.
func (c *CLI) loadConfig() (config.Config, error) {
	path := c.configPath
	if path == "" {
		if !fileExists(defaultConfigFile) {
			return config.Default(), nil
		}
		path = defaultConfigFile
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if lvl, err := log.ParseLevel(cfg.Log.Level); err == nil && !c.verbose {
		c.Logger.SetLevel(lvl)
	}
	c.Logger.Debug("loaded config", "path", path)
	return cfg, nil
}
