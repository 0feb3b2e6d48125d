package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/dataflow/pkg/cache"
	"github.com/matzehuels/dataflow/pkg/config"
	"github.com/matzehuels/dataflow/pkg/errors"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the blob cache behind the disk backend",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())
	cmd.AddCommand(c.cacheStatsCommand())

	return cmd
}

// fileCache opens the configured file cache. Other backends are managed
// with their own tools.
func (c *CLI) fileCache() (*cache.FileCache, config.CacheConfig, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, cfg.Cache, err
	}
	if cfg.Cache.Backend != "file" {
		return nil, cfg.Cache, errors.New(errors.ErrCodeUnsupported, "cache backend is %q, not file", cfg.Cache.Backend)
	}
	fc, err := cache.NewFileCache(cfg.Cache.Dir)
	if err != nil {
		return nil, cfg.Cache, fmt.Errorf("open cache: %w", err)
	}
	return fc, cfg.Cache, nil
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored blob",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, cfg, err := c.fileCache()
			if err != nil {
				return err
			}
			defer fc.Close()

			count, _, err := fc.Stats()
			if err != nil {
				return err
			}
			if count == 0 {
				printInfo(c.out, "Cache is empty")
				return nil
			}
			if err := fc.Purge(); err != nil {
				return err
			}
			printSuccess(c.out, "Cleared %d cached blobs", count)
			printDetail(c.out, "Directory: %s", cfg.Dir)
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Cache.Backend != "file" {
				return errors.New(errors.ErrCodeUnsupported, "cache backend is %q, not file", cfg.Cache.Backend)
			}
			fmt.Fprintln(c.out, cfg.Cache.Dir)
			return nil
		},
	}
}

// cacheStatsCommand creates the "cache stats" subcommand.
func (c *CLI) cacheStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the number and size of stored blobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, cfg, err := c.fileCache()
			if err != nil {
				return err
			}
			defer fc.Close()

			count, size, err := fc.Stats()
			if err != nil {
				return err
			}
			printKeyValue(c.out, "Directory", cfg.Dir)
			printKeyValue(c.out, "Blobs", fmt.Sprint(count))
			printKeyValue(c.out, "Size", formatBytes(size))
			return nil
		},
	}
}

// formatBytes renders n with a binary unit, e.g. "1.5 KiB".
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
