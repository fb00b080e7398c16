package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/depsentry/depsentry/pkg/audit"
	"github.com/depsentry/depsentry/pkg/cache"
)

// newCacheCmd creates the cache management command.
func newCacheCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the result cache",
	}
	cmd.AddCommand(newCacheStatsCmd(configPath))
	cmd.AddCommand(newCacheClearCmd(configPath))
	cmd.AddCommand(newCacheCleanupCmd(configPath))
	return cmd
}

// openCache builds the configured cache backend.
func openCache(configPath string, cmd *cobra.Command) (*cache.Cache, error) {
	cfg, err := audit.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return cache.New(cache.Options{
		Backend:      cfg.Cache.Backend,
		Dir:          cfg.Cache.Directory,
		RedisAddr:    cfg.Cache.RedisAddr,
		MaxSizeBytes: cfg.Cache.MaxSizeMB << 20,
		Logger:       loggerFromContext(cmd.Context()),
	}), nil
}

func newCacheStatsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache(*configPath, cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			raw, err := json.MarshalIndent(c.Stats(cmd.Context()), "", "  ")
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(raw, '\n'))
			return err
		},
	}
}

func newCacheClearCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache(*configPath, cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			c.ClearAll(cmd.Context())
			loggerFromContext(cmd.Context()).Info("cache cleared")
			return nil
		},
	}
}

func newCacheCleanupCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openCache(*configPath, cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			removed := c.CleanupExpired(cmd.Context())
			loggerFromContext(cmd.Context()).Info("cleanup complete", "removed", removed)
			return nil
		},
	}
}
