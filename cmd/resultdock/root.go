package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"resultdock/pkg/locking"
	"resultdock/pkg/results"
	"resultdock/pkg/settings"
	"resultdock/pkg/storage"
)

// cli holds global flags and the state built from them.
type cli struct {
	cfgFile         string
	storage         string
	metadataStorage string
	serializer      string

	v        *viper.Viper
	settings *settings.Settings
	logger   *slog.Logger
	closers  []io.Closer
}

func newRootCmd() *cobra.Command {
	c := &cli{v: settings.NewViper()}

	rootCmd := &cobra.Command{
		Use:   "resultdock",
		Short: "Inspect and edit persisted task results",
		Long: `resultdock reads and writes result records in any supported storage.

Storage is chosen by --storage (a location such as file:///var/results,
redis://localhost:6379/0 or s3://bucket/prefix), or by the configured
default storage block, or the local result directory.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadSettings()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	flags.StringVar(&c.storage, "storage", "", "result storage location")
	flags.StringVar(&c.metadataStorage, "metadata-storage", "", "separate metadata storage location")
	flags.StringVar(&c.serializer, "serializer", "", "serializer for writes (json, compressed/json, ...)")
	flags.String("lock-redis-url", "", "Redis URL for result locks")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json)")

	_ = c.v.BindPFlag("locking.redis_url", flags.Lookup("lock-redis-url"))
	_ = c.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = c.v.BindPFlag("logging.format", flags.Lookup("log-format"))

	rootCmd.AddCommand(
		c.newExistsCmd(),
		c.newReadCmd(),
		c.newWriteCmd(),
		c.newParamsCmd(),
		c.newLockCmd(),
		c.newBlocksCmd(),
	)
	return rootCmd
}

func (c *cli) loadSettings() error {
	if c.cfgFile != "" {
		c.v.SetConfigFile(c.cfgFile)
		if err := c.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", c.cfgFile, err)
		}
	}
	s, err := settings.FromViper(c.v)
	if err != nil {
		return err
	}
	c.settings = s
	c.logger = s.NewLogger(nil)
	return nil
}

func (c *cli) openStorage(ctx context.Context, location string) (storage.Storage, error) {
	st, err := storage.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	if closer, ok := st.(io.Closer); ok {
		c.closers = append(c.closers, closer)
	}
	return st, nil
}

// lockManager returns the configured Redis lock manager, or nil.
func (c *cli) lockManager() (locking.LockManager, error) {
	if c.settings.Locking.RedisURL == "" {
		return nil, nil
	}
	m, err := locking.NewRedisLockManagerFromURL(c.settings.Locking.RedisURL)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, m)
	return m, nil
}

// store builds the result store described by the flags and settings.
// Callers close the opened connections with c.close.
func (c *cli) store(ctx context.Context) (*results.ResultStore, error) {
	opts := []results.StoreOption{
		results.WithDefaults(results.NewDefaults(c.settings, nil)),
		results.WithLogger(c.logger),
		results.WithPersistResult(true),
	}

	if c.storage != "" {
		st, err := c.openStorage(ctx, c.storage)
		if err != nil {
			return nil, fmt.Errorf("result storage: %w", err)
		}
		opts = append(opts, results.WithResultStorage(st))
	}
	if c.metadataStorage != "" {
		st, err := c.openStorage(ctx, c.metadataStorage)
		if err != nil {
			return nil, fmt.Errorf("metadata storage: %w", err)
		}
		opts = append(opts, results.WithMetadataStorage(st))
	}
	if c.serializer != "" {
		ser, err := results.ResolveSerializer(c.serializer)
		if err != nil {
			return nil, err
		}
		opts = append(opts, results.WithSerializer(ser))
	}

	lm, err := c.lockManager()
	if err != nil {
		return nil, fmt.Errorf("lock manager: %w", err)
	}
	if lm != nil {
		opts = append(opts, results.WithLockManager(lm))
	}
	return results.NewResultStore(opts...), nil
}

func (c *cli) close() {
	var errs []error
	for _, closer := range c.closers {
		errs = append(errs, closer.Close())
	}
	c.closers = nil
	if err := errors.Join(errs...); err != nil && c.logger != nil {
		c.logger.Warn("failed to close storage", slog.String("error", err.Error()))
	}
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
