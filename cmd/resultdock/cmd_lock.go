package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"resultdock/pkg/serializers"
)

func (c *cli) newLockCmd() *cobra.Command {
	lockCmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect and release result locks",
		Long: `Inspect and release result locks. Locks are only shared between
processes with a Redis lock manager (--lock-redis-url or locking.redis_url).`,
	}

	statusCmd := &cobra.Command{
		Use:   "status KEY",
		Short: "Report whether KEY is locked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.store(cmd.Context())
			if err != nil {
				return err
			}
			defer c.close()

			locked, err := store.IsLocked(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), locked)
			return err
		},
	}

	var holder string
	releaseCmd := &cobra.Command{
		Use:   "release KEY",
		Short: "Release a lock held by --holder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.store(cmd.Context())
			if err != nil {
				return err
			}
			defer c.close()

			if err := store.ReleaseLock(cmd.Context(), args[0], holder); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "released %s\n", args[0])
			return err
		},
	}
	releaseCmd.Flags().StringVar(&holder, "holder", "", "holder that owns the lock")
	_ = releaseCmd.MarkFlagRequired("holder")

	lockCmd.AddCommand(statusCmd, releaseCmd)
	return lockCmd
}

func (c *cli) newBlocksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "blocks",
		Short: "List configured storage blocks and serializers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := make([]string, 0, len(c.settings.Blocks))
			for name := range c.settings.Blocks {
				names = append(names, name)
			}
			sort.Strings(names)

			out := cmd.OutOrStdout()
			for _, name := range names {
				marker := ""
				if name == c.settings.Results.DefaultStorageBlock {
					marker = " (default)"
				}
				if _, err := fmt.Fprintf(out, "%s\t%s%s\n", name, c.settings.Blocks[name], marker); err != nil {
					return err
				}
			}
			_, err := fmt.Fprintf(out, "serializers: %v\n", serializers.Types())
			return err
		},
	}
}
