package main

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func (c *cli) newExistsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists KEY",
		Short: "Report whether a result record exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.store(cmd.Context())
			if err != nil {
				return err
			}
			defer c.close()

			_, err = fmt.Fprintln(cmd.OutOrStdout(), store.Exists(cmd.Context(), args[0]))
			return err
		},
	}
}

func (c *cli) newReadCmd() *cobra.Command {
	var (
		holder   string
		metaOnly bool
	)
	cmd := &cobra.Command{
		Use:   "read KEY",
		Short: "Print a result record as JSON",
		Long: `Print the record stored under KEY as {"metadata": ..., "result": ...}.

With a lock manager configured, read waits until no other holder has the
key locked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.store(cmd.Context())
			if err != nil {
				return err
			}
			defer c.close()

			rec, err := store.Read(cmd.Context(), args[0], holder)
			if err != nil {
				return err
			}
			meta, err := rec.SerializeMetadata()
			if err != nil {
				return err
			}
			if metaOnly {
				return printJSON(cmd.OutOrStdout(), json.RawMessage(meta))
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"metadata": json.RawMessage(meta),
				"result":   rec.Result,
			})
		},
	}
	cmd.Flags().StringVar(&holder, "holder", "", "lock holder to read as")
	cmd.Flags().BoolVar(&metaOnly, "metadata", false, "print only the metadata")
	return cmd
}

func (c *cli) newWriteCmd() *cobra.Command {
	var (
		holder    string
		raw       bool
		expiresIn time.Duration
	)
	cmd := &cobra.Command{
		Use:   "write KEY VALUE",
		Short: "Write a result record",
		Long: `Write VALUE under KEY. VALUE is parsed as JSON unless --raw is given.

Examples:
  resultdock write reports/mon '{"count": 3}'
  resultdock write greeting hello --raw --expires-in 24h`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value any = args[1]
			if !raw {
				if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
					return fmt.Errorf("VALUE is not valid JSON (use --raw for plain strings): %w", err)
				}
			}
			var expiration *time.Time
			if expiresIn > 0 {
				exp := time.Now().Add(expiresIn).UTC()
				expiration = &exp
			}

			store, err := c.store(cmd.Context())
			if err != nil {
				return err
			}
			defer c.close()

			if err := store.Write(cmd.Context(), args[0], value, expiration, holder); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return err
		},
	}
	cmd.Flags().StringVar(&holder, "holder", "", "lock holder to write as")
	cmd.Flags().BoolVar(&raw, "raw", false, "store VALUE as a plain string")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "record expiration relative to now")
	return cmd
}
