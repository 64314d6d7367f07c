package main

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func (c *cli) newParamsCmd() *cobra.Command {
	paramsCmd := &cobra.Command{
		Use:   "params",
		Short: "Store and show deferred task parameters",
	}

	putCmd := &cobra.Command{
		Use:   "put JSON",
		Short: "Store a parameter object and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params map[string]any
			if err := json.Unmarshal([]byte(args[0]), &params); err != nil {
				return fmt.Errorf("parameters must be a JSON object: %w", err)
			}

			store, err := c.store(cmd.Context())
			if err != nil {
				return err
			}
			defer c.close()

			id := uuid.New()
			if err := store.StoreParameters(cmd.Context(), id, params); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
			return err
		},
	}

	getCmd := &cobra.Command{
		Use:   "get ID",
		Short: "Print stored parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid parameters id %q: %w", args[0], err)
			}

			store, err := c.store(cmd.Context())
			if err != nil {
				return err
			}
			defer c.close()

			params, err := store.ReadParameters(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), params)
		},
	}

	paramsCmd.AddCommand(putCmd, getCmd)
	return paramsCmd
}
