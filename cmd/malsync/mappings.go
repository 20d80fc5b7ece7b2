package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMappingsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Manage the Kitsu to MyAnimeList id mappings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import",
		Short: "Download and store the mapping dataset now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(
				func(a *app) error {
					count, err := a.importer.Import(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Imported %d mappings\n", count)
					return nil
				},
				func(c *adminClient) error {
					resp, err := c.TriggerImport(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
					return nil
				},
			)
		},
	})

	return cmd
}
