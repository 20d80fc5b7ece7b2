package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return newRootCommand().Execute()
}

// newRootCommand creates the malsync command tree. Without a subcommand
// the server is started.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "malsync",
		Short:         "Sync catalog watch progress to MyAnimeList",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMappingsCommand())
	cmd.AddCommand(newUserCommand())

	return cmd
}
