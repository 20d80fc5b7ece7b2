package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/amaumene/malsync/internal/api/handlers"
)

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage MyAnimeList users",
	}

	cmd.AddCommand(newUserAddCommand())
	cmd.AddCommand(newUserRemoveCommand())

	return cmd
}

func newUserAddCommand() *cobra.Command {
	var (
		id  string
		req handlers.UserRequest
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Store a user's MyAnimeList tokens and preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withStore(
				func(a *app) error {
					return a.users.PutUser(req.User(id, time.Now()))
				},
				func(c *adminClient) error {
					_, err := c.PutUser(cmd.Context(), id, req)
					return err
				},
			)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored user %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "MyAnimeList user id")
	cmd.Flags().StringVar(&req.AccessToken, "access-token", "", "MyAnimeList OAuth access token")
	cmd.Flags().StringVar(&req.RefreshToken, "refresh-token", "", "MyAnimeList OAuth refresh token")
	cmd.Flags().IntVar(&req.ExpiresIn, "expires-in", 2678400, "access token lifetime in seconds")
	cmd.Flags().BoolVar(&req.TrackUnlisted, "track-unlisted", false, "add titles that are on no list as watching")
	cmd.Flags().BoolVar(&req.FetchStreams, "fetch-streams", false, "proxy streams from the aggregator")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("access-token")

	return cmd
}

func newUserRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a stored user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withStore(
				func(a *app) error {
					return a.users.RemoveUser(args[0])
				},
				func(c *adminClient) error {
					_, err := c.RemoveUser(cmd.Context(), args[0])
					return err
				},
			)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed user %s\n", args[0])
			return nil
		},
	}
}
