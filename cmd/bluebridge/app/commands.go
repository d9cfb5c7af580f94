// Package app provides the entry point for the bluebridge command-line
// application.
package app

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:               "bluebridge",
	DisableAutoGenTag: true,
	Short:             "BlueBridge is a Mastodon-compatible gateway to Bluesky",
	Long: `BlueBridge serves the Mastodon client API backed by a Bluesky account.
Point any Mastodon app at a running gateway, sign in with a Bluesky handle
and an app password, and the gateway translates between the two protocols:
accounts, statuses, timelines, notifications, media and search.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// NewRootCmd creates a new root command for the BlueBridge CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}
