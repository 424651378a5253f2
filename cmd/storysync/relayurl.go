package main

import (
	"fmt"

	"storysync/internal/session"
	"storysync/internal/transport"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var relayURLCmd = &cobra.Command{
	Use:   "relay-url",
	Short: "Print the websocket URL a session connects to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, err := transport.StoryURL(viper.GetString("relay_url"), session.Normalize(viper.GetString("session")))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), url)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(relayURLCmd)
}
