package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storysync/internal/config"
	"storysync/internal/discovery"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

const discoverTimeout = 5 * time.Second

var rootCmd = &cobra.Command{
	Use:   "storysync --file PATH",
	Short: "Keep a local text file in sync with a shared story session",
	Long: `Bind a text file to a collaborative story session on a storysync relay.

Edits saved to the file by any editor are sent to everyone else in the
session; their edits are written back into the file.

Commands on stdin:
  :session <id>   switch to another session
  :status         show the connection state
  :quit           leave

Example usage:
  storysync --file draft.txt
  storysync --discover --session chapter-1 --file ch1.txt
  storysync --relay https://relay.example.com --session chapter-1 --file ch1.txt`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := peerOptions{
			RelayURL:    viper.GetString("relay_url"),
			Session:     viper.GetString("session"),
			File:        viper.GetString("file"),
			Interactive: term.IsTerminal(int(os.Stdin.Fd())),
		}
		if opts.File == "" {
			return fmt.Errorf("--file is required")
		}

		if sink := logSink(viper.GetString("log_file"), viper.GetInt("log_max_mb")); sink != nil {
			log.SetOutput(sink)
			defer sink.Close()
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if viper.GetBool("discover") {
			browseCtx, stop := context.WithTimeout(ctx, discoverTimeout)
			url, err := discovery.Browse(browseCtx)
			stop()
			if err != nil {
				return fmt.Errorf("discover relay: %w", err)
			}
			opts.RelayURL = url
		}

		return runPeer(ctx, opts, os.Stdin, cmd.OutOrStdout())
	},
}

func init() {
	defaults := config.LoadPeer()

	flags := rootCmd.PersistentFlags()
	flags.String("relay", defaults.RelayURL, "Relay base URL (http, https, ws or wss)")
	flags.StringP("session", "s", defaults.Session, "Session id")

	local := rootCmd.Flags()
	local.StringP("file", "f", "", "Text file to bind to the session")
	local.String("log-file", "", "Write logs to this file instead of stderr (rotated)")
	local.Int("log-max-mb", 10, "Rotate the log file after this many megabytes")
	local.Bool("discover", false, "Find a relay on the local network instead of using --relay")

	// STORYSYNC_RELAY_URL, STORYSYNC_SESSION, STORYSYNC_FILE, ...
	viper.SetEnvPrefix("STORYSYNC")
	viper.AutomaticEnv()
	viper.BindPFlag("relay_url", flags.Lookup("relay"))
	viper.BindPFlag("session", flags.Lookup("session"))
	viper.BindPFlag("file", local.Lookup("file"))
	viper.BindPFlag("log_file", local.Lookup("log-file"))
	viper.BindPFlag("log_max_mb", local.Lookup("log-max-mb"))
	viper.BindPFlag("discover", local.Lookup("discover"))
}

// logSink returns a size-rotated log file, or nil to keep logging to stderr.
func logSink(path string, maxMB int) io.WriteCloser {
	if path == "" {
		return nil
	}
	if maxMB <= 0 {
		maxMB = 10
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxMB,
		MaxBackups: 3,
		MaxAge:     28,
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
