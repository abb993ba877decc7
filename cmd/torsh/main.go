package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/five82/torsh/internal/app"
	"github.com/five82/torsh/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "torsh: %v\n", err)
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	var (
		configPath  string
		askPassword bool
	)

	root := &cobra.Command{
		Use:   "torsh",
		Short: "Terminal dashboard for a Transmission daemon",
		Long: `torsh keeps a live view of a Transmission daemon in the terminal.

It starts the daemon when it is not running (installing it first if allowed),
follows every torrent, and sends pause, resume, add, move, verify, delete and
speed limit commands without blocking the interface.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if askPassword {
				pw, err := readPassword("RPC password: ")
				if err != nil {
					return err
				}
				if err := flags.Set("password", pw); err != nil {
					return err
				}
			}
			return app.Run(cmd.Context(), app.Options{
				ConfigPath: configPath,
				Flags:      flags,
				Version:    version,
			})
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default "+config.DefaultPath()+")")

	f := root.Flags()
	f.String("host", "", "daemon RPC host")
	f.Int("port", 0, "daemon RPC port")
	f.String("user", "", "RPC username")
	f.String("password", "", "RPC password")
	f.BoolVar(&askPassword, "ask-password", false, "prompt for the RPC password")
	f.Float64("timeout", 0, "RPC timeout in seconds")
	f.String("download-dir", "", "download directory for a started daemon and new torrents")
	f.Bool("no-autostart", false, "never start the daemon; only connect")
	f.Bool("no-install-missing", false, "never install the daemon package")
	f.Bool("no-restart", false, "do not restart the daemon when it stops responding")
	f.String("session-file", "", "where filter, sort and refresh preferences are kept")
	f.String("log-level", "", "log level (trace, debug, info, warn, error)")
	f.String("log-file", "", `log file, or "-" for stderr`)
	f.Float64("refresh", 0, "sync interval in seconds (0.5 to 30)")

	root.AddCommand(newVersionCommand(), newConfigCommand(&configPath))
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the torsh version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func newConfigCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the commented default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.WriteDefault(*configPath, force)
			if errors.Is(err, config.ErrConfigExists) {
				return fmt.Errorf("%w (use --force to overwrite)", err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}

func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--ask-password needs an interactive terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}
