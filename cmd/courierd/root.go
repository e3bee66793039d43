package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opd-ai/courier/config"
	"github.com/opd-ai/courier/session"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "courierd",
		Short:         "Messaging channel daemon with QR login, auto-restart and paced sends",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "path to the YAML configuration file")
	root.AddCommand(newServeCommand(), newQRCommand(), newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "courierd", version)
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

// setupLogging applies the log section to the global logrus logger.
func setupLogging(cfg config.LogConfig, out io.Writer) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	logrus.SetOutput(out)
	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// openStore opens the configured session store. The returned closer is
// never nil.
func openStore(ctx context.Context, cfg config.SessionConfig) (session.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.BackendMemory:
		return session.NewMemoryStore(), noop, nil
	case config.BackendFile:
		fs, err := session.NewFileStore(cfg.Path, []byte(cfg.Passphrase))
		if err != nil {
			return nil, noop, err
		}
		return fs, fs.Close, nil
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
			return nil, noop, fmt.Errorf("create session database directory: %w", err)
		}
		st, err := session.OpenSQLStore(ctx, cfg.Path)
		if err != nil {
			return nil, noop, err
		}
		return st, st.Close, nil
	default:
		return nil, noop, fmt.Errorf("%w: %q", config.ErrInvalidBackend, cfg.Backend)
	}
}
