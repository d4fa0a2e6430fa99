package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"kvchat/internal/client"
	"kvchat/internal/config"
)

var (
	configPath string
	overrides  struct {
		username   string
		passphrase string
		dataDir    string
		backend    string
		endpoints  []string
		namespace  string
		scheme     string
		logLevel   string
		logPort    int
		logFile    string
		noHistory  bool
	}
)

var rootCmd = &cobra.Command{
	Use:   "kvchat",
	Short: "End-to-end encrypted group chat over a key-value store",
	Long: `kvchat keeps chat rooms in a shared key-value store (etcd, Consul or Redis).
Every message is encrypted for the room, and new members are let in by an
existing member who hands over the room key.

Without a subcommand the terminal interface is started.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		// the interface owns the terminal, so logs only go to the configured sinks
		logging, err := client.NewLogging(cfg.Log, nil)
		if err != nil {
			return err
		}
		defer logging.Close()

		app, err := client.NewApp(cfg, logging.Logger)
		if err != nil {
			return err
		}
		return app.Run()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "config file (default ~/.kvchat/config.yaml)")
	flags.StringVarP(&overrides.username, "user", "u", "", "username")
	flags.StringVar(&overrides.passphrase, "passphrase", "", "passphrase sealing the local key store")
	flags.StringVar(&overrides.dataDir, "data-dir", "", "directory holding profiles and history")
	flags.StringVar(&overrides.backend, "backend", "", "store backend: etcd, consul, redis or memory")
	flags.StringSliceVar(&overrides.endpoints, "endpoints", nil, "store endpoints")
	flags.StringVar(&overrides.namespace, "namespace", "", "key prefix inside the store")
	flags.StringVar(&overrides.scheme, "scheme", "", "key wrapping scheme: rsa or kyber1024")
	flags.StringVar(&overrides.logLevel, "log-level", "", "log level")
	flags.IntVar(&overrides.logPort, "log-port", 0, "stream logs to TCP clients on this port")
	flags.StringVar(&overrides.logFile, "log-file", "", "append logs to this file")
	flags.BoolVar(&overrides.noHistory, "no-history", false, "do not keep a local message history")

	rootCmd.AddCommand(roomsCmd, createCmd, removeCmd, membersCmd, infoCmd,
		joinCmd, approveCmd, sendCmd, tailCmd, historyCmd, configCmd)
}

// loadConfig reads the config file and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("user") {
		cfg.Username = overrides.username
	}
	if flags.Changed("passphrase") {
		cfg.Passphrase = overrides.passphrase
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = overrides.dataDir
	}
	if flags.Changed("backend") {
		cfg.Store.Backend = overrides.backend
	}
	if flags.Changed("endpoints") {
		cfg.Store.Endpoints = overrides.endpoints
	}
	if flags.Changed("namespace") {
		cfg.Store.Namespace = overrides.namespace
	}
	if flags.Changed("scheme") {
		cfg.Crypto.Scheme = overrides.scheme
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = overrides.logLevel
	}
	if flags.Changed("log-port") {
		cfg.Log.Port = overrides.logPort
	}
	if flags.Changed("log-file") {
		cfg.Log.File = overrides.logFile
	}
	if overrides.noHistory {
		cfg.History.Enabled = false
	}
	if err := cfg.Sanitize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withSession runs f against a session of the configured user. Logs go to
// stderr so they do not mix with command output.
func withSession(cmd *cobra.Command, f func(ctx context.Context, s *client.Session) error) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Username == "" {
		return fmt.Errorf("no username: pass --user or set username in the config file")
	}
	logging, err := client.NewLogging(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer logging.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := client.Connect(ctx, cfg, cfg.Username, cfg.Passphrase, logging.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); err == nil {
			err = cerr
		}
	}()
	return f(ctx, s)
}
