package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"kvchat/internal/client"
	"kvchat/internal/config"
	"kvchat/internal/models"
	"kvchat/internal/utils"
)

var (
	announceJoins bool
	historyLimit  int
)

var sendCmd = &cobra.Command{
	Use:   "send <room> <message>...",
	Short: "Send a message to a room",
	Long:  `Send a message to a room. A message of the form "!<user>" approves that user instead.`,
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *client.Session) error {
			return s.Submit(ctx, args[0], strings.Join(args[1:], " "))
		})
	},
}

var tailCmd = &cobra.Command{
	Use:   "tail <room>",
	Short: "Print the messages of a room as they arrive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *client.Session) error {
			feed, err := s.Follow(ctx, args[0], announceJoins)
			if err != nil {
				return err
			}
			for _, msg := range feed.Backlog {
				printMessage(msg)
			}
			for ev := range feed.Events() {
				switch ev.Kind {
				case models.EventMessage:
					printMessage(ev.Message)
				case models.EventMemberJoined:
					fmt.Printf("-- %s asked to join\n", ev.Member)
				case models.EventUndecryptable:
					fmt.Printf("-- message %d could not be decrypted\n", ev.Index)
				case models.EventError:
					fmt.Printf("-- %v\n", ev.Err)
				}
			}
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <room>",
	Short: "Print the locally cached messages of a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *client.Session) error {
			if s.History == nil {
				return fmt.Errorf("local history is disabled")
			}
			msgs, err := s.History.Recent(ctx, args[0], historyLimit)
			if err != nil {
				return err
			}
			for _, msg := range msgs {
				printMessage(msg)
			}
			return nil
		})
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the default settings",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			var err error
			if path, err = config.DefaultPath(); err != nil {
				return err
			}
		}
		if err := config.Default().Write(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Passphrase != "" {
			cfg.Passphrase = "********"
		}
		if cfg.Store.Password != "" {
			cfg.Store.Password = "********"
		}
		if cfg.Store.Token != "" {
			cfg.Store.Token = "********"
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

func init() {
	tailCmd.Flags().BoolVar(&announceJoins, "announce", true, "post a join notice to the room when someone asks to join")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "number of messages, 0 for all")
	configCmd.AddCommand(configInitCmd, configShowCmd)
}

func printMessage(msg models.Message) {
	fmt.Printf("[%s] %s: %s\n", utils.FormatPrettyTime(msg.Timestamp), msg.Author, msg.Text)
}
