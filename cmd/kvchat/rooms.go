package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kvchat/internal/client"
	"kvchat/internal/models"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List rooms",
	Long:  "List every room in the store with your membership state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *client.Session) error {
			rooms, err := s.Rooms(ctx)
			if err != nil {
				return err
			}
			if len(rooms) == 0 {
				fmt.Println("No rooms")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ROOM\tSTATE")
			for _, r := range rooms {
				state := "-"
				switch {
				case r.Joined:
					state = "member"
				case r.Pending:
					state = "pending"
				}
				fmt.Fprintf(w, "%s\t%s\n", r.Name, state)
			}
			return w.Flush()
		})
	},
}

var createCmd = &cobra.Command{
	Use:   "create <room>",
	Short: "Create a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *client.Session) error {
			if err := s.CreateRoom(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Created room %s\n", args[0])
			return nil
		})
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <room>",
	Short: "Remove a room from the room list",
	Long: `Remove a room from the room list and drop its local history.
Member and message entries stay in the store.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *client.Session) error {
			if err := s.RemoveRoom(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed room %s\n", args[0])
			return nil
		})
	},
}

var membersCmd = &cobra.Command{
	Use:   "members <room>",
	Short: "List the members of a room in join order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *client.Session) error {
			members, err := s.Chat.ListMembers(ctx, args[0])
			if err != nil {
				return err
			}
			for _, m := range members {
				fmt.Println(m)
			}
			return nil
		})
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <room>",
	Short: "Show room details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *client.Session) error {
			info, err := s.Chat.RoomInfo(ctx, args[0])
			if err != nil {
				return err
			}
			state, err := s.Chat.JoinState(ctx, s.Username, info.Name)
			if err != nil {
				return err
			}
			fmt.Printf("Room:     %s\n", info.Name)
			fmt.Printf("Members:  %s\n", strings.Join(info.Members, ", "))
			fmt.Printf("Messages: %d\n", info.MessageCount)
			fmt.Printf("You:      %s\n", state)
			return nil
		})
	},
}

var joinCmd = &cobra.Command{
	Use:   "join <room>",
	Short: "Join a room and wait for approval",
	Long: `Ask to join a room and wait until a member approves the request or
join_timeout expires. Running it again resumes a pending request.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *client.Session) error {
			room := args[0]
			if !s.Keys.HasRoomKey(room) {
				fmt.Printf("Waiting for a member of %s to type \"!%s\"...\n", room, s.Username)
			}
			result, err := s.Enter(ctx, room)
			if err != nil {
				return err
			}
			switch result {
			case models.Granted:
				fmt.Printf("Joined %s\n", room)
			case models.TimedOut:
				fmt.Printf("No approval yet; run join again to keep waiting\n")
			case models.Cancelled:
				fmt.Printf("Stopped waiting; the request stays pending\n")
			}
			return nil
		})
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <room> <user>",
	Short: "Approve a pending member",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *client.Session) error {
			if err := s.Approve(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Approved %s in %s\n", args[1], args[0])
			return nil
		})
	},
}
