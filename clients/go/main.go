// chatrooms CLI - command line client for the chatrooms server
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/eldtechnologies/chatrooms/clients/go/chat"
)

var client *chat.Client

var rootCmd = &cobra.Command{
	Use:   "chatrooms",
	Short: "Command line client for the chatrooms server",
	Long: `Command line client for the chatrooms server.

Environment:
  CHATROOMS_URL      Server URL (default: http://localhost:8080)
  CHATROOMS_CONFIG   Config directory (default: ~/.chatrooms)`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		client = chat.NewClient(os.Getenv("CHATROOMS_URL"))
	},
}

func init() {
	var (
		password     string
		joinPassword string
		private      bool
		topic        string
		limit        int
	)

	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			room, err := client.CreateRoom(cmd.Context(), chat.CreateRoomRequest{
				Name: args[0], IsPublic: !private, Password: password, Topic: topic,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Created %s (%s)\n", room.Name, room.ID)
			return nil
		},
	}
	create.Flags().StringVar(&password, "password", "", "room password")
	create.Flags().BoolVar(&private, "private", false, "invite-only room")
	create.Flags().StringVar(&topic, "topic", "", "room topic")

	join := &cobra.Command{
		Use:   "join <room>",
		Short: "Join a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			room, err := client.JoinRoom(cmd.Context(), args[0], joinPassword)
			if err != nil {
				return err
			}
			fmt.Printf("Joined %s (%d members)\n", room.Name, len(room.Members))
			return nil
		},
	}
	join.Flags().StringVar(&joinPassword, "password", "", "room password")

	read := &cobra.Command{
		Use:   "read <room>",
		Short: "Read recent messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.GetMessages(cmd.Context(), args[0], limit, 0)
			if err != nil {
				return err
			}
			// Oldest first on screen.
			for i := len(resp.Messages) - 1; i >= 0; i-- {
				printMessage(resp.Messages[i])
			}
			return nil
		},
	}
	read.Flags().IntVar(&limit, "limit", 20, "number of messages")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "login <nickname>",
			Short: "Log in, registering the nickname on first use",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := client.Login(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Logged in as: %s\n", resp.Username)
				return nil
			},
		},
		&cobra.Command{
			Use:   "logout",
			Short: "End the saved session",
			RunE: func(cmd *cobra.Command, args []string) error {
				return client.Logout(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "rooms",
			Short: "List rooms",
			RunE: func(cmd *cobra.Command, args []string) error {
				rooms, err := client.ListRooms(cmd.Context())
				if err != nil {
					return err
				}
				for _, r := range rooms {
					lock := ""
					if r.HasPassword {
						lock = " [password]"
					}
					fmt.Printf("  %s  %s (%d members)%s\n", r.ID, r.Name, r.MemberCount, lock)
				}
				return nil
			},
		},
		create,
		join,
		&cobra.Command{
			Use:   "leave <room>",
			Short: "Leave a room",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return client.LeaveRoom(cmd.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "invite <room> <user>",
			Short: "Invite a user into a room",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return client.Invite(cmd.Context(), args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "kick <room> <user>",
			Short: "Kick and ban a user",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return client.Kick(cmd.Context(), args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "post <room> <message>",
			Short: "Post a message to a room",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := client.PostMessage(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Printf("Posted: %s\n", resp.ID)
				return nil
			},
		},
		read,
		&cobra.Command{
			Use:   "watch <room>",
			Short: "Stream room events until interrupted",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
				defer stop()
				return client.Watch(ctx, args[0], func(evt chat.Event) {
					if evt.Type == "message" {
						var msg chat.Message
						if json.Unmarshal(evt.Data, &msg) == nil {
							printMessage(msg)
							return
						}
					}
					fmt.Printf("* %s %s\n", evt.Username, evt.Type)
				})
			},
		},
		&cobra.Command{
			Use:   "who <user>",
			Short: "Show a user's profile",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := client.GetProfile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printJSON(resp)
				return nil
			},
		},
		&cobra.Command{
			Use:   "health",
			Short: "Check server health",
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := client.Health(cmd.Context())
				if err != nil {
					return err
				}
				printJSON(resp)
				return nil
			},
		},
	)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func printMessage(msg chat.Message) {
	ts := time.UnixMilli(msg.Timestamp).Format("2006-01-02 15:04:05")
	fmt.Printf("[%s] %s: %s\n", ts, msg.From, msg.Body)
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
