package main

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"sync"

	"github.com/go-go-golems/parley/internal/app"
	"github.com/go-go-golems/parley/pkg/channel"
	"github.com/go-go-golems/parley/pkg/channel/console"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/spf13/cobra"
)

func newChatCommand(c *cli) *cobra.Command {
	var (
		conversationID string
		name           string
		showTools      bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				name = "you"
				if u, err := user.Current(); err == nil && u.Username != "" {
					name = u.Username
				}
			}
			out := cmd.OutOrStdout()
			con := console.New(os.Stdin, out, conversationID, channel.User{ID: name, Name: name})

			var mu sync.Mutex
			agg := events.NewToolEventAggregator()
			sink := events.SinkFunc(func(ev events.Event) error {
				mu.Lock()
				defer mu.Unlock()
				agg.Handle(ev)
				return nil
			})

			a, err := app.New(c.cfg, con, app.WithEventSinks(sink))
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			handler := channel.HandlerFunc(func(ctx context.Context, msg *channel.Message) error {
				mu.Lock()
				agg.Reset()
				mu.Unlock()
				err := a.Driver.HandleMessage(ctx, msg)
				if showTools {
					mu.Lock()
					for _, line := range agg.Lines() {
						fmt.Fprintf(out, "  %s\n", line)
					}
					mu.Unlock()
				}
				return err
			})

			fmt.Fprintf(out, "Chatting as %s in conversation %q. Type /start to reset, /quit to leave.\n", name, conversationID)
			ctx, stop := signalContext()
			defer stop()
			return ignoreCanceled(a.Run(ctx, func(ctx context.Context) error {
				return con.Run(ctx, handler)
			}))
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "console", "conversation id")
	cmd.Flags().StringVar(&name, "name", "", "your name as shown to the model")
	cmd.Flags().BoolVar(&showTools, "show-tools", false, "print tool activity after each answer")
	return cmd
}
