package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/splitchat/pkg/chat"
	"github.com/go-go-golems/splitchat/pkg/conversation"
	"github.com/go-go-golems/splitchat/pkg/events"
)

func newChatCommand() *cobra.Command {
	var conversationID string
	var modelID string

	cmd := &cobra.Command{
		Use:   "chat [message...]",
		Short: "Send a message and stream the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if modelID == "" {
				models, err := a.service.ListModels(ctx)
				if err != nil {
					return err
				}
				if len(models) == 0 {
					return fmt.Errorf("no models seeded, run 'splitchat models seed' first")
				}
				modelID = models[0].ModelID
			}

			done := make(chan struct{})
			a.events.AddTurnHandler("cli-printer", func(_ context.Context, e events.Event) error {
				switch e.Type {
				case events.EventTypePartial:
					fmt.Print(e.Delta)
				case events.EventTypeFinal:
					fmt.Println()
					close(done)
				case events.EventTypeError:
					fmt.Fprintln(os.Stderr, e.ErrorMessage)
					close(done)
				}
				return nil
			})
			a.runEvents(ctx)

			res, err := a.service.SendMessage(ctx, chat.SendMessageRequest{
				ConversationID: conversationID,
				Content:        strings.Join(args, " "),
				ModelID:        modelID,
			})
			if err != nil {
				return err
			}

			select {
			case <-done:
			case <-time.After(2 * time.Second):
			}

			if res.NewConversation {
				waitForTitle(ctx, a, res.ConversationID)
				fmt.Fprintf(os.Stderr, "conversation: %s\n", res.ConversationID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "conversation to continue, empty starts a new one")
	cmd.Flags().StringVarP(&modelID, "model", "m", "", "model id, defaults to the first seeded model")
	return cmd
}

// waitForTitle gives the deferred title job a chance to finish so the very
// first invocation already prints a named conversation.
func waitForTitle(ctx context.Context, a *app, conversationID string) {
	deadline := time.After(a.cfg.TitleDelay + 5*time.Second)
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case <-tick.C:
			conv, err := a.store.GetConversation(ctx, conversationID)
			if err != nil {
				return
			}
			if conv.Title != conversation.PlaceholderTitle {
				fmt.Fprintf(os.Stderr, "title: %s\n", conv.Title)
				return
			}
		}
	}
}
