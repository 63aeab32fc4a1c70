package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newConversationsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Manage conversations and their split tree",
	}
	cmd.AddCommand(newConversationsListCommand())
	cmd.AddCommand(newConversationsShowCommand())
	cmd.AddCommand(newConversationsSplitCommand())
	cmd.AddCommand(newConversationsPromoteCommand())
	cmd.AddCommand(newConversationsDeleteCommand())
	return cmd
}

func newConversationsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recently updated first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			convs, err := a.service.ListConversations(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tSPLIT\tUPDATED")
			for _, c := range convs {
				split := ""
				if c.IsSplit() {
					split = *c.ParentConversationID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.Title, split, c.UpdatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func newConversationsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Print a conversation's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			msgs, err := a.service.ListMessages(ctx, args[0])
			if err != nil {
				return err
			}
			for _, m := range msgs {
				fmt.Printf("[%s] %s\n", m.Role, m.ID)
				if m.Content != "" {
					fmt.Println(m.Content)
				}
				if m.ErrorMessage != "" {
					fmt.Printf("error: %s\n", m.ErrorMessage)
				}
				fmt.Println()
			}
			return nil
		},
	}
}

func newConversationsSplitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "split <conversation-id> <message-id>",
		Short: "Branch a new conversation off an existing one at a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			child, err := a.service.SplitConversation(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println(child.ID)
			return nil
		},
	}
}

func newConversationsPromoteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "promote <conversation-id>",
		Short: "Turn a split branch into a standalone conversation",
		Long: `Promote summarizes the history shared with the parent, stores the summary
on the branch and severs the parent link. The branch keeps its own messages;
the summary stands in for everything older.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.service.PromoteConversation(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println("promoted")
			return nil
		},
	}
}

func newConversationsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <conversation-id>",
		Short: "Delete a conversation and, for roots, its split children",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.service.DeleteConversation(ctx, args[0]); err != nil {
				return err
			}

			// The conversation rows are gone; give the deferred message purge
			// a moment to drain before the process exits.
			time.Sleep(300 * time.Millisecond)
			fmt.Println("deleted")
			return nil
		},
	}
}
