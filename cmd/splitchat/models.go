package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/splitchat/pkg/conversation"
)

// defaultModels is the built-in model catalog installed by 'models seed'.
var defaultModels = []conversation.Model{
	{
		ID:      "builtin-deepseek-chat",
		Name:    "DeepSeek Chat",
		ModelID: "deepseek-chat",
		Type:    conversation.ProviderTypeDeepseek,
	},
	{
		ID:           "builtin-deepseek-reasoner",
		Name:         "DeepSeek Reasoner",
		ModelID:      "deepseek-reasoner",
		Type:         conversation.ProviderTypeDeepseek,
		Capabilities: conversation.Capabilities{Reasoning: true},
	},
	{
		ID:           "builtin-gemini-flash",
		Name:         "Gemini 2.5 Flash",
		ModelID:      "gemini-2.5-flash",
		Type:         conversation.ProviderTypeGoogle,
		Capabilities: conversation.Capabilities{Vision: true, Reasoning: true},
	},
	{
		ID:           "builtin-gemini-pro",
		Name:         "Gemini 2.5 Pro",
		ModelID:      "gemini-2.5-pro",
		Type:         conversation.ProviderTypeGoogle,
		Capabilities: conversation.Capabilities{Vision: true, Reasoning: true},
	},
}

func newModelsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage the model catalog",
	}
	cmd.AddCommand(newModelsListCommand())
	cmd.AddCommand(newModelsSeedCommand())
	return cmd
}

func newModelsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List selectable models",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			models, err := a.service.ListModels(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tNAME\tPROVIDER\tREASONING\tVISION")
			for _, m := range models {
				fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%v\n",
					m.ModelID, m.Name, m.Type, m.Capabilities.Reasoning, m.Capabilities.Vision)
			}
			return w.Flush()
		},
	}
}

func newModelsSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Install or refresh the built-in model catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.service.SeedModels(ctx, defaultModels); err != nil {
				return err
			}
			fmt.Printf("seeded %d models\n", len(defaultModels))
			return nil
		},
	}
}
