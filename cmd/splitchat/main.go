package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/splitchat/pkg/config"
)

var rootCmd = &cobra.Command{
	Use:   "splitchat",
	Short: "Chat with streaming LLM backends, with splittable conversations",
	Long: `splitchat is a conversation engine for streaming LLM backends.

Conversations can be split at any message into a new branch that shares the
older history, and split branches can later be promoted to standalone
conversations with the shared history condensed into a summary.`,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		setupLogging()
	},
}

func setupLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func main() {
	config.InitViper()

	rootCmd.PersistentFlags().String("log-level", "warn", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("store-path", config.DefaultStorePath, "sqlite database path")
	rootCmd.PersistentFlags().String("user", "local", "user subject conversations belong to")
	rootCmd.PersistentFlags().String("deepseek-api-key", "", "DeepSeek API key")
	rootCmd.PersistentFlags().String("deepseek-base-url", "", "DeepSeek API base URL")
	rootCmd.PersistentFlags().String("gemini-api-key", "", "Gemini API key")
	rootCmd.PersistentFlags().String("title-model", "", "model id used for titles and summaries")
	rootCmd.PersistentFlags().Int("max-context-messages", config.DefaultMaxContextMessages, "context window row cap, 0 for unbounded")
	rootCmd.PersistentFlags().Duration("title-delay", config.DefaultTitleDelay, "delay before title generation runs")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	rootCmd.AddCommand(newChatCommand())
	rootCmd.AddCommand(newConversationsCommand())
	rootCmd.AddCommand(newModelsCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
