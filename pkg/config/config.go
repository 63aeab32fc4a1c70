package config

// Package config assembles the explicit configuration struct the engine is
// constructed with. Values come from flags, a config file and SPLITCHAT_*
// environment variables through viper; nothing reads the environment after
// process start.

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/go-go-golems/splitchat/pkg/providers"
)

// Defaults.
const (
	DefaultMaxContextMessages = 40
	DefaultTitleDelay         = 2 * time.Second
	DefaultStorePath          = "splitchat.db"
)

// Config is built once at startup and passed by reference.
type Config struct {
	// StorePath is the sqlite database location.
	StorePath string

	// UserSubject identifies the local CLI user towards the engine.
	UserSubject string

	// Providers carries the per-backend credentials and endpoints.
	Providers providers.Config

	// TitleModelID is the model used for title generation and summarization
	// side work. Empty means "use the turn's model".
	TitleModelID string

	// MaxContextMessages is the soft row cap on the assembled context
	// window. 0 means unbounded.
	MaxContextMessages int

	// TitleDelay is how long the title job waits before running, so it does
	// not race the first turn's burst of writes.
	TitleDelay time.Duration
}

// InitViper wires env var resolution. Call once from the CLI root.
func InitViper() {
	viper.SetEnvPrefix("splitchat")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("store-path", DefaultStorePath)
	viper.SetDefault("user", "local")
	viper.SetDefault("max-context-messages", DefaultMaxContextMessages)
	viper.SetDefault("title-delay", DefaultTitleDelay)
	viper.SetDefault("deepseek-base-url", providers.DefaultDeepseekBaseURL)
}

// FromViper materializes the configuration struct.
func FromViper() *Config {
	return &Config{
		StorePath:   viper.GetString("store-path"),
		UserSubject: viper.GetString("user"),
		Providers: providers.Config{
			DeepseekAPIKey:  viper.GetString("deepseek-api-key"),
			DeepseekBaseURL: viper.GetString("deepseek-base-url"),
			GeminiAPIKey:    viper.GetString("gemini-api-key"),
		},
		TitleModelID:       viper.GetString("title-model"),
		MaxContextMessages: viper.GetInt("max-context-messages"),
		TitleDelay:         viper.GetDuration("title-delay"),
	}
}
