// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/triage"
	"github.com/poiesic/triage/ai"
	"github.com/poiesic/triage/ai/openai"
	"github.com/poiesic/triage/policy"
	"github.com/urfave/cli/v2"
)

// newProvider builds the AI provider for commands that need one.
var newProvider = func(cfg *ai.Config) (ai.AIProvider, error) {
	return openai.NewProvider(cfg)
}

func main() {
	// Flags read their environment variables while parsing, so the env
	// file has to be loaded before the app runs.
	envFile := os.Getenv("TRIAGE_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := loadEnv(envFile); err != nil {
		log.Fatal(err)
	}
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "triage",
		Usage: "Classify incoming mail, draft replies, and send the ones it is sure about",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory",
				EnvVars: []string{"TRIAGE_DB"},
				Value:   "triage.db",
			},
			&cli.StringFlag{
				Name:    "spool",
				Aliases: []string{"s"},
				Usage:   "Mail spool directory",
				EnvVars: []string{"TRIAGE_SPOOL"},
				Value:   "spool",
			},
			&cli.StringFlag{
				Name:    "policy",
				Aliases: []string{"p"},
				Usage:   "Path to a YAML policy file (defaults apply when empty)",
				EnvVars: []string{"TRIAGE_POLICY"},
			},
			&cli.StringFlag{
				Name:    "host",
				Usage:   "OpenAI-compatible service host URL for embeddings and chat",
				EnvVars: []string{"TRIAGE_AI_HOST"},
				Value:   "http://localhost:11434/v1",
			},
			&cli.StringFlag{
				Name:    "embedding-host",
				Usage:   "Embedding service host URL (defaults to --host)",
				EnvVars: []string{"TRIAGE_EMBEDDING_HOST"},
			},
			&cli.StringFlag{
				Name:    "embedding-model",
				Usage:   "Embedding model name",
				EnvVars: []string{"TRIAGE_EMBEDDING_MODEL"},
				Value:   "embeddinggemma",
			},
			&cli.StringFlag{
				Name:    "chat-model",
				Usage:   "Model used for analysis and replies",
				EnvVars: []string{"TRIAGE_CHAT_MODEL"},
				Value:   "qwen2.5:3b",
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "API key for hosted services",
				EnvVars: []string{"TRIAGE_API_KEY", "OPENAI_API_KEY"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			runCommand(),
			kbCommand(),
			recordsCommand(),
			{
				Name:   "learn",
				Usage:  "Add auto-sent replies to the knowledge base",
				Action: learnAction,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "since",
						Usage: "Only learn from replies sent within this window",
						Value: 24 * time.Hour,
					},
				},
			},
			{
				Name:   "cleanup",
				Usage:  "Delete archived records",
				Action: cleanupAction,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "older-than",
						Usage: "Delete archived records not updated within this window",
						Value: 30 * 24 * time.Hour,
					},
				},
			},
		},
	}
}

// loadEnv reads KEY=value pairs from path into the environment. A missing
// file is not an error; variables already set win.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

func aiConfig(c *cli.Context) *ai.Config {
	embeddingHost := c.String("embedding-host")
	if embeddingHost == "" {
		embeddingHost = c.String("host")
	}
	return ai.NewConfig(
		ai.WithChatHost(c.String("host")),
		ai.WithEmbeddingHost(embeddingHost),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithChatModel(c.String("chat-model")),
		ai.WithAPIKey(c.String("api-key")),
	)
}

func loadPolicy(c *cli.Context) (*policy.Policy, error) {
	path := c.String("policy")
	if path == "" {
		return policy.Default(), nil
	}
	pol, err := policy.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading policy %s: %w", path, err)
	}
	return pol, nil
}

// openTriage opens the database named by the global flags.
func openTriage(c *cli.Context) (*triage.Triage, error) {
	pol, err := loadPolicy(c)
	if err != nil {
		return nil, err
	}

	cfg := aiConfig(c)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI provider: %w", err)
	}

	t, err := triage.Open(c.String("db"), triage.WithProvider(provider), triage.WithPolicy(pol))
	if err != nil {
		provider.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return t, nil
}
