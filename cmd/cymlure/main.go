// Package main implements the cymlure command line tool: one-shot generation
// runs without the server or its database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"cymbytes.com/cymlure/internal/generator/llm"
)

// Version is set at build time.
var Version = "dev"

type rootOptions struct {
	logLevel string
	timeout  time.Duration
	provider string
	model    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "cymlure",
		Short:        "Generate security-awareness simulation bundles",
		Version:      Version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "Overall deadline for the command")
	root.PersistentFlags().StringVar(&opts.provider, "provider", "", "LLM provider (stub, openai, gemini)")
	root.PersistentFlags().StringVar(&opts.model, "model", "", "Model override for the provider")

	root.AddCommand(newGenerateCmd(opts), newInboxCmd(opts))
	return root
}

// logger writes to stderr so stdout stays machine readable.
func (o *rootOptions) logger(cmd *cobra.Command) zerolog.Logger {
	level, err := zerolog.ParseLevel(o.logLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()
}

// providers builds the provider set from the environment. The stub is
// always available and is the default unless LLM_PROVIDER says otherwise.
func (o *rootOptions) providers(ctx context.Context) (*llm.Set, error) {
	cfg := llm.DefaultProvidersConfig()
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.Default = v
	}
	cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAI.BaseURL = os.Getenv("OPENAI_BASE_URL")
	cfg.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	return llm.BuildSet(ctx, cfg)
}

// readInput reads a file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
