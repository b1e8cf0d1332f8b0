package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"cymbytes.com/cymlure/internal/generator/locale"
	"cymbytes.com/cymlure/internal/generator/pipeline"
	"cymbytes.com/cymlure/pkg/contract"
)

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	var requestPath string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run one generation request and print the bundle",
		Long: `Reads a generation request (JSON), runs the full stage chain and prints
the finished bundle as JSON. Nothing is stored.`,
		Example: `  cymlure generate --request req.json
  cat req.json | cymlure generate --request - --provider openai`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts, requestPath)
		},
	}

	cmd.Flags().StringVarP(&requestPath, "request", "r", "", "Request file (\"-\" for stdin)")
	_ = cmd.MarkFlagRequired("request")
	return cmd
}

func runGenerate(cmd *cobra.Command, opts *rootOptions, requestPath string) error {
	data, err := readInput(cmd, requestPath)
	if err != nil {
		return err
	}

	var req contract.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("invalid request JSON: %w", err)
	}
	if opts.provider != "" {
		req.Provider = opts.provider
	}
	if opts.model != "" {
		req.Model = opts.model
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	providers, err := opts.providers(ctx)
	if err != nil {
		return err
	}

	logger := opts.logger(cmd)
	pipe := pipeline.New(pipeline.Options{
		Providers: providers,
		Locales:   locale.NewCache(locale.DefaultRules),
		Observer: pipeline.ObserverFunc(func(_ context.Context, ev pipeline.Event) error {
			logger.Info().
				Str("from", string(ev.From)).
				Str("to", string(ev.To)).
				Int("attempts", ev.Attempts).
				Msg("Stage transition")
			return nil
		}),
	}, logger)

	bundle, err := pipe.Execute(ctx, "", &req)
	if err != nil {
		var ve *contract.ValidationError
		if errors.As(err, &ve) {
			for _, v := range ve.Violations {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", v.Field, v.Message)
			}
		}
		code, stage := pipeline.Classify(err)
		if stage != "" {
			return fmt.Errorf("%s at stage %s: %w", code, stage, err)
		}
		return fmt.Errorf("%s: %w", code, err)
	}

	return writeJSON(cmd.OutOrStdout(), bundle)
}
