package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"cymbytes.com/cymlure/internal/generator/fanout"
	"cymbytes.com/cymlure/internal/generator/locale"
	"cymbytes.com/cymlure/internal/generator/policy"
	"cymbytes.com/cymlure/internal/inbox"
	"cymbytes.com/cymlure/pkg/contract"
)

type inboxOptions struct {
	bundlePath   string
	insightsPath string
	emlDir       string
	recipient    string
	seed         int64
}

func newInboxCmd(opts *rootOptions) *cobra.Command {
	iopts := &inboxOptions{}

	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Generate a simulated inbox for a bundle",
		Long: `Reads a finished bundle (JSON, as printed by "cymlure generate"), generates
one inbox message per variant and prints the ordered inbox as JSON. With
--eml-dir each message is also written as an RFC 5322 .eml file.`,
		Example: `  cymlure generate -r req.json > bundle.json
  cymlure inbox --bundle bundle.json --eml-dir ./out`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInbox(cmd, opts, iopts)
		},
	}

	cmd.Flags().StringVarP(&iopts.bundlePath, "bundle", "b", "", "Bundle file (\"-\" for stdin)")
	cmd.Flags().StringVar(&iopts.insightsPath, "insights", "", "Optional inbox insights file (preferred domains, greetings)")
	cmd.Flags().StringVar(&iopts.emlDir, "eml-dir", "", "Write rendered .eml messages to this directory")
	cmd.Flags().StringVar(&iopts.recipient, "recipient", "trainee@lab.local", "To address of rendered messages")
	cmd.Flags().Int64Var(&iopts.seed, "seed", 0, "Timestamp selection seed (0 picks one)")
	_ = cmd.MarkFlagRequired("bundle")
	return cmd
}

func runInbox(cmd *cobra.Command, opts *rootOptions, iopts *inboxOptions) error {
	data, err := readInput(cmd, iopts.bundlePath)
	if err != nil {
		return err
	}
	var bundle contract.FinalBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return fmt.Errorf("invalid bundle JSON: %w", err)
	}

	var insights contract.InboxInsights
	if iopts.insightsPath != "" {
		raw, err := os.ReadFile(iopts.insightsPath)
		if err != nil {
			return fmt.Errorf("failed to read insights: %w", err)
		}
		if err := json.Unmarshal(raw, &insights); err != nil {
			return fmt.Errorf("invalid insights JSON: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	providers, err := opts.providers(ctx)
	if err != nil {
		return err
	}
	client, _, err := providers.Resolve(opts.provider, opts.model)
	if err != nil {
		return err
	}

	seed := iopts.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	pc := policy.Resolve(&contract.Request{
		Topic:         bundle.Blueprint.Scenario,
		Difficulty:    bundle.Difficulty,
		Language:      bundle.Language,
		Channel:       bundle.Channel,
		PolicyContext: bundle.PolicyContext,
	}, locale.NewCache(locale.DefaultRules))

	gen := fanout.New(client, rand.New(rand.NewSource(seed)), nil, opts.logger(cmd))
	items, err := gen.Generate(ctx, fanout.Batch{
		Blueprint: &bundle.Blueprint,
		Policy:    pc,
		Insights:  insights,
	})
	if err != nil {
		return fmt.Errorf("inbox generation failed: %w", err)
	}

	if iopts.emlDir != "" {
		if err := writeEML(iopts.emlDir, iopts.recipient, items); err != nil {
			return err
		}
	}

	return writeJSON(cmd.OutOrStdout(), items)
}

func writeEML(dir, recipient string, items []contract.InboxItem) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	now := time.Now()
	for _, item := range items {
		msg, err := inbox.Render(item, recipient, now)
		if err != nil {
			return fmt.Errorf("failed to render item %d: %w", item.Position, err)
		}
		name := filepath.Join(dir, fmt.Sprintf("%02d-%s.eml", item.Position, item.Variant))
		if err := os.WriteFile(name, msg.Raw, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}
