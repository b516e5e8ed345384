package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nulpointcorp/blog-ai-gateway/internal/config"
	"github.com/nulpointcorp/blog-ai-gateway/internal/gateway"
	"github.com/nulpointcorp/blog-ai-gateway/internal/providers"
)

// buildGateway resolves the configured vendor without cache or monitor:
// operator calls must always reach the vendor.
func buildGateway() (*gateway.Gateway, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return gateway.Build(cfg.AI, gateway.Options{
		Timeouts:     cfg.TimeoutPolicy(),
		Retry:        cfg.RetryPolicy(),
		Instrumented: []string{},
	})
}

// readInput returns the joined args, or stdin when there are none.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func printGeneration(cmd *cobra.Command, gen *gateway.Generation, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(gen)
	}
	fmt.Fprintln(out, gen.Text)
	fmt.Fprintf(cmd.ErrOrStderr(), "\n[%s/%s, %d tokens, %d attempt(s), %s]\n",
		gen.Provider, gen.Model, gen.TokensUsed, gen.Attempts, gen.Duration.Round(time.Millisecond))
	return nil
}

func describe(err error) error {
	return fmt.Errorf("%s (%s): %w", providers.FriendlyMessage(providers.KindOf(err)), providers.KindOf(err), err)
}

func newCompleteCmd() *cobra.Command {
	var (
		asJSON  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "complete [prompt]",
		Short: "Send a raw prompt to the configured vendor",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			if prompt == "" {
				return fmt.Errorf("prompt is required")
			}

			gw, err := buildGateway()
			if err != nil {
				return describe(err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			gen, err := gw.GenerateCompletion(ctx, prompt)
			if err != nil {
				return describe(err)
			}
			return printGeneration(cmd, gen, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full generation as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall deadline including retries")
	return cmd
}

func newSummarizeCmd() *cobra.Command {
	var (
		file     string
		template string
		seo      bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "summarize [content]",
		Short: "Summarize post content, or generate SEO metadata with --seo",
		RunE: func(cmd *cobra.Command, args []string) error {
			var content string
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				content = string(data)
			} else {
				var err error
				if content, err = readInput(cmd, args); err != nil {
					return err
				}
			}
			if strings.TrimSpace(content) == "" {
				return fmt.Errorf("content is required")
			}

			gw, err := buildGateway()
			if err != nil {
				return describe(err)
			}

			ctx := context.Background()
			var gen *gateway.Generation
			if seo {
				gen, err = gw.GenerateSEO(ctx, content, template)
			} else {
				gen, err = gw.GenerateSummary(ctx, content, template)
			}
			if err != nil {
				return describe(err)
			}
			return printGeneration(cmd, gen, asJSON)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read content from a file")
	cmd.Flags().StringVarP(&template, "template", "t", "", "prompt template; {content} is replaced by the content")
	cmd.Flags().BoolVar(&seo, "seo", false, "generate SEO metadata instead of a summary")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full generation as JSON")
	return cmd
}
