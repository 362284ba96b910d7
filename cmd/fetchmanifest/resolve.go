package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/fetch-manifest/internal/config"
	"github.com/JakeFAU/fetch-manifest/internal/logging"
	"github.com/JakeFAU/fetch-manifest/internal/manifest"
	"github.com/JakeFAU/fetch-manifest/internal/resolver"
	"github.com/JakeFAU/fetch-manifest/internal/server"
)

type resolveOptions struct {
	docURL  string
	strict  bool
	compact bool
	verbose bool
}

func newResolveCmd(cfgFile *string) *cobra.Command {
	var opts resolveOptions
	cmd := &cobra.Command{
		Use:   "resolve <url | file | ->",
		Short: "Resolve one manifest and print it as JSON",
		Long: `Resolve an http(s) URL, or classify and resolve the contents of a local
file ("-" reads stdin), printing the normalized manifest as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := zap.NewNop()
			if opts.verbose {
				if logger, err = logging.New(cfg.Logging.Development, "debug"); err != nil {
					return fmt.Errorf("logger init failed: %w", err)
				}
				defer logger.Sync() //nolint:errcheck // best-effort flush
			}
			r, closer, err := server.NewResolver(&cfg, logger)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer()
			}
			return runResolve(cmd.Context(), r, args[0], cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.docURL, "doc-url", "", "URL of the document that referenced the manifest")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "fail when the content is neither a manifest nor an HTML document")
	cmd.Flags().BoolVar(&opts.compact, "compact", false, "print compact JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log resolution steps to stderr")
	return cmd
}

func runResolve(
	ctx context.Context,
	r *resolver.Resolver,
	target string,
	stdin io.Reader,
	out io.Writer,
	opts resolveOptions,
) error {
	var (
		m   *manifest.Manifest
		err error
	)
	switch {
	case resolver.IsRemote(target):
		m, err = r.Resolve(ctx, target, opts.docURL)
	case target == "-":
		body, readErr := io.ReadAll(stdin)
		if readErr != nil {
			return fmt.Errorf("read stdin: %w", readErr)
		}
		m, err = r.ResolveContent(ctx, body, opts.docURL)
	default:
		body, readErr := os.ReadFile(target)
		if readErr != nil {
			if errors.Is(readErr, os.ErrNotExist) {
				return fmt.Errorf("%s is neither an http(s) URL nor a readable file: %w", target, readErr)
			}
			return fmt.Errorf("read %s: %w", target, readErr)
		}
		m, err = r.ResolveContent(ctx, body, opts.docURL)
	}
	if err != nil {
		return fmt.Errorf("resolve %s: %w", target, err)
	}
	if opts.strict && m.Unparsed() {
		return fmt.Errorf("resolve %s: %w", target, manifest.ErrUnexpectedContentType)
	}

	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	if !opts.compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return nil
}
