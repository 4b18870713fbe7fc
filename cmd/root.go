// Package cmd defines the depopfeed CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/depop-feed/internal/acquire"
	"github.com/JakeFAU/depop-feed/internal/app"
	"github.com/JakeFAU/depop-feed/internal/config"
	"github.com/JakeFAU/depop-feed/internal/logging"
)

// appKeyType is the key for storing the runner in the command context.
type appKeyType string

const appKey appKeyType = "app"

// Runner is what subcommands drive. *app.App satisfies it.
type Runner interface {
	Fetch(ctx context.Context) (acquire.Outcome, string, error)
	RefreshCookie(ctx context.Context) error
	Close(ctx context.Context) error
}

// newApp is the application factory, replaceable in tests.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runner, error) {
	return app.Build(ctx, cfg, logger)
}

// newLogger is the logger factory, replaceable in tests.
var newLogger = logging.New

type rootOptions struct {
	configPath string
	envFile    string
	logger     *zap.Logger
	runner     Runner
}

func newRootCmd() (*cobra.Command, *rootOptions) {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "depopfeed",
		Short: "Fetch a Depop seller's current listings into a JSON feed.",
		Long: `depopfeed pulls one seller's available listings from Depop and writes them
as a normalized JSON feed. It tries the shop API first, refreshes the session
cookie with a real browser when the API blocks it, scrapes the storefront as a
last live resort, and keeps the previous feed when nothing new comes back.`,
		SilenceUsage: true,

		// Teardown lives in run because cobra skips post-run hooks on error.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (yaml, json or toml)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before configuration, if present")
	flags.String("seller", "", "Depop seller username (default "+config.DefaultSeller+")")
	flags.String("cookie", "", "Depop Cookie header value")
	flags.String("cookie-file", "", "file holding the Depop Cookie header value")
	flags.Bool("disable-proxy", false, "bypass the system proxy for API requests")
	flags.Bool("headless", false, "request a headless browser (ignored; Depop blocks it)")

	cmd.AddCommand(newFetchCmd(), newRefreshCookieCmd())
	return cmd, opts
}

func (o *rootOptions) setup(cmd *cobra.Command) error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file: %w", err)
		}
	}
	cfg, err := config.Load(o.configPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	o.logger, err = newLogger(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	runner, err := newApp(cmd.Context(), cfg, o.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	o.runner = runner
	cmd.SetContext(context.WithValue(cmd.Context(), appKey, runner))
	return nil
}

func (o *rootOptions) teardown(ctx context.Context) error {
	var err error
	if o.runner != nil {
		if err = o.runner.Close(context.WithoutCancel(ctx)); err != nil && o.logger != nil {
			o.logger.Warn("Failed to close application services", zap.Error(err))
		}
	}
	if o.logger != nil {
		_ = o.logger.Sync() //nolint:errcheck // stderr sync fails on some terminals
	}
	return err
}

func resolveRunner(ctx context.Context) (Runner, error) {
	runner, ok := ctx.Value(appKey).(Runner)
	if !ok || runner == nil {
		return nil, errors.New("application services not initialized")
	}
	return runner, nil
}

// run executes the CLI with args and always releases what setup built.
func run(ctx context.Context, args []string, out io.Writer) error {
	cmd, opts := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	err := cmd.ExecuteContext(ctx)
	return errors.Join(err, opts.teardown(ctx))
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
