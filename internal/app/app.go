// Package app builds the long-lived collaborators for one depopfeed run and
// exposes the fetch and cookie-refresh workflows the CLI drives.
package app

import (
	"context"
	"errors"
	"fmt"

	gcstorage "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/depop-feed/internal/acquire"
	"github.com/JakeFAU/depop-feed/internal/config"
	"github.com/JakeFAU/depop-feed/internal/cookie"
	"github.com/JakeFAU/depop-feed/internal/fetcher/headless"
	"github.com/JakeFAU/depop-feed/internal/fetcher/shopapi"
	"github.com/JakeFAU/depop-feed/internal/logging"
	"github.com/JakeFAU/depop-feed/internal/policy/retry"
	"github.com/JakeFAU/depop-feed/internal/progress"
	progresssinks "github.com/JakeFAU/depop-feed/internal/progress/sinks"
	feedstorage "github.com/JakeFAU/depop-feed/internal/storage"
	gcssnapshot "github.com/JakeFAU/depop-feed/internal/storage/gcs"
	localsnapshot "github.com/JakeFAU/depop-feed/internal/storage/local"
)

// ErrCookieNotRefreshed is returned when a refresh session saw no
// marketplace cookies.
var ErrCookieNotRefreshed = errors.New("no Depop cookies captured")

// App holds the collaborators for a single run.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	runID    uuid.UUID
	cookies  *cookie.Store
	snapshot feedstorage.SnapshotStore
	browser  acquire.Browser
	api      acquire.APIFetcher
	recorder *progress.Recorder
	gcs      *gcstorage.Client
	orch     *acquire.Orchestrator
}

// Option overrides a collaborator, mostly for tests.
type Option func(*overrides)

type overrides struct {
	fs       afero.Fs
	api      acquire.APIFetcher
	browser  acquire.Browser
	snapshot feedstorage.SnapshotStore
	registry *prometheus.Registry
}

// WithFs swaps the filesystem used for the cookie cache and local snapshot.
func WithFs(fs afero.Fs) Option { return func(o *overrides) { o.fs = fs } }

// WithAPIFetcher swaps the API tier.
func WithAPIFetcher(api acquire.APIFetcher) Option { return func(o *overrides) { o.api = api } }

// WithBrowser swaps the browser tier.
func WithBrowser(b acquire.Browser) Option { return func(o *overrides) { o.browser = b } }

// WithSnapshotStore swaps the snapshot backend.
func WithSnapshotStore(s feedstorage.SnapshotStore) Option {
	return func(o *overrides) { o.snapshot = s }
}

// WithRegistry sets the Prometheus registry run metrics are recorded in.
func WithRegistry(reg *prometheus.Registry) Option { return func(o *overrides) { o.registry = reg } }

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	ov := overrides{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(&ov)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	runID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	app := &App{
		cfg:    cfg,
		logger: logging.ForRun(logger, runID, cfg.Seller),
		runID:  runID,
	}

	app.cookies, err = cookie.New(ov.fs, cookie.Config{
		Value:     cfg.Cookie.Value,
		File:      cfg.Cookie.File,
		CachePath: cfg.Cookie.CachePath,
		Domain:    cfg.Cookie.Domain,
	})
	if err != nil {
		return nil, fmt.Errorf("cookie store init failed: %w", err)
	}

	app.snapshot = ov.snapshot
	if app.snapshot == nil {
		if app.snapshot, err = app.setupStorage(ctx, ov.fs); err != nil {
			return nil, err
		}
	}

	if app.recorder, err = app.setupProgress(ov.registry); err != nil {
		app.closeStorage()
		return nil, err
	}

	app.api = ov.api
	if app.api == nil {
		if app.api, err = app.setupAPI(); err != nil {
			app.closeStorage()
			return nil, err
		}
	}

	app.browser = ov.browser
	if app.browser == nil {
		if app.browser, err = app.setupBrowser(); err != nil {
			app.closeStorage()
			return nil, err
		}
	}

	app.orch, err = acquire.New(app.api, app.browser, app.cookies, app.snapshot,
		acquire.WithLogger(app.logger.Named("acquire")),
		acquire.WithEmitter(app.recorder),
		acquire.WithTimeout(cfg.RunBudget()),
	)
	if err != nil {
		app.closeStorage()
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}
	return app, nil
}

// RunID identifies this invocation in logs and metrics.
func (a *App) RunID() uuid.UUID { return a.runID }

func (a *App) setupStorage(ctx context.Context, fs afero.Fs) (feedstorage.SnapshotStore, error) {
	switch a.cfg.Storage.Provider {
	case config.StorageGCS:
		a.logger.Info("using GCS snapshot backend",
			zap.String("bucket", a.cfg.Storage.GCS.Bucket),
			zap.String("object", a.cfg.Storage.GCS.Object))
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcs = client
		store, err := gcssnapshot.New(client, gcssnapshot.Config{
			Bucket: a.cfg.Storage.GCS.Bucket,
			Object: a.cfg.Storage.GCS.Object,
		})
		if err != nil {
			a.closeStorage()
			return nil, fmt.Errorf("gcs snapshot store init failed: %w", err)
		}
		return store, nil
	default:
		a.logger.Debug("using local snapshot backend", zap.String("path", a.cfg.Storage.Local.Path))
		store, err := localsnapshot.New(fs, localsnapshot.Config{Path: a.cfg.Storage.Local.Path})
		if err != nil {
			return nil, fmt.Errorf("local snapshot store init failed: %w", err)
		}
		return store, nil
	}
}

func (a *App) setupProgress(reg *prometheus.Registry) (*progress.Recorder, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	promSink, err := progresssinks.NewPrometheusSink(reg, a.cfg.Metrics.TextfilePath)
	if err != nil {
		return nil, fmt.Errorf("metrics sink init failed: %w", err)
	}
	if a.cfg.Metrics.TextfilePath != "" {
		a.logger.Debug("metrics textfile export enabled", zap.String("path", a.cfg.Metrics.TextfilePath))
	}
	return progress.NewRecorder(a.runID, a.logger.Named("progress"),
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
		promSink,
	), nil
}

func (a *App) setupAPI() (acquire.APIFetcher, error) {
	policy := retry.NewExponential(retry.Config{
		MaxAttempts: a.cfg.HTTP.MaxAttempts,
		BaseDelay:   a.cfg.BackoffInitial(),
		MaxDelay:    a.cfg.BackoffMax(),
	})
	client, err := shopapi.New(shopapi.Config{
		BaseURL:      a.cfg.HTTP.BaseURL,
		SiteURL:      a.cfg.HTTP.SiteURL,
		UserAgent:    a.cfg.HTTP.UserAgent,
		Limit:        a.cfg.HTTP.Limit,
		Timeout:      a.cfg.RequestTimeout(),
		DisableProxy: a.cfg.HTTP.DisableProxy,
	}, policy, a.logger.Named("shopapi"), a.recorder)
	if err != nil {
		return nil, fmt.Errorf("api client init failed: %w", err)
	}
	return client, nil
}

func (a *App) setupBrowser() (acquire.Browser, error) {
	if !a.cfg.Browser.Enabled {
		a.logger.Info("browser tier disabled by configuration")
		return headless.NewNoop("disabled by configuration"), nil
	}
	userAgent := a.cfg.HTTP.UserAgent
	if userAgent == "" {
		userAgent = shopapi.DefaultUserAgent
	}
	b, err := headless.NewChromedp(headless.Config{
		SiteURL:           a.cfg.HTTP.SiteURL,
		UserAgent:         userAgent,
		NavigationTimeout: a.cfg.NavigationTimeout(),
		StoreSettle:       a.cfg.StoreSettle(),
		PageSettle:        a.cfg.PageSettle(),
		PagesPerSecond:    a.cfg.Browser.PagesPerSecond,
		LinkSelector:      a.cfg.Browser.LinkSelector,
		Headless:          a.cfg.Browser.Headless,
		ExecPath:          a.cfg.Browser.ExecPath,
	}, a.logger.Named("browser"))
	if err != nil {
		return nil, fmt.Errorf("browser init failed: %w", err)
	}
	return b, nil
}

// Fetch runs the acquisition cascade and persists a fresh batch. A kept
// snapshot is left untouched. It returns the outcome and, for a published
// batch, the written location.
func (a *App) Fetch(ctx context.Context) (acquire.Outcome, string, error) {
	if a.cfg.SellerDefaulted {
		a.logger.Info("No seller configured; using default", zap.String("seller", a.cfg.Seller))
	}
	header, src, err := a.cookies.Load()
	if err != nil {
		a.logger.Warn("Could not read Depop cookie; continuing without one", zap.Error(err))
		header, src = "", cookie.SourceNone
	}
	if src != cookie.SourceNone {
		a.logger.Info("Using Depop cookie from " + a.cookies.Describe(src))
	}

	outcome, err := a.orch.Run(ctx, a.cfg.Seller, header)
	if err != nil {
		return acquire.Outcome{}, "", fmt.Errorf("no products fetched and no cached feed available: %w", err)
	}
	if outcome.Action == acquire.ActionKeep {
		a.logger.Info("No fresh products fetched; keeping existing feed")
		return outcome, "", nil
	}

	location, err := a.snapshot.Save(ctx, outcome.Listings)
	if err != nil {
		return outcome, "", fmt.Errorf("save snapshot: %w", err)
	}
	a.logger.Info(fmt.Sprintf("Wrote %d products for %s to %s", len(outcome.Listings), a.cfg.Seller, location),
		zap.String("tier", string(outcome.Tier)))
	return outcome, location, nil
}

// RefreshCookie opens a browser session on the storefront and caches the
// cookies it observes.
func (a *App) RefreshCookie(ctx context.Context) error {
	cookies, err := a.browser.RefreshSession(ctx, a.cfg.Seller)
	if err != nil {
		return fmt.Errorf("refresh cookie: %w", err)
	}
	saved, err := a.cookies.Save(cookies)
	if err != nil {
		return fmt.Errorf("cache cookie: %w", err)
	}
	if !saved {
		return ErrCookieNotRefreshed
	}
	a.logger.Info("Saved refreshed Depop cookie", zap.String("path", a.cfg.Cookie.CachePath))
	return nil
}

// Close flushes metrics and releases clients.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.recorder.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("progress close: %w", err))
	}
	if err := a.closeStorage(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeStorage() error {
	if a.gcs == nil {
		return nil
	}
	err := a.gcs.Close()
	a.gcs = nil
	if err != nil {
		a.logger.Warn("gcs client close failed", zap.Error(err))
		return fmt.Errorf("gcs close: %w", err)
	}
	return nil
}
