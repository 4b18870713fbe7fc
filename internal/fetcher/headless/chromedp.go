// Package headless drives a real Chrome through chromedp for the listing
// scrape and session cookie refresh. The marketplace blocks headless
// sessions, so the window is always visible.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/depop-feed/internal/acquire"
	"github.com/JakeFAU/depop-feed/internal/cookie"
	"github.com/JakeFAU/depop-feed/internal/listing"
	"github.com/JakeFAU/depop-feed/internal/policy/ratelimit"
)

const acceptLanguage = "en-US,en;q=0.9"

// Config controls the browser tier.
type Config struct {
	SiteURL           string
	UserAgent         string
	NavigationTimeout time.Duration
	StoreSettle       time.Duration
	PageSettle        time.Duration
	// PagesPerSecond paces product page visits; zero disables pacing.
	PagesPerSecond float64
	LinkSelector   string
	// Headless records what the caller asked for. It is logged and ignored.
	Headless bool
	ExecPath string
}

// Browser implements acquire.Browser with chromedp.
type Browser struct {
	cfg       Config
	logger    *zap.Logger
	limiter   *ratelimit.Limiter
	allocOpts []chromedp.ExecAllocatorOption
}

var _ acquire.Browser = (*Browser)(nil)

// NewChromedp builds a Browser. Chrome is launched per call, so construction
// succeeds even when no browser is installed.
func NewChromedp(cfg Config, logger *zap.Logger) (*Browser, error) {
	if cfg.NavigationTimeout < 0 || cfg.StoreSettle < 0 || cfg.PageSettle < 0 {
		return nil, fmt.Errorf("browser timeouts must be >= 0")
	}
	if cfg.SiteURL == "" {
		cfg.SiteURL = "https://www.depop.com"
	}
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	if cfg.NavigationTimeout == 0 {
		cfg.NavigationTimeout = 60 * time.Second
	}
	if cfg.LinkSelector == "" {
		cfg.LinkSelector = DefaultLinkSelector
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Headless {
		logger.Warn("Headless browsing is likely to be blocked; forcing a visible browser")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1280, 900),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.PagesPerSecond,
		DefaultBurst: 1,
		OnDelay: func(host string, waited time.Duration) {
			logger.Debug("Paced product page visit", zap.String("host", host), zap.Duration("waited", waited))
		},
	})
	return &Browser{cfg: cfg, logger: logger, limiter: limiter, allocOpts: opts}, nil
}

// StoreURL is the seller's storefront page.
func (b *Browser) StoreURL(seller string) string {
	return fmt.Sprintf("%s/%s/", b.cfg.SiteURL, url.PathEscape(seller))
}

// session launches Chrome and returns a browser context plus its teardown.
// Launch failures wrap acquire.ErrUnavailable.
func (b *Browser) session(ctx context.Context) (context.Context, func(), error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, b.allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	teardown := func() {
		browserCancel()
		allocCancel()
	}
	if err := chromedp.Run(browserCtx); err != nil {
		teardown()
		if ctx.Err() != nil {
			return nil, nil, fmt.Errorf("browser launch canceled: %w", ctx.Err())
		}
		return nil, nil, fmt.Errorf("chromedp warmup: %w: %w", acquire.ErrUnavailable, err)
	}
	return browserCtx, teardown, nil
}

// RefreshSession opens the storefront, lets it settle, and returns the
// session cookies without scraping anything.
func (b *Browser) RefreshSession(ctx context.Context, seller string) ([]cookie.Cookie, error) {
	browserCtx, teardown, err := b.session(ctx)
	if err != nil {
		return nil, err
	}
	defer teardown()

	if _, err := b.openStorefront(browserCtx, seller, false); err != nil {
		return nil, err
	}
	return harvestCookies(browserCtx)
}

// Collect scrapes every available listing on the storefront and returns
// them with the session cookies.
func (b *Browser) Collect(ctx context.Context, seller string) (acquire.Harvest, error) {
	browserCtx, teardown, err := b.session(ctx)
	if err != nil {
		return acquire.Harvest{}, err
	}
	defer teardown()

	html, err := b.openStorefront(browserCtx, seller, true)
	if err != nil {
		return acquire.Harvest{}, err
	}
	links, err := ProductLinks(html, b.StoreURL(seller), b.cfg.LinkSelector)
	if err != nil {
		return acquire.Harvest{}, &acquire.FetchError{Kind: acquire.KindMalformed, Tier: acquire.TierBrowser, Err: err}
	}
	b.logger.Info("Collected product links from storefront", zap.Int("links", len(links)))

	listings := make([]listing.Listing, 0, len(links))
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return acquire.Harvest{}, fmt.Errorf("browser crawl interrupted: %w", err)
		}
		if err := b.limiter.Wait(ctx, link); err != nil {
			return acquire.Harvest{}, fmt.Errorf("browser page pacing: %w", err)
		}
		detail, err := b.visitProduct(browserCtx, link)
		switch {
		case err != nil:
			b.logger.Warn("Failed to read Depop listing", zap.String("url", link), zap.Error(err))
		case detail.Sold:
			b.logger.Info("Skipping sold Depop listing", zap.String("url", link))
		case !detail.Listing.Complete():
			b.logger.Warn("Depop listing has no image; skipping", zap.String("url", link))
		default:
			listings = append(listings, detail.Listing)
		}
	}

	cookies, err := harvestCookies(browserCtx)
	if err != nil {
		b.logger.Warn("Unable to read browser cookies", zap.Error(err))
	}
	return acquire.Harvest{Listings: listings, Cookies: cookies}, nil
}

// openStorefront navigates the first tab to the storefront and waits for the
// grid to render. With capture set it returns the rendered HTML.
func (b *Browser) openStorefront(browserCtx context.Context, seller string, capture bool) (string, error) {
	navCtx, cancel := context.WithTimeout(browserCtx, b.cfg.NavigationTimeout+b.cfg.StoreSettle)
	defer cancel()

	var html string
	tasks := chromedp.Tasks{
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": acceptLanguage}),
		chromedp.Navigate(b.StoreURL(seller)),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(b.cfg.StoreSettle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(navCtx, tasks); err != nil {
		return "", &acquire.FetchError{Kind: acquire.KindTransient, Tier: acquire.TierBrowser, Endpoint: "storefront", Err: err}
	}
	if StorefrontChallenged(html, b.StoreURL(seller), b.cfg.LinkSelector) {
		return "", &acquire.FetchError{
			Kind:     acquire.KindBlocked,
			Tier:     acquire.TierBrowser,
			Endpoint: "storefront",
			Err:      errors.New("anti-bot interstitial shown instead of the shop"),
		}
	}
	if !capture {
		return "", nil
	}
	return html, nil
}

// visitProduct reads one product page in its own tab.
func (b *Browser) visitProduct(browserCtx context.Context, link string) (Detail, error) {
	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	taskCtx, cancel := context.WithTimeout(tabCtx, b.cfg.NavigationTimeout+b.cfg.PageSettle)
	defer cancel()

	var html string
	tasks := chromedp.Tasks{
		chromedp.Navigate(link),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(b.cfg.PageSettle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return Detail{}, fmt.Errorf("chromedp run: %w", err)
	}
	return ParseDetail(link, html)
}

func harvestCookies(browserCtx context.Context) ([]cookie.Cookie, error) {
	var raw []*network.Cookie
	err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("read browser cookies: %w", err)
	}
	return toCookies(raw), nil
}

func toCookies(raw []*network.Cookie) []cookie.Cookie {
	out := make([]cookie.Cookie, 0, len(raw))
	for _, c := range raw {
		if c == nil {
			continue
		}
		out = append(out, cookie.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain})
	}
	return out
}
