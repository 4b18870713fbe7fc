package acquire

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/depop-feed/internal/cookie"
	"github.com/JakeFAU/depop-feed/internal/progress"
)

// Orchestrator runs the tier cascade for one seller.
type Orchestrator struct {
	api      APIFetcher
	browser  Browser
	cookies  CookieStore
	snapshot SnapshotReader
	emitter  progress.Emitter
	logger   *zap.Logger
	timeout  time.Duration
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEmitter sets the progress emitter.
func WithEmitter(e progress.Emitter) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.emitter = e
		}
	}
}

// WithTimeout bounds the live tiers. When it fires, a stalled browser is torn
// down and the run falls through to the snapshot.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.timeout = d
	}
}

// New wires an Orchestrator. browser and cookies may be nil, in which case
// the browser tiers report unavailable and harvested cookies are not saved.
func New(api APIFetcher, browser Browser, cookies CookieStore, snapshot SnapshotReader, opts ...Option) (*Orchestrator, error) {
	if api == nil {
		return nil, fmt.Errorf("api fetcher is required")
	}
	if snapshot == nil {
		return nil, fmt.Errorf("snapshot reader is required")
	}
	o := &Orchestrator{
		api:      api,
		browser:  browser,
		cookies:  cookies,
		snapshot: snapshot,
		emitter:  progress.Nop{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

type runState struct {
	seller  string
	cookie  string
	blocked bool
}

type step struct {
	tier Tier
	// when gates the step on earlier results; nil means always run.
	when func(*runState) bool
	run  func(context.Context, *runState) Result
}

func (o *Orchestrator) steps() []step {
	return []step{
		{tier: TierAPI, run: o.runAPI},
		{tier: TierRefresh, when: func(s *runState) bool { return s.blocked }, run: o.runRefresh},
		{tier: TierBrowser, run: o.runBrowser},
	}
}

// Run executes the cascade. It returns ErrNoListings when nothing produced
// listings and no snapshot exists; every other failure is logged and
// absorbed.
func (o *Orchestrator) Run(ctx context.Context, seller, cookieHeader string) (Outcome, error) {
	start := time.Now()
	o.emitter.Emit(progress.Event{Stage: progress.StageRunStart, Note: seller})

	liveCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		liveCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	state := &runState{seller: seller, cookie: cookieHeader}
	steps := o.steps()
	for i, st := range steps {
		if st.when != nil && !st.when(state) {
			continue
		}
		if err := liveCtx.Err(); err != nil {
			o.logger.Warn("Run budget exhausted; skipping remaining live tiers",
				zap.String("tier", string(st.tier)), zap.Error(err))
			break
		}

		res := o.runStep(liveCtx, st, state)
		if res.Status == StatusSuccess && len(res.Listings) > 0 {
			o.emitter.Emit(progress.Event{
				Stage:  progress.StageRunDone,
				Tier:   string(st.tier),
				Result: string(ActionPublish),
				Count:  len(res.Listings),
				Dur:    time.Since(start),
			})
			return Outcome{Action: ActionPublish, Listings: res.Listings, Tier: st.tier}, nil
		}
		o.logFallthrough(st.tier, res, nextTier(steps[i+1:], state))
	}

	return o.fallbackToSnapshot(ctx, start)
}

func (o *Orchestrator) runStep(ctx context.Context, st step, state *runState) Result {
	o.emitter.Emit(progress.Event{Stage: progress.StageTierStart, Tier: string(st.tier)})
	started := time.Now()
	res := st.run(ctx, state)
	if res.Status == StatusSuccess && len(res.Listings) == 0 {
		res.Status = StatusEmpty
	}
	state.blocked = state.blocked || res.Blocked
	evt := progress.Event{
		Stage:  progress.StageTierDone,
		Tier:   string(st.tier),
		Result: string(res.Status),
		Count:  len(res.Listings),
		Dur:    time.Since(started),
	}
	if res.Err != nil {
		evt.Note = res.Err.Error()
	}
	o.emitter.Emit(evt)
	return res
}

func nextTier(rest []step, state *runState) Tier {
	for _, st := range rest {
		if st.when == nil || st.when(state) {
			return st.tier
		}
	}
	return TierSnapshot
}

func (o *Orchestrator) logFallthrough(tier Tier, res Result, next Tier) {
	fields := []zap.Field{
		zap.String("tier", string(tier)),
		zap.String("status", string(res.Status)),
		zap.String("next", string(next)),
	}
	var fe *FetchError
	if errors.As(res.Err, &fe) && fe.Endpoint != "" {
		fields = append(fields, zap.String("endpoint", fe.Endpoint))
	}
	if res.Err != nil {
		fields = append(fields, zap.Error(res.Err))
	}
	o.logger.Warn("Tier produced no listings", fields...)
}

func (o *Orchestrator) fallbackToSnapshot(ctx context.Context, start time.Time) (Outcome, error) {
	listings, found, err := o.snapshot.Load(ctx)
	if err != nil {
		o.logger.Warn("Could not read previous snapshot", zap.String("tier", string(TierSnapshot)), zap.Error(err))
	}
	if err == nil && found && len(listings) > 0 {
		o.logger.Info("Keeping existing product list", zap.Int("count", len(listings)))
		o.emitter.Emit(progress.Event{
			Stage:  progress.StageRunDone,
			Tier:   string(TierSnapshot),
			Result: string(ActionKeep),
			Count:  len(listings),
			Dur:    time.Since(start),
		})
		return Outcome{Action: ActionKeep, Listings: listings, Tier: TierSnapshot}, nil
	}
	o.emitter.Emit(progress.Event{
		Stage: progress.StageRunError,
		Dur:   time.Since(start),
		Note:  ErrNoListings.Error(),
	})
	return Outcome{}, ErrNoListings
}

func (o *Orchestrator) runAPI(ctx context.Context, s *runState) Result {
	return o.api.FetchListings(ctx, s.seller, s.cookie)
}

// runRefresh harvests a fresh session and, when one was captured, retries the
// API once with it.
func (o *Orchestrator) runRefresh(ctx context.Context, s *runState) Result {
	if o.browser == nil {
		return Unavailable(fmt.Errorf("cookie refresh: %w", ErrUnavailable))
	}
	cookies, err := o.browser.RefreshSession(ctx, s.seller)
	if err != nil {
		return browserFailure(err)
	}
	header := o.persistCookies(TierRefresh, cookies)
	if header == "" {
		return Empty(false, &FetchError{
			Kind: KindEmpty,
			Tier: TierRefresh,
			Err:  errors.New("no marketplace cookies observed"),
		})
	}
	o.logger.Info("Cookie refreshed; retrying API with new session")
	s.cookie = header
	return o.api.FetchListings(ctx, s.seller, header)
}

func (o *Orchestrator) runBrowser(ctx context.Context, s *runState) Result {
	if o.browser == nil {
		return Unavailable(fmt.Errorf("browser scrape: %w", ErrUnavailable))
	}
	harvest, err := o.browser.Collect(ctx, s.seller)
	if err != nil {
		return browserFailure(err)
	}
	o.persistCookies(TierBrowser, harvest.Cookies)
	if len(harvest.Listings) == 0 {
		return Empty(false, &FetchError{
			Kind: KindEmpty,
			Tier: TierBrowser,
			Err:  errors.New("storefront yielded no available listings"),
		})
	}
	return Success(harvest.Listings, false)
}

// persistCookies saves harvested cookies and returns the header built from
// them. A failed save still returns the header so this run can use it.
func (o *Orchestrator) persistCookies(tier Tier, cookies []cookie.Cookie) string {
	if o.cookies == nil {
		return cookie.Header(cookies, "depop")
	}
	saved, err := o.cookies.Save(cookies)
	switch {
	case err != nil:
		o.logger.Warn("Failed to cache Depop cookies", zap.String("tier", string(tier)), zap.Error(err))
	case saved:
		o.logger.Info("Cached Depop cookies", zap.String("tier", string(tier)))
	default:
		o.logger.Warn("No Depop cookies found to cache", zap.String("tier", string(tier)))
	}
	return o.cookies.Header(cookies)
}

func browserFailure(err error) Result {
	if errors.Is(err, ErrUnavailable) {
		return Unavailable(err)
	}
	return Empty(IsBlocked(err), err)
}
