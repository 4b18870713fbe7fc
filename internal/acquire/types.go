package acquire

import (
	"errors"
	"fmt"

	"github.com/JakeFAU/depop-feed/internal/cookie"
	"github.com/JakeFAU/depop-feed/internal/listing"
)

var (
	// ErrUnavailable reports that a capability such as the browser engine is
	// not installed or could not start.
	ErrUnavailable = errors.New("capability unavailable")
	// ErrNoListings is the only fatal outcome: no tier produced listings and
	// no snapshot exists.
	ErrNoListings = errors.New("no listings from any source and no previous snapshot")
)

// Tier names an acquisition step.
type Tier string

// Tiers in cascade order.
const (
	TierAPI      Tier = "api"
	TierRefresh  Tier = "cookie-refresh"
	TierBrowser  Tier = "browser"
	TierSnapshot Tier = "snapshot"
)

// Status is the uniform outcome of one tier.
type Status string

// Tier outcomes.
const (
	StatusSuccess     Status = "success"
	StatusBlocked     Status = "blocked"
	StatusEmpty       Status = "empty"
	StatusUnavailable Status = "unavailable"
)

// Result is what every tier returns. Blocked is set whenever any request in
// the tier was rejected as a block, even if a later endpoint succeeded.
type Result struct {
	Status   Status
	Listings []listing.Listing
	Blocked  bool
	// Err carries the last non-terminal failure for logging.
	Err error
}

// Success wraps a non-empty batch.
func Success(listings []listing.Listing, blocked bool) Result {
	return Result{Status: StatusSuccess, Listings: listings, Blocked: blocked}
}

// Empty reports a tier that ran without producing listings.
func Empty(blocked bool, err error) Result {
	status := StatusEmpty
	if blocked {
		status = StatusBlocked
	}
	return Result{Status: status, Blocked: blocked, Err: err}
}

// Unavailable reports a tier that could not run at all.
func Unavailable(err error) Result {
	return Result{Status: StatusUnavailable, Err: err}
}

// Action tells the caller what to do with the feed.
type Action string

// Possible actions.
const (
	ActionPublish Action = "publish"
	ActionKeep    Action = "keep"
)

// Outcome is the result of a whole run.
type Outcome struct {
	Action   Action
	Listings []listing.Listing
	// Tier that produced Listings, or TierSnapshot for ActionKeep.
	Tier Tier
}

// Harvest is what a full browser crawl returns.
type Harvest struct {
	Listings []listing.Listing
	Cookies  []cookie.Cookie
}

// ErrorKind classifies non-terminal failures.
type ErrorKind string

// Failure kinds.
const (
	KindTransient   ErrorKind = "transient"
	KindBlocked     ErrorKind = "blocked"
	KindMalformed   ErrorKind = "malformed"
	KindEmpty       ErrorKind = "empty"
	KindUnavailable ErrorKind = "unavailable"
)

// FetchError describes why a tier or endpoint produced nothing.
type FetchError struct {
	Kind       ErrorKind
	Tier       Tier
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Tier, e.Kind)
	if e.Endpoint != "" {
		msg += " at " + e.Endpoint
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same request may be tried again.
func (e *FetchError) Retryable() bool {
	return e.Kind == KindTransient
}

// IsBlocked reports whether err is or wraps a blocked FetchError.
func IsBlocked(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindBlocked
}
