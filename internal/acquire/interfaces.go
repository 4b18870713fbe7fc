package acquire

import (
	"context"

	"github.com/JakeFAU/depop-feed/internal/cookie"
	"github.com/JakeFAU/depop-feed/internal/listing"
)

// APIFetcher walks the marketplace JSON endpoints for a seller. It never
// returns an error; failures are folded into the Result.
type APIFetcher interface {
	FetchListings(ctx context.Context, seller, cookieHeader string) Result
}

// Browser drives a real browser. Implementations return an error wrapping
// ErrUnavailable when the engine cannot run.
type Browser interface {
	// Collect scrapes every listing on the storefront and harvests cookies.
	Collect(ctx context.Context, seller string) (Harvest, error)
	// RefreshSession visits the storefront and returns its cookies only.
	RefreshSession(ctx context.Context, seller string) ([]cookie.Cookie, error)
}

// CookieStore persists harvested cookies.
type CookieStore interface {
	Save(cookies []cookie.Cookie) (bool, error)
	Header(cookies []cookie.Cookie) string
}

// SnapshotReader returns the last published batch.
type SnapshotReader interface {
	Load(ctx context.Context) ([]listing.Listing, bool, error)
}
