package headless

import (
	"context"
	"fmt"

	"github.com/JakeFAU/depop-feed/internal/acquire"
	"github.com/JakeFAU/depop-feed/internal/cookie"
)

// Noop stands in when the browser tier is disabled. Every call reports
// acquire.ErrUnavailable so the cascade skips it.
type Noop struct {
	Reason string
}

var _ acquire.Browser = Noop{}

// NewNoop creates a Noop browser.
func NewNoop(reason string) Noop {
	return Noop{Reason: reason}
}

// Collect implements acquire.Browser.
func (n Noop) Collect(context.Context, string) (acquire.Harvest, error) {
	return acquire.Harvest{}, n.err()
}

// RefreshSession implements acquire.Browser.
func (n Noop) RefreshSession(context.Context, string) ([]cookie.Cookie, error) {
	return nil, n.err()
}

func (n Noop) err() error {
	if n.Reason == "" {
		return fmt.Errorf("browser: %w", acquire.ErrUnavailable)
	}
	return fmt.Errorf("browser %s: %w", n.Reason, acquire.ErrUnavailable)
}
