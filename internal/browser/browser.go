// Package browser owns the Chrome connection and the live page the agent
// works on.
//
// Two modes: attach to an already-running browser over its DevTools URL
// (the normal mode, since the wallet extension lives in the user's own
// profile), or launch a fresh instance when no control URL is configured.
package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog/log"

	"github.com/amplifylabs/amplify-agent/internal/config"
	"github.com/amplifylabs/amplify-agent/internal/runtime"
	"github.com/amplifylabs/amplify-agent/internal/types"
	"github.com/amplifylabs/amplify-agent/pkg/version"
)

// Connect returns a connected browser, attaching when cfg.ControlURL is
// set and launching otherwise.
func Connect(ctx context.Context, cfg *config.Config) (*rod.Browser, error) {
	controlURL := cfg.ControlURL
	if controlURL == "" {
		u, err := launch(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrBrowserUnavailable, err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBrowserUnavailable, err)
	}

	log.Info().Str("control_url", controlURL).Bool("attached", cfg.ControlURL != "").Msg("Browser connected")
	return browser, nil
}

// launch starts a browser instance and returns its control URL.
func launch(cfg *config.Config) (string, error) {
	l := launcher.New()

	if cfg.BrowserPath != "" {
		l = l.Bin(cfg.BrowserPath)
	}

	if cfg.Headless {
		l = l.Set("headless", "new")
	} else {
		l = l.Headless(false)
	}

	l = l.Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-infobars").
		Set("disable-search-engine-choice-screen").
		Set("disable-blink-features", "AutomationControlled").
		Set("accept-lang", "en-US,en;q=0.9").
		Set("window-size", "1280,900").
		Set("mute-audio")
	l = l.Delete("enable-automation")
	// The wallet lives in a browser extension, so extensions must stay
	// enabled. Rod disables them by default.
	l = l.Delete("disable-extensions")

	return l.Launch()
}

// OpenPage creates the working page with stealth patches applied, sets the
// user agent, and navigates to startURL.
func OpenPage(browser *rod.Browser, startURL string) (*rod.Page, error) {
	page, err := stealth.Page(browser)
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	err = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent: version.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("set user agent: %w", err)
	}

	if startURL != "" {
		if err := page.Navigate(startURL); err != nil {
			return nil, fmt.Errorf("navigate to %s: %w", startURL, err)
		}
		if err := page.WaitLoad(); err != nil {
			log.Warn().Err(err).Msg("Initial page load wait failed, continuing")
		}
	}

	return page, nil
}

// AttachToExisting finds an open watch page in an attached browser, falling
// back to the first page. Returns nil when the browser has no pages.
func AttachToExisting(browser *rod.Browser) (*rod.Page, error) {
	pages, err := browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	if len(pages) == 0 {
		return nil, nil
	}

	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		if _, ok := runtime.WatchVideoID(info.URL); ok {
			return p, nil
		}
	}
	return pages.First(), nil
}
