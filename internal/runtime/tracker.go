package runtime

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// URLSource reports the page's current location.
type URLSource interface {
	CurrentURL() (string, error)
}

// Tracker detects in-page navigations by polling the location. The host is
// a single-page application that rewrites its URL without a page load, so
// load events are useless; only the location itself is trustworthy.
type Tracker struct {
	src      URLSource
	interval time.Duration
	last     string
}

// NewTracker creates a tracker polling src on the given interval.
func NewTracker(src URLSource, interval time.Duration) *Tracker {
	return &Tracker{src: src, interval: interval}
}

// Run polls until the context is canceled, invoking onChange once per
// distinct URL. The initial URL counts as a change. Read failures are
// transient (the page may be mid-load) and skip the tick.
func (t *Tracker) Run(ctx context.Context, onChange func(url string)) {
	t.tick(onChange)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(onChange)
		}
	}
}

func (t *Tracker) tick(onChange func(url string)) {
	u, err := t.src.CurrentURL()
	if err != nil {
		log.Debug().Err(err).Msg("Location read failed, skipping tick")
		return
	}
	if u == "" || u == t.last {
		return
	}
	t.last = u
	log.Debug().Str("url", u).Msg("Navigation detected")
	onChange(u)
}
