// Package runtime sequences the agent's work on the watch page: navigation
// tracking, identity resolution, eligibility, target acquisition, and click
// interception.
//
// All page work is scoped to a session. Every navigation tears the current
// session down before the next one starts, and every deferred step
// re-checks that its session is still the live one before touching the
// page, so a stale timer can never act on the wrong video.
package runtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/amplifylabs/amplify-agent/internal/identity"
	"github.com/amplifylabs/amplify-agent/internal/metrics"
	"github.com/amplifylabs/amplify-agent/internal/retry"
	"github.com/amplifylabs/amplify-agent/internal/selectors"
	"github.com/amplifylabs/amplify-agent/internal/session"
	"github.com/amplifylabs/amplify-agent/internal/types"
)

// Host is the page surface the coordinator drives.
type Host interface {
	URLSource
	// Snapshot returns the current page HTML.
	Snapshot() (string, error)
	// FindTarget locates the like button. (false, nil) means not on the
	// page yet; callers retry.
	FindTarget() (bool, error)
	// Intercept attaches the click handler to the located target. The
	// handler must swallow the click and fire onClick instead.
	Intercept(onClick func()) error
	// Release detaches handlers and page artifacts of the current
	// session.
	Release()
}

// FlowOpener starts the payment flow for an eligible creator.
type FlowOpener interface {
	Open(ctx context.Context, creator *types.CreatorInfo) error
}

// Options tune coordinator timing.
type Options struct {
	NavPollInterval   time.Duration // Location poll cadence
	SettleDelay       time.Duration // Wait after navigation before touching the page
	FindRetryInterval time.Duration // Target acquisition retry cadence
	ClickFlowDelay    time.Duration // Gap between an intercepted click and the flow opening
}

const (
	defaultNavPollInterval   = 500 * time.Millisecond
	defaultSettleDelay       = time.Second
	defaultFindRetryInterval = time.Second
	defaultClickFlowDelay    = 300 * time.Millisecond
)

// Coordinator owns the per-page lifecycle.
type Coordinator struct {
	host      Host
	resolver  *identity.Resolver
	flow      FlowOpener
	selectors func() *selectors.Selectors
	opts      Options

	mu       sync.Mutex
	current  *session.PageSession
	loop     *retry.Loop
	attached bool
}

// New creates a coordinator. selFn supplies the current matcher set on
// every use so hot-reloaded selectors take effect mid-session.
func New(host Host, resolver *identity.Resolver, flow FlowOpener, selFn func() *selectors.Selectors, opts Options) *Coordinator {
	if opts.NavPollInterval <= 0 {
		opts.NavPollInterval = defaultNavPollInterval
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = defaultSettleDelay
	}
	if opts.FindRetryInterval <= 0 {
		opts.FindRetryInterval = defaultFindRetryInterval
	}
	if opts.ClickFlowDelay <= 0 {
		opts.ClickFlowDelay = defaultClickFlowDelay
	}
	return &Coordinator{
		host:      host,
		resolver:  resolver,
		flow:      flow,
		selectors: selFn,
		opts:      opts,
	}
}

// Run tracks navigations until the context is canceled, then tears down
// whatever session is live.
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.Shutdown()

	tracker := NewTracker(c.host, c.opts.NavPollInterval)
	tracker.Run(ctx, func(u string) {
		c.HandleNavigation(ctx, u)
	})
	return ctx.Err()
}

// HandleNavigation reacts to one URL change: the old session is torn down
// unconditionally, and a new one starts only for watch pages.
func (c *Coordinator) HandleNavigation(ctx context.Context, url string) {
	c.Shutdown()

	videoID, ok := WatchVideoID(url)
	if !ok {
		metrics.NavigationsTotal.WithLabelValues("other").Inc()
		return
	}
	metrics.NavigationsTotal.WithLabelValues("watch").Inc()
	metrics.SessionsStarted.Inc()

	sess := session.New(url, videoID)
	c.mu.Lock()
	c.current = sess
	c.mu.Unlock()

	go c.activate(ctx, sess)
}

// Shutdown tears down the live session, if any. Safe to call repeatedly.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	prev := c.current
	loop := c.loop
	c.current = nil
	c.loop = nil
	c.attached = false
	c.mu.Unlock()

	if loop != nil {
		loop.Stop()
	}
	if prev != nil {
		prev.Teardown()
		c.host.Release()
	}
}

// Session returns the live session, nil when detached.
func (c *Coordinator) Session() *session.PageSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// activate waits out the render settle window and then starts acquisition.
func (c *Coordinator) activate(ctx context.Context, sess *session.PageSession) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(c.opts.SettleDelay):
	}
	if !c.isCurrent(sess) {
		return
	}

	start := time.Now()
	loop := retry.New(c.opts.FindRetryInterval, func(ctx context.Context) bool {
		return c.acquire(ctx, sess, start)
	})

	c.mu.Lock()
	if c.current != sess {
		c.mu.Unlock()
		return
	}
	c.loop = loop
	c.mu.Unlock()

	loop.Start(ctx)
}

// acquire is one acquisition attempt. It advances as far as the page allows
// on each tick: resolve the owner, check eligibility once, locate the
// target, attach. Returns true when the session needs no further ticks.
func (c *Coordinator) acquire(ctx context.Context, sess *session.PageSession, start time.Time) bool {
	if !c.isCurrent(sess) || !sess.Active() {
		return true
	}

	if sess.Owner() == nil {
		html, err := c.host.Snapshot()
		if err != nil {
			log.Debug().Err(err).Msg("Page snapshot failed, will retry")
			return false
		}
		owner := identity.Resolve(html, c.selectors())
		if owner == nil {
			// The owner section renders late on slow pages.
			return false
		}
		sess.SetOwner(owner)
		log.Debug().
			Str("channel_id", owner.ID()).
			Str("method", string(owner.Method)).
			Msg("Owner resolved")
	}

	if _, checked := sess.Creator(); !checked {
		creator := c.resolver.Check(ctx, sess.Owner())
		sess.SetCreator(creator)
		if creator == nil {
			// Not registered. The page behaves exactly as if the agent
			// were not running.
			return true
		}
		metrics.SessionsEligible.Inc()
		log.Info().
			Str("channel", creator.ChannelName).
			Str("video", sess.VideoID).
			Msg("Creator eligible, acquiring target")
	}
	if creator, _ := sess.Creator(); creator == nil {
		return true
	}

	found, err := c.host.FindTarget()
	if err != nil {
		log.Debug().Err(err).Msg("Target lookup failed, will retry")
		return false
	}
	if !found {
		return false
	}

	c.mu.Lock()
	alreadyAttached := c.attached
	c.mu.Unlock()
	if alreadyAttached {
		return true
	}

	if err := c.host.Intercept(func() { c.onClick(ctx, sess) }); err != nil {
		log.Warn().Err(err).Msg("Interception attach failed, will retry")
		return false
	}

	c.mu.Lock()
	c.attached = true
	c.mu.Unlock()

	metrics.AcquisitionDuration.Observe(time.Since(start).Seconds())
	log.Info().Str("video", sess.VideoID).Msg("Click interception attached")
	return true
}

// onClick handles one intercepted click. The flow opens after a short gap
// so the click's own UI feedback lands first; by then the session may be
// gone, so the gap ends with a staleness re-check.
func (c *Coordinator) onClick(ctx context.Context, sess *session.PageSession) {
	if !c.isCurrent(sess) || !sess.Active() {
		return
	}
	metrics.ClicksIntercepted.Inc()

	creator, _ := sess.Creator()
	if creator == nil {
		return
	}

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.opts.ClickFlowDelay):
		}
		if !c.isCurrent(sess) || !sess.Active() {
			return
		}

		err := c.flow.Open(ctx, creator)
		switch {
		case err == nil:
			metrics.FlowsOpened.WithLabelValues("opened").Inc()
		case errors.Is(err, types.ErrModalAlreadyOpen):
			// Repeat clicks while the flow is up are expected; swallow.
			metrics.FlowsOpened.WithLabelValues("duplicate").Inc()
		default:
			metrics.FlowsOpened.WithLabelValues("error").Inc()
			log.Warn().Err(err).Msg("Payment flow failed to open")
		}
	}()
}

func (c *Coordinator) isCurrent(sess *session.PageSession) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current == sess
}
