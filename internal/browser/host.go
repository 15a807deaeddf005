package browser

import (
	"sync"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog/log"
	"github.com/ysmood/gson"

	"github.com/amplifylabs/amplify-agent/internal/assets"
	"github.com/amplifylabs/amplify-agent/internal/bridge"
	"github.com/amplifylabs/amplify-agent/internal/finder"
	"github.com/amplifylabs/amplify-agent/internal/selectors"
	"github.com/amplifylabs/amplify-agent/internal/types"
)

// Binding names installed on the page. The page-side scripts call these.
const (
	recvBinding  = "__amplifyAgentRecv"
	clickBinding = "__amplifyAgentClick"
)

// PageHost adapts a live page to the coordinator's Host interface and acts
// as the bridge transport.
type PageHost struct {
	page      *rod.Page
	selectors func() *selectors.Selectors

	mu        sync.Mutex
	candidate *finder.Candidate
	stopClick func() error
}

// NewHost wraps a page. selFn supplies the current matcher set on every
// lookup.
func NewHost(page *rod.Page, selFn func() *selectors.Selectors) *PageHost {
	return &PageHost{page: page, selectors: selFn}
}

// Page returns the underlying page.
func (h *PageHost) Page() *rod.Page {
	return h.page
}

// CurrentURL reports the page's current location.
func (h *PageHost) CurrentURL() (string, error) {
	info, err := h.page.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// Snapshot returns the page HTML.
func (h *PageHost) Snapshot() (string, error) {
	return h.page.HTML()
}

// FindTarget locates the like button and remembers the candidate for the
// following Intercept call.
func (h *PageHost) FindTarget() (bool, error) {
	c, err := finder.Find(h.page, h.selectors())
	if err != nil || c == nil {
		return false, err
	}

	h.mu.Lock()
	h.candidate = c
	h.mu.Unlock()

	log.Debug().Str("selector", c.Selector).Str("label", c.Label).Msg("Target located")
	return true, nil
}

// Intercept swallows the located target's clicks and fires onClick instead.
func (h *PageHost) Intercept(onClick func()) error {
	h.mu.Lock()
	c := h.candidate
	h.mu.Unlock()
	if c == nil {
		return types.ErrControlNotFound
	}

	stop, err := h.page.Expose(clickBinding, func(gson.JSON) (interface{}, error) {
		onClick()
		return nil, nil
	})
	if err != nil {
		return err
	}

	if _, err := c.Element().Eval(assets.InterceptScript()); err != nil {
		if serr := stop(); serr != nil {
			log.Debug().Err(serr).Msg("Click binding cleanup failed")
		}
		return err
	}

	h.mu.Lock()
	h.stopClick = stop
	h.mu.Unlock()
	return nil
}

// Release detaches the session's page artifacts: the click binding, the
// remembered candidate, and any visible overlay.
func (h *PageHost) Release() {
	h.mu.Lock()
	stop := h.stopClick
	h.stopClick = nil
	h.candidate = nil
	h.mu.Unlock()

	if stop != nil {
		if err := stop(); err != nil {
			log.Debug().Err(err).Msg("Click binding removal failed")
		}
	}

	_, err := h.page.Eval(`() => {
		if (window.__amplifyOverlay) {
			window.__amplifyOverlay.hide();
		}
	}`)
	if err != nil {
		log.Debug().Err(err).Msg("Overlay cleanup failed")
	}
}

// Post delivers an outgoing bridge message onto the page's broadcast
// channel. Implements bridge.Transport.
func (h *PageHost) Post(msg types.BridgeMessage) error {
	_, err := h.page.Eval(`(msg) => { window.postMessage(msg, '*'); }`, msg)
	return err
}

// InstallBridge wires the page to the given bridge: the receive binding,
// the relay, and the wallet provider script. Scripts are also registered
// for new documents so a hard reload re-injects them. The returned cleanup
// removes everything installed.
func (h *PageHost) InstallBridge(b *bridge.Bridge) (func(), error) {
	var cleanups []func() error

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := cleanups[i](); err != nil {
				log.Debug().Err(err).Msg("Bridge uninstall step failed")
			}
		}
	}

	stop, err := h.page.Expose(recvBinding, func(raw gson.JSON) (interface{}, error) {
		b.HandleIncoming(raw)
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, stop)

	// Relay first so no provider message can slip by unforwarded.
	for _, script := range []string{assets.RelayScript(), assets.ProviderScript()} {
		remove, err := h.page.EvalOnNewDocument(script)
		if err != nil {
			cleanup()
			return nil, err
		}
		cleanups = append(cleanups, remove)

		if _, err := h.page.Evaluate(rod.Eval(script)); err != nil {
			cleanup()
			return nil, err
		}
	}

	log.Debug().Msg("Bridge scripts installed")
	return cleanup, nil
}
