package browser

import (
	"encoding/json"
	"sync"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog/log"
	"github.com/ysmood/gson"

	"github.com/amplifylabs/amplify-agent/internal/assets"
	"github.com/amplifylabs/amplify-agent/internal/modal"
)

const uiBinding = "__amplifyAgentUI"

// UIEvent is one user interaction relayed from the overlay.
type UIEvent struct {
	Action string  `json:"action"` // "close", "confirm", "amount"
	Amount float64 `json:"amount"`
}

// Overlay renders the payment flow inside the page. Implements
// modal.Surface.
type Overlay struct {
	page *rod.Page

	mu        sync.Mutex
	installed bool
	handler   func(UIEvent)
	stopUI    func() error
}

// NewOverlay creates an in-page overlay surface.
func NewOverlay(page *rod.Page) *Overlay {
	return &Overlay{page: page}
}

// OnEvent sets the handler for overlay interactions. Events arriving
// without a handler are dropped.
func (o *Overlay) OnEvent(fn func(UIEvent)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handler = fn
}

// Show installs the overlay machinery on first use and renders the view.
func (o *Overlay) Show(v modal.View) error {
	if err := o.install(); err != nil {
		return err
	}
	return o.render(v)
}

// Update re-renders the overlay with the new view.
func (o *Overlay) Update(v modal.View) error {
	if err := o.install(); err != nil {
		return err
	}
	return o.render(v)
}

// Hide removes the overlay from the page. Safe without a preceding Show.
func (o *Overlay) Hide() error {
	o.mu.Lock()
	installed := o.installed
	o.mu.Unlock()
	if !installed {
		return nil
	}

	_, err := o.page.Eval(`() => {
		if (window.__amplifyOverlay) {
			window.__amplifyOverlay.hide();
		}
	}`)
	return err
}

// Close removes the UI binding. The overlay DOM, if visible, goes with the
// page.
func (o *Overlay) Close() {
	o.mu.Lock()
	stop := o.stopUI
	o.stopUI = nil
	o.installed = false
	o.mu.Unlock()

	if stop != nil {
		if err := stop(); err != nil {
			log.Debug().Err(err).Msg("UI binding removal failed")
		}
	}
}

func (o *Overlay) install() error {
	o.mu.Lock()
	if o.installed {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	stop, err := o.page.Expose(uiBinding, func(raw gson.JSON) (interface{}, error) {
		var ev UIEvent
		if err := json.Unmarshal([]byte(raw.JSON("", "")), &ev); err != nil {
			log.Debug().Err(err).Msg("Undecodable overlay event")
			return nil, nil
		}
		o.mu.Lock()
		handler := o.handler
		o.mu.Unlock()
		if handler != nil {
			handler(ev)
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	if _, err := o.page.Evaluate(rod.Eval(assets.OverlayScript())); err != nil {
		if serr := stop(); serr != nil {
			log.Debug().Err(serr).Msg("UI binding cleanup failed")
		}
		return err
	}

	o.mu.Lock()
	o.installed = true
	o.stopUI = stop
	o.mu.Unlock()
	return nil
}

func (o *Overlay) render(v modal.View) error {
	payload := map[string]interface{}{
		"phase":       string(v.Phase),
		"creatorName": v.CreatorName,
		"amount":      v.Amount,
		"message":     v.Message,
		"signature":   v.Signature,
	}
	_, err := o.page.Eval(`(view) => { window.__amplifyOverlay.show(view); }`, payload)
	return err
}
