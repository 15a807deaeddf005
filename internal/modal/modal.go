// Package modal drives the payment flow state machine.
//
// The controller owns the flow phases and their transitions; rendering goes
// through the Surface interface so the same machine drives the in-page
// overlay in production and a recording fake in tests. At most one flow is
// open at a time.
package modal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/amplifylabs/amplify-agent/internal/types"
	"github.com/amplifylabs/amplify-agent/internal/wallet"
)

// Phase is a state of the payment flow.
type Phase string

const (
	PhaseHidden     Phase = "hidden"
	PhaseConfirm    Phase = "confirm"
	PhaseProcessing Phase = "processing"
	PhaseSuccess    Phase = "success"
	PhaseError      Phase = "error"
)

// View is what the surface renders for the current phase.
type View struct {
	Phase       Phase
	CreatorName string
	Amount      float64
	Message     string
	Signature   string
}

// Surface renders the flow. Implementations must tolerate Hide without a
// preceding Show.
type Surface interface {
	Show(v View) error
	Update(v View) error
	Hide() error
}

// Options tune flow timing.
type Options struct {
	// SafetyTimeout force-closes an abandoned flow, whatever phase it is
	// in. Armed on every open.
	SafetyTimeout time.Duration
	// ConnectTimeout bounds the wallet check and connect that run when
	// the user confirms.
	ConnectTimeout time.Duration
	// SuccessAutoClose is how long the success state stays visible
	// before the flow closes itself.
	SuccessAutoClose time.Duration
	// DefaultAmount is used when the creator record carries none.
	DefaultAmount float64
}

const (
	defaultSafetyTimeout    = 10 * time.Second
	defaultConnectTimeout   = 10 * time.Second
	defaultSuccessAutoClose = 3 * time.Second
	defaultAmount           = 0.5
)

// Controller is the payment flow state machine.
type Controller struct {
	surface  Surface
	provider wallet.Provider
	opts     Options

	// OnTip is called once per confirmed transaction, after the success
	// state is shown. Optional.
	OnTip func(rec types.TipRecord)

	mu        sync.Mutex
	phase     Phase
	epoch     int // Bumped on every reset; in-flight work checks it before landing.
	creator   *types.CreatorInfo
	payerKey  string
	amount    float64
	safety    *time.Timer
	autoClose *time.Timer
}

// New creates a controller rendering to the given surface and paying
// through the given wallet provider.
func New(surface Surface, provider wallet.Provider, opts Options) *Controller {
	if opts.SafetyTimeout <= 0 {
		opts.SafetyTimeout = defaultSafetyTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.SuccessAutoClose <= 0 {
		opts.SuccessAutoClose = defaultSuccessAutoClose
	}
	if opts.DefaultAmount <= 0 {
		opts.DefaultAmount = defaultAmount
	}
	return &Controller{
		surface:  surface,
		provider: provider,
		opts:     opts,
		phase:    PhaseHidden,
	}
}

// Phase returns the current flow phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Open starts the flow for the given creator, landing directly on the
// confirmation step with the default amount preselected. The wallet is not
// touched until the user confirms. Every open arms the safety timer.
func (c *Controller) Open(ctx context.Context, creator *types.CreatorInfo) error {
	c.mu.Lock()
	if c.phase != PhaseHidden {
		c.mu.Unlock()
		return types.ErrModalAlreadyOpen
	}
	c.phase = PhaseConfirm
	c.creator = creator
	c.amount = c.opts.DefaultAmount
	if creator != nil && creator.DefaultTipAmount > 0 {
		c.amount = creator.DefaultTipAmount
	}
	c.safety = time.AfterFunc(c.opts.SafetyTimeout, c.forceClose)
	c.mu.Unlock()

	if err := c.surface.Show(c.view("")); err != nil {
		c.reset()
		return err
	}
	return nil
}

// SetAmount replaces the pending amount from the custom amount field.
// Only positive amounts are accepted; the flow stays on the confirmation
// step either way.
func (c *Controller) SetAmount(amount float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseConfirm {
		return types.ErrModalClosed
	}
	if amount <= 0 {
		return types.ErrInvalidAmount
	}
	c.amount = amount
	return nil
}

// Confirm submits the pending amount: check the wallet, connect, send. A
// missing wallet short-circuits to the error state without a connect
// attempt. On success the flow shows the confirmation briefly and then
// closes itself; on failure it lands on the error state with the flow
// still open. If the flow was closed while the transaction was in flight,
// the result is dropped but the tip is still recorded.
func (c *Controller) Confirm(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhaseConfirm {
		phase := c.phase
		c.mu.Unlock()
		if phase == PhaseProcessing {
			return types.ErrBusyProcessing
		}
		return types.ErrModalClosed
	}
	c.phase = PhaseProcessing
	epoch := c.epoch
	amount := c.amount
	creator := c.creator
	c.mu.Unlock()

	c.update(epoch, c.view("Connecting to wallet..."))

	connectCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	status, err := c.provider.Check(connectCtx)
	if err != nil {
		cancel()
		return c.fail(epoch, flowError(err))
	}
	if !status.Available {
		cancel()
		return c.fail(epoch, types.NewWalletNotFoundError())
	}

	payer, err := c.provider.Connect(connectCtx)
	cancel()
	if err != nil {
		return c.fail(epoch, flowError(err))
	}

	c.mu.Lock()
	c.payerKey = payer
	c.mu.Unlock()

	c.update(epoch, c.view("Sending transaction..."))

	recipient := ""
	channelID, channelName := "", ""
	if creator != nil {
		recipient = creator.WalletAddress
		channelID = creator.ChannelID
		channelName = creator.ChannelName
	}

	sig, err := c.provider.Send(ctx, amount, recipient)
	if err != nil {
		return c.fail(epoch, flowError(err))
	}

	c.mu.Lock()
	closed := c.epoch != epoch
	if !closed {
		c.phase = PhaseSuccess
		c.autoClose = time.AfterFunc(c.opts.SuccessAutoClose, c.forceClose)
	}
	c.mu.Unlock()

	if closed {
		log.Info().Str("signature", sig).Msg("Flow closed during submission, dropping the view")
	} else {
		v := c.view("")
		v.Signature = sig
		c.update(epoch, v)
	}

	log.Info().
		Str("channel", channelName).
		Float64("amount", amount).
		Str("signature", sig).
		Msg("Tip sent")

	if c.OnTip != nil {
		c.OnTip(types.TipRecord{
			ChannelID:  channelID,
			FromWallet: payer,
			ToWallet:   recipient,
			Amount:     amount,
			Signature:  sig,
			Timestamp:  time.Now().UTC(),
		})
	}
	return nil
}

// Close dismisses the flow from any phase; closing an already-closed flow
// is a no-op. A transaction already in flight keeps running, its result
// lands on the closed flow and is dropped.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.phase == PhaseHidden {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.reset()
	return nil
}

// forceClose backs the safety and success auto-close timers.
func (c *Controller) forceClose() {
	c.mu.Lock()
	if c.phase == PhaseHidden {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.reset()
}

// fail lands the flow on the error state and returns the cause. A flow
// that was closed in the meantime is left alone.
func (c *Controller) fail(epoch int, err error) error {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return err
	}
	c.phase = PhaseError
	c.mu.Unlock()

	c.update(epoch, c.view(err.Error()))
	return err
}

// update renders onto the surface unless the flow was closed since epoch.
func (c *Controller) update(epoch int, v View) {
	c.mu.Lock()
	stale := c.epoch != epoch || c.phase == PhaseHidden
	c.mu.Unlock()
	if stale {
		return
	}
	if err := c.surface.Update(v); err != nil {
		log.Warn().Err(err).Msg("Surface update failed")
	}
}

// reset hides the surface and returns the machine to hidden.
func (c *Controller) reset() {
	c.mu.Lock()
	if c.safety != nil {
		c.safety.Stop()
		c.safety = nil
	}
	if c.autoClose != nil {
		c.autoClose.Stop()
		c.autoClose = nil
	}
	c.epoch++
	c.phase = PhaseHidden
	c.creator = nil
	c.payerKey = ""
	c.amount = 0
	c.mu.Unlock()

	if err := c.surface.Hide(); err != nil {
		log.Warn().Err(err).Msg("Surface hide failed")
	}
}

// view snapshots the current state for rendering.
func (c *Controller) view(message string) View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{Phase: c.phase, Amount: c.amount, Message: message}
	if c.creator != nil {
		v.CreatorName = c.creator.ChannelName
	}
	return v
}

// flowError normalizes a deadline from the connect window into a readable
// message; everything else passes through.
func flowError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &types.WalletError{
			Operation: "connect",
			Message:   "Wallet did not respond in time. Please try again.",
			Err:       types.ErrResponseTimeout,
		}
	}
	return err
}
