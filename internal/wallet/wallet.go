// Package wallet exposes Phantom wallet operations over the page bridge.
//
// The provider script in the page context owns the actual wallet API; this
// package gives the rest of the agent a typed, error-mapped view of the
// three operations it supports.
package wallet

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/amplifylabs/amplify-agent/internal/bridge"
	"github.com/amplifylabs/amplify-agent/internal/types"
)

// Caller is the bridge operation the provider depends on.
type Caller interface {
	Call(ctx context.Context, msg types.BridgeMessage) (types.BridgeMessage, error)
}

// Provider is the wallet surface presented to the payment flow.
type Provider interface {
	// Check probes wallet availability without side effects.
	Check(ctx context.Context) (*types.WalletStatus, error)
	// Connect requests a wallet connection and returns the public key.
	Connect(ctx context.Context) (string, error)
	// Send submits a transfer and returns the transaction signature.
	Send(ctx context.Context, amount float64, recipient string) (string, error)
}

// Phantom is the bridge-backed Provider implementation.
type Phantom struct {
	bridge Caller
}

// NewPhantom creates a provider speaking to the page over the given bridge.
func NewPhantom(b Caller) *Phantom {
	return &Phantom{bridge: b}
}

// Check probes for the wallet in the page context. An unavailable wallet is
// a status, not an error; errors mean the probe itself could not run.
func (p *Phantom) Check(ctx context.Context) (*types.WalletStatus, error) {
	resp, err := p.bridge.Call(ctx, bridge.NewCheckRequest())
	if err != nil {
		return nil, err
	}

	status := &types.WalletStatus{
		Available:   resp.Available,
		IsConnected: resp.Connected,
		IsPhantom:   resp.IsPhantom,
	}
	log.Debug().
		Bool("available", status.Available).
		Bool("connected", status.IsConnected).
		Msg("Wallet status")
	return status, nil
}

// Connect asks the wallet for a connection. A rejection by the user or the
// wallet comes back as a WalletError wrapping ErrConnectRejected.
func (p *Phantom) Connect(ctx context.Context) (string, error) {
	resp, err := p.bridge.Call(ctx, bridge.NewConnectRequest())
	if err != nil {
		return "", err
	}

	if resp.Type == types.MsgPhantomError {
		reason := resp.Error
		if reason == "" {
			reason = "connection rejected"
		}
		return "", types.NewConnectRejectedError(reason)
	}
	if resp.PublicKey == "" {
		return "", types.NewConnectRejectedError("wallet returned no public key")
	}

	log.Info().Str("public_key", resp.PublicKey).Msg("Wallet connected")
	return resp.PublicKey, nil
}

// Send submits a transfer of amount to the recipient address and waits for
// the terminal outcome. Interim pending updates are handled at the bridge
// level and do not surface here.
func (p *Phantom) Send(ctx context.Context, amount float64, recipient string) (string, error) {
	if amount <= 0 {
		return "", types.ErrInvalidAmount
	}
	if recipient == "" {
		return "", types.NewSubmissionError("no recipient address")
	}

	resp, err := p.bridge.Call(ctx, bridge.NewTransactionRequest(amount, recipient))
	if err != nil {
		return "", err
	}

	if resp.Type == types.MsgTransactionError {
		reason := resp.Error
		if reason == "" {
			reason = "transaction rejected"
		}
		return "", types.NewSubmissionError(reason)
	}
	if resp.Signature == "" {
		return "", types.NewSubmissionError("no signature in confirmation")
	}

	log.Info().
		Float64("amount", amount).
		Str("recipient", recipient).
		Str("signature", resp.Signature).
		Msg("Transaction confirmed")
	return resp.Signature, nil
}
