// Package types provides shared types, interfaces, and errors for the application.
package types

import (
	"fmt"
	"time"
)

// Limits applied to values crossing module boundaries.
const (
	MaxChannelIDLength = 128
	MaxAmount          = 10000 // Upper bound for a single tip, in USDC
	MaxMessageBytes    = 64 * 1024
)

// ResolutionMethod identifies which heuristic produced an owner identity.
type ResolutionMethod string

// Resolution methods, in the order they are attempted.
const (
	ResolutionPageMetadata ResolutionMethod = "page-metadata"
	ResolutionAvatarLink   ResolutionMethod = "avatar-link"
	ResolutionBylineLink   ResolutionMethod = "byline-link"
)

// Owner is the content owner's identity as resolved from the watch page.
// RawID may be a user-facing handle or a canonical channel id; CanonicalID
// is the stricter UC-prefixed form when the page exposes it.
type Owner struct {
	RawID       string
	CanonicalID string
	Method      ResolutionMethod
}

// ID returns the identifier to use for backend lookups.
func (o *Owner) ID() string {
	return o.RawID
}

// CreatorInfo is the backend's view of a registered creator.
// This matches the GET /creator response shape.
type CreatorInfo struct {
	Registered       bool    `json:"registered"`
	ChannelID        string  `json:"channelId"`
	ChannelName      string  `json:"channelName"`
	WalletAddress    string  `json:"walletAddress"`
	DefaultTipAmount float64 `json:"defaultTipAmount"`
	YouTubeConnected bool    `json:"youtubeConnected"`
}

// Validate checks the creator record for values the agent refuses to act on.
func (c *CreatorInfo) Validate() error {
	if len(c.ChannelID) > MaxChannelIDLength {
		return fmt.Errorf("channelId exceeds maximum length of %d", MaxChannelIDLength)
	}
	if c.DefaultTipAmount < 0 {
		return fmt.Errorf("defaultTipAmount cannot be negative, got %v", c.DefaultTipAmount)
	}
	if c.DefaultTipAmount > MaxAmount {
		return fmt.Errorf("defaultTipAmount exceeds maximum of %d", MaxAmount)
	}
	return nil
}

// TipRecord is a confirmed tip reported to the backend.
// This matches the POST /tip request shape.
type TipRecord struct {
	ChannelID  string    `json:"channelId"`
	FromWallet string    `json:"fromWallet"`
	ToWallet   string    `json:"toWallet"`
	Amount     float64   `json:"amount"`
	Signature  string    `json:"signature"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

// CreatorSettings is the PUT /creator/settings request body.
type CreatorSettings struct {
	DefaultTipAmount float64 `json:"defaultTipAmount"`
}

// ChannelStats is the GET /stats/{channelId} response shape.
type ChannelStats struct {
	ChannelID        string  `json:"channelId"`
	ChannelName      string  `json:"channelName"`
	TotalTips        int     `json:"totalTips"`
	TotalAmount      float64 `json:"totalAmount"`
	DefaultTipAmount float64 `json:"defaultTipAmount"`
	WalletAddress    string  `json:"walletAddress"`
}

// WalletStatus reports the wallet capability state in the page context.
type WalletStatus struct {
	Available   bool `json:"available"`
	IsConnected bool `json:"isConnected"`
	IsPhantom   bool `json:"isPhantom"`
}

// Bridge message types. These strings are the wire contract between the
// agent and the provider-side script and must remain stable.
const (
	MsgInjectReady        = "AMPLIFY_INJECT_READY"
	MsgCheckPhantom       = "AMPLIFY_CHECK_PHANTOM"
	MsgConnectPhantom     = "AMPLIFY_CONNECT_PHANTOM"
	MsgSendTransaction    = "AMPLIFY_SEND_TRANSACTION"
	MsgPhantomStatus      = "AMPLIFY_PHANTOM_STATUS"
	MsgPhantomConnected   = "AMPLIFY_PHANTOM_CONNECTED"
	MsgPhantomError       = "AMPLIFY_PHANTOM_ERROR"
	MsgTransactionPending = "AMPLIFY_TRANSACTION_PENDING"
	MsgTransactionSuccess = "AMPLIFY_TRANSACTION_SUCCESS"
	MsgTransactionError   = "AMPLIFY_TRANSACTION_ERROR"
)

// MessagePrefix namespaces every bridge message; foreign types are ignored.
const MessagePrefix = "AMPLIFY_"

// BridgeMessage is one message on the page's broadcast channel.
type BridgeMessage struct {
	Type      string  `json:"type"`
	Available bool    `json:"available,omitempty"`
	Connected bool    `json:"isConnected,omitempty"`
	IsPhantom bool    `json:"isPhantom,omitempty"`
	PublicKey string  `json:"publicKey,omitempty"`
	Signature string  `json:"signature,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
	Recipient string  `json:"recipient,omitempty"`
	Message   string  `json:"message,omitempty"`
	Error     string  `json:"error,omitempty"`
}
