package bridge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ysmood/gson"

	"github.com/amplifylabs/amplify-agent/internal/types"
)

// responseKind maps each inbound response type to the request kind whose
// waiter should receive it. The broadcast channel echoes our own outgoing
// requests back through the relay, so request types are deliberately absent
// here and get dropped on receipt.
var responseKind = map[string]string{
	types.MsgPhantomStatus:      types.MsgCheckPhantom,
	types.MsgPhantomConnected:   types.MsgConnectPhantom,
	types.MsgPhantomError:       types.MsgConnectPhantom,
	types.MsgTransactionPending: types.MsgSendTransaction,
	types.MsgTransactionSuccess: types.MsgSendTransaction,
	types.MsgTransactionError:   types.MsgSendTransaction,
}

// terminal marks the response types that complete an exchange. Anything
// else routed to a waiter is a progress update.
var terminal = map[string]bool{
	types.MsgPhantomStatus:      true,
	types.MsgPhantomConnected:   true,
	types.MsgPhantomError:       true,
	types.MsgTransactionSuccess: true,
	types.MsgTransactionError:   true,
}

// NewCheckRequest builds a wallet availability probe.
func NewCheckRequest() types.BridgeMessage {
	return types.BridgeMessage{Type: types.MsgCheckPhantom}
}

// NewConnectRequest builds a wallet connection request.
func NewConnectRequest() types.BridgeMessage {
	return types.BridgeMessage{Type: types.MsgConnectPhantom}
}

// NewTransactionRequest builds a transfer submission request.
func NewTransactionRequest(amount float64, recipient string) types.BridgeMessage {
	return types.BridgeMessage{
		Type:      types.MsgSendTransaction,
		Amount:    amount,
		Recipient: recipient,
	}
}

// Decode parses a relayed payload into a bridge message. Payloads outside
// the message namespace return ErrForeignMessage and are expected traffic;
// in-namespace payloads that do not parse return ErrMalformedMessage.
func Decode(raw gson.JSON) (types.BridgeMessage, error) {
	var msg types.BridgeMessage
	if err := json.Unmarshal([]byte(raw.JSON("", "")), &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", types.ErrMalformedMessage, err)
	}
	if msg.Type == "" {
		return msg, fmt.Errorf("%w: missing type", types.ErrMalformedMessage)
	}
	if !strings.HasPrefix(msg.Type, types.MessagePrefix) {
		return msg, types.ErrForeignMessage
	}
	return msg, nil
}
