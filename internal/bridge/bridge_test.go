package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ysmood/gson"

	"github.com/amplifylabs/amplify-agent/internal/types"
)

// fakeTransport records posted messages.
type fakeTransport struct {
	mu    sync.Mutex
	posts []types.BridgeMessage
	err   error
}

func (f *fakeTransport) Post(msg types.BridgeMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.posts = append(f.posts, msg)
	return nil
}

func (f *fakeTransport) posted() []types.BridgeMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.BridgeMessage, len(f.posts))
	copy(out, f.posts)
	return out
}

func payload(t *testing.T, raw string) gson.JSON {
	t.Helper()
	return gson.NewFrom(raw)
}

func markReady(t *testing.T, b *Bridge) {
	t.Helper()
	b.HandleIncoming(payload(t, `{"type":"AMPLIFY_INJECT_READY"}`))
	if !b.Ready() {
		t.Fatal("Bridge did not become ready")
	}
}

func TestCallRoundTrip(t *testing.T) {
	tr := &fakeTransport{}
	b := New(tr, Options{})
	defer b.Close()
	markReady(t, b)

	done := make(chan struct{})
	var resp types.BridgeMessage
	var callErr error
	go func() {
		defer close(done)
		resp, callErr = b.Call(context.Background(), NewCheckRequest())
	}()

	// Wait for the request to hit the transport before answering it.
	waitFor(t, func() bool { return len(tr.posted()) == 1 })
	b.HandleIncoming(payload(t, `{"type":"AMPLIFY_PHANTOM_STATUS","available":true,"isPhantom":true}`))

	<-done
	if callErr != nil {
		t.Fatalf("Call failed: %v", callErr)
	}
	if resp.Type != types.MsgPhantomStatus || !resp.Available {
		t.Errorf("Unexpected response %+v", resp)
	}
}

func TestCallBuffersUntilReady(t *testing.T) {
	tr := &fakeTransport{}
	b := New(tr, Options{})
	defer b.Close()

	done := make(chan struct{})
	var callErr error
	go func() {
		defer close(done)
		_, callErr = b.Call(context.Background(), NewConnectRequest())
	}()

	time.Sleep(50 * time.Millisecond)
	if len(tr.posted()) != 0 {
		t.Fatal("Request posted before the bridge was ready")
	}

	markReady(t, b)
	waitFor(t, func() bool { return len(tr.posted()) == 1 })
	if tr.posted()[0].Type != types.MsgConnectPhantom {
		t.Errorf("Unexpected flushed request %+v", tr.posted()[0])
	}

	b.HandleIncoming(payload(t, `{"type":"AMPLIFY_PHANTOM_CONNECTED","publicKey":"pk123"}`))
	<-done
	if callErr != nil {
		t.Errorf("Call failed after flush: %v", callErr)
	}
}

func TestCallQueueFull(t *testing.T) {
	tr := &fakeTransport{}
	b := New(tr, Options{QueueSize: 1})
	defer b.Close()

	go b.Call(context.Background(), NewCheckRequest())
	time.Sleep(50 * time.Millisecond)

	_, err := b.Call(context.Background(), NewConnectRequest())
	if !errors.Is(err, types.ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
}

func TestCallDuplicateKindRejected(t *testing.T) {
	tr := &fakeTransport{}
	b := New(tr, Options{})
	defer b.Close()
	markReady(t, b)

	go b.Call(context.Background(), NewCheckRequest())
	waitFor(t, func() bool { return len(tr.posted()) == 1 })

	_, err := b.Call(context.Background(), NewCheckRequest())
	if !errors.Is(err, types.ErrRequestInFlight) {
		t.Errorf("Expected ErrRequestInFlight, got %v", err)
	}

	// A different kind is unaffected.
	go b.Call(context.Background(), NewConnectRequest())
	waitFor(t, func() bool { return len(tr.posted()) == 2 })
}

func TestCallTimeout(t *testing.T) {
	tr := &fakeTransport{}
	b := New(tr, Options{RequestTimeout: 50 * time.Millisecond})
	defer b.Close()
	markReady(t, b)

	_, err := b.Call(context.Background(), NewCheckRequest())
	if !errors.Is(err, types.ErrResponseTimeout) {
		t.Errorf("Expected ErrResponseTimeout, got %v", err)
	}

	// The kind is free again after the timeout cleared it.
	go b.Call(context.Background(), NewCheckRequest())
	waitFor(t, func() bool { return len(tr.posted()) == 2 })
}

func TestCallProgressUpdates(t *testing.T) {
	tr := &fakeTransport{}
	var progress []types.BridgeMessage
	var progressMu sync.Mutex
	b := New(tr, Options{OnProgress: func(m types.BridgeMessage) {
		progressMu.Lock()
		progress = append(progress, m)
		progressMu.Unlock()
	}})
	defer b.Close()
	markReady(t, b)

	done := make(chan struct{})
	var resp types.BridgeMessage
	go func() {
		defer close(done)
		resp, _ = b.Call(context.Background(), NewTransactionRequest(0.5, "walletXYZ"))
	}()

	waitFor(t, func() bool { return len(tr.posted()) == 1 })
	if got := tr.posted()[0]; got.Amount != 0.5 || got.Recipient != "walletXYZ" {
		t.Errorf("Unexpected transaction request %+v", got)
	}

	b.HandleIncoming(payload(t, `{"type":"AMPLIFY_TRANSACTION_PENDING"}`))
	b.HandleIncoming(payload(t, `{"type":"AMPLIFY_TRANSACTION_SUCCESS","signature":"sig123"}`))

	<-done
	if resp.Type != types.MsgTransactionSuccess || resp.Signature != "sig123" {
		t.Errorf("Unexpected terminal response %+v", resp)
	}
	progressMu.Lock()
	defer progressMu.Unlock()
	if len(progress) != 1 || progress[0].Type != types.MsgTransactionPending {
		t.Errorf("Unexpected progress updates %+v", progress)
	}
}

func TestHandleIncomingIgnoresNoise(t *testing.T) {
	tr := &fakeTransport{}
	b := New(tr, Options{})
	defer b.Close()

	// None of these may panic, mark ready, or satisfy an exchange.
	b.HandleIncoming(payload(t, `{"type":"REACT_DEVTOOLS_HELLO"}`))
	b.HandleIncoming(payload(t, `{"source":"other-extension"}`))
	b.HandleIncoming(payload(t, `"just a string"`))
	b.HandleIncoming(payload(t, `{"type":"AMPLIFY_PHANTOM_STATUS"}`))
	b.HandleIncoming(payload(t, `{"type":"AMPLIFY_CHECK_PHANTOM"}`))

	if b.Ready() {
		t.Error("Noise marked the bridge ready")
	}
}

func TestCloseFailsWaiters(t *testing.T) {
	tr := &fakeTransport{}
	b := New(tr, Options{})
	markReady(t, b)

	done := make(chan error, 1)
	go func() {
		_, err := b.Call(context.Background(), NewCheckRequest())
		done <- err
	}()
	waitFor(t, func() bool { return len(tr.posted()) == 1 })

	b.Close()
	if err := <-done; !errors.Is(err, types.ErrBridgeClosed) {
		t.Errorf("Expected ErrBridgeClosed, got %v", err)
	}

	if _, err := b.Call(context.Background(), NewCheckRequest()); !errors.Is(err, types.ErrBridgeClosed) {
		t.Errorf("Expected ErrBridgeClosed after close, got %v", err)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{name: "valid", raw: `{"type":"AMPLIFY_PHANTOM_STATUS","available":true}`},
		{name: "foreign", raw: `{"type":"SOMETHING_ELSE"}`, wantErr: types.ErrForeignMessage},
		{name: "missing type", raw: `{"available":true}`, wantErr: types.ErrMalformedMessage},
		{name: "not an object", raw: `[1,2,3]`, wantErr: types.ErrMalformedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(gson.NewFrom(tt.raw))
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Decode(%q) failed: %v", tt.raw, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode(%q) = %v, want %v", tt.raw, err, tt.wantErr)
			}
		})
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Condition not met within deadline")
}
