package types

import "errors"

// Sentinel errors for consistent error handling across the application.
// These errors can be checked with errors.Is() for type-safe error handling.
var (
	// Target acquisition errors
	ErrControlNotFound = errors.New("target control not found yet")
	ErrNotWatchPage    = errors.New("current page is not a watch page")

	// Identity / eligibility errors
	ErrIdentityUnresolved = errors.New("owner identity could not be resolved")
	ErrCreatorUnknown     = errors.New("creator is not registered")

	// Bridge errors
	ErrBridgeNotReady   = errors.New("bridge provider script has not announced readiness")
	ErrRequestInFlight  = errors.New("a request of this kind is already in flight")
	ErrBridgeClosed     = errors.New("bridge is closed")
	ErrResponseTimeout  = errors.New("timed out waiting for bridge response")
	ErrQueueFull        = errors.New("bridge pre-ready queue is full")
	ErrForeignMessage   = errors.New("message is not part of the bridge protocol")
	ErrMalformedMessage = errors.New("bridge message is malformed")

	// Wallet errors
	ErrWalletNotFound    = errors.New("wallet provider not found in page context")
	ErrConnectRejected   = errors.New("wallet connection was rejected")
	ErrSubmissionFailed  = errors.New("transaction submission failed")
	ErrWalletUnavailable = errors.New("wallet capability unavailable")

	// Modal errors
	ErrModalAlreadyOpen = errors.New("a modal session is already open")
	ErrModalClosed      = errors.New("modal session is closed")
	ErrInvalidAmount    = errors.New("amount must be a positive number")
	ErrBusyProcessing   = errors.New("a transaction is already in flight")

	// Session errors
	ErrSessionStale    = errors.New("page session has been superseded")
	ErrSessionTornDown = errors.New("page session is torn down")

	// Browser errors
	ErrBrowserUnavailable = errors.New("browser is not reachable")
)

// BridgeError provides detailed information about bridge protocol failures.
// It implements the error interface and supports error unwrapping.
type BridgeError struct {
	Kind    string // Request kind (message type) that failed
	Message string // Human-readable error message
	Err     error  // Underlying error (for unwrapping)
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *BridgeError) Unwrap() error {
	return e.Err
}

// NewBridgeTimeoutError creates an error for a bridge exchange timeout.
func NewBridgeTimeoutError(kind string) *BridgeError {
	return &BridgeError{
		Kind:    kind,
		Message: "Timed out waiting for a " + kind + " response from the page context.",
		Err:     ErrResponseTimeout,
	}
}

// NewBridgeInFlightError creates an error for a duplicate in-flight request.
func NewBridgeInFlightError(kind string) *BridgeError {
	return &BridgeError{
		Kind:    kind,
		Message: "A " + kind + " exchange is already in flight; the protocol supports one per kind.",
		Err:     ErrRequestInFlight,
	}
}

// WalletError provides detailed information about wallet operation failures.
type WalletError struct {
	Operation string // "check", "connect", "send"
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *WalletError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *WalletError) Unwrap() error {
	return e.Err
}

// NewWalletNotFoundError creates the error shown when the wallet extension
// is absent. Callers render this with an install remediation link.
func NewWalletNotFoundError() *WalletError {
	return &WalletError{
		Operation: "check",
		Message:   "Phantom wallet not found. Please install the Phantom wallet extension.",
		Err:       ErrWalletNotFound,
	}
}

// NewConnectRejectedError creates an error for a rejected connect request.
func NewConnectRejectedError(reason string) *WalletError {
	return &WalletError{
		Operation: "connect",
		Message:   "Wallet connection failed: " + reason,
		Err:       ErrConnectRejected,
	}
}

// NewSubmissionError creates an error for a failed transaction submission.
func NewSubmissionError(reason string) *WalletError {
	return &WalletError{
		Operation: "send",
		Message:   "Transaction failed: " + reason,
		Err:       ErrSubmissionFailed,
	}
}

// BackendError provides detailed information about backend API failures.
type BackendError struct {
	Endpoint   string // The endpoint path that failed
	StatusCode int    // HTTP status code, 0 when the request never completed
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}
