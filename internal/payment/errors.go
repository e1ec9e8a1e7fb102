package payment

import "errors"

// Orchestration faults. Handlers map these to generic user-facing failures;
// the full provider context is only ever logged.
var (
	// ErrInvalidProviderResponse means order creation returned without an
	// order id or an approval URL.
	ErrInvalidProviderResponse = errors.New("invalid provider response")
	// ErrOrderIDMismatch means the capture reported a different order id
	// than the one requested. The capture is rejected outright.
	ErrOrderIDMismatch = errors.New("capture order id mismatch")
	// ErrCaptureFailed covers capture call errors and non-completed
	// capture statuses.
	ErrCaptureFailed = errors.New("capture failed")
	// ErrAuthMismatch means the principal completing the capture is not
	// the principal that created the order.
	ErrAuthMismatch = errors.New("payment belongs to a different user")
	// ErrUnknownOrder means no order with the given id was ever created here.
	ErrUnknownOrder = errors.New("unknown order")
	// ErrOrderInProgress guards against duplicate order creation from
	// double-submitted purchase actions.
	ErrOrderInProgress = errors.New("order creation already in progress")
	// ErrCaptureInProgress means another completion signal for the same
	// order is already being processed.
	ErrCaptureInProgress = errors.New("capture already in progress")
)
