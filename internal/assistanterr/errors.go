// Package assistanterr defines the error taxonomy shared across the audio
// session core. Components wrap one of these sentinels with fmt.Errorf's
// %w verb so callers can classify failures with errors.Is regardless of
// which component raised them.
package assistanterr

import "errors"

// Sentinel error kinds. These are taxonomy markers, not exhaustive error
// values — components attach operation-specific context via Error.
var (
	// ErrNotReady means an operation was invoked before the owning
	// component was initialized (programmer error).
	ErrNotReady = errors.New("assistanterr: not ready")

	// ErrInvalidArgument means a caller passed a nil buffer, a zero
	// length where disallowed, a misaligned sample count, or a
	// volume outside 0..100.
	ErrInvalidArgument = errors.New("assistanterr: invalid argument")

	// ErrFull means a drop-on-full push could not fit its payload.
	// Recoverable; callers log and continue.
	ErrFull = errors.New("assistanterr: ring full")

	// ErrTimeout means a blocking ring pop, transport send, or
	// shutdown wait expired before completing.
	ErrTimeout = errors.New("assistanterr: timeout")

	// ErrNotConnected means a transport send was attempted while
	// disconnected.
	ErrNotConnected = errors.New("assistanterr: not connected")

	// ErrDecode means a text control frame failed to parse as JSON.
	// Always logged and ignored, never propagated to the pipeline.
	ErrDecode = errors.New("assistanterr: decode error")

	// ErrProtocol means an unexpected wire opcode was received.
	ErrProtocol = errors.New("assistanterr: protocol error")

	// ErrFatal means an unrecoverable driver/allocation failure.
	// Propagates to the assistant Error state.
	ErrFatal = errors.New("assistanterr: fatal")
)

// Error wraps a taxonomy sentinel with the operation and component that
// raised it, so logs can say exactly where a Full or Timeout came from.
type Error struct {
	Op  string // e.g. "ring.Push", "transport.SendAudio"
	Kind error  // one of the sentinels above
	Err error  // underlying cause, if any; may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Kind.Error()
}

func (e *Error) Unwrap() error { return e.Kind }

// New builds an *Error for op/kind with no further detail.
func New(op string, kind error) *Error {
	return &Error{Op: op, Kind: kind}
}

// Wrap builds an *Error for op/kind around an underlying cause.
func Wrap(op string, kind error, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}
