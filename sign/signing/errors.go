package signing

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package wraps exactly one
// of these, so callers can classify failures with errors.Is without
// matching message text.
var (
	// ErrConfiguration reports misuse of the registration surface,
	// such as adding a signer after a pass has started.
	ErrConfiguration = errors.New("signing configuration error")

	// ErrSizing reports final signature bytes exceeding the reserved
	// placeholder region. The file cannot grow at that stage.
	ErrSizing = errors.New("signature sizing error")

	// ErrIO reports a device seek, read, or write failure during save,
	// digest feeding, or patching.
	ErrIO = errors.New("signing I/O error")

	// ErrProtocol reports a broken two-phase contract, such as
	// finishing with a result set that does not match the started one.
	ErrProtocol = errors.New("signing protocol error")

	// ErrCapability reports a signer that cannot provide something the
	// selected workflow requires.
	ErrCapability = errors.New("signer capability error")
)

// Specific failures, pre-wrapped with their kind.
var (
	ErrAlreadyStarted    = fmt.Errorf("%w: signing pass already started", ErrConfiguration)
	ErrNoSigners         = fmt.Errorf("%w: no signers registered", ErrConfiguration)
	ErrNilSignature      = fmt.Errorf("%w: nil signature", ErrConfiguration)
	ErrNilSigner         = fmt.Errorf("%w: nil signer", ErrConfiguration)
	ErrContextConsumed   = fmt.Errorf("%w: signing context already consumed", ErrConfiguration)
	ErrNilSession        = fmt.Errorf("%w: nil signing session", ErrProtocol)
	ErrForeignSession    = fmt.Errorf("%w: session belongs to a different signing context", ErrProtocol)
	ErrSessionFinished   = fmt.Errorf("%w: signing session already finished", ErrProtocol)
	ErrResultSetMismatch = fmt.Errorf("%w: processed results do not match the started signer set", ErrProtocol)
)

// ioError wraps a device failure with the I/O kind.
func ioError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrIO, op, err)
}
