package routeros

import (
	"errors"
	"fmt"
	"net"
)

// Error taxonomy for router calls. Callers branch on these with errors.Is /
// errors.As; the sync and status layers each react differently to timeouts,
// dead links and device-side rejections.
var (
	// ErrConnection means the router could not be reached or the session died.
	ErrConnection = errors.New("router unreachable")
	// ErrAuth means the router refused the login credentials.
	ErrAuth = errors.New("router rejected credentials")
	// ErrTimeout means the call exceeded its deadline. The device may still be
	// alive and processing; the session is torn down either way.
	ErrTimeout = errors.New("router call timed out")
	// ErrProtocol means a reply could not be decoded as valid API framing.
	ErrProtocol = errors.New("malformed router reply")
)

// TrapError is a device-side rejection (!trap): the router understood the
// request and refused it, e.g. a duplicate name or an invalid attribute.
type TrapError struct {
	Message string
}

func (e *TrapError) Error() string {
	return fmt.Sprintf("router rejected operation: %s", e.Message)
}

// classify maps raw transport errors onto the taxonomy. Errors that already
// carry a taxonomy sentinel pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConnection) || errors.Is(err, ErrAuth) ||
		errors.Is(err, ErrTimeout) || errors.Is(err, ErrProtocol) {
		return err
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%v: %w", err, ErrTimeout)
	}

	return fmt.Errorf("%v: %w", err, ErrConnection)
}
