package transient

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Error An infrastructure dependency (registry, cluster API, object store) was unavailable.
// Retrying the same operation later may succeed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: infrastructure unavailable: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap Marks err as transient for the operation op
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// Is Reports whether any error in the chain is transient
func Is(err error) bool {
	var transientErr *Error
	return errors.As(err, &transientErr)
}

// RetryableStatus Status codes worth retrying: throttling and server side failures
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// IsNetworkError Reports whether the chain contains a network level failure
func IsNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}
