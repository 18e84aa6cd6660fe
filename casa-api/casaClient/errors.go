package casaClient

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSession is returned when the client has no http transport to use.
	ErrNoSession         = errors.New("casa client has no http session")
	ErrLoginFailed       = errors.New("login rejected by device")
	ErrBadStatus         = errors.New("unexpected http status")
	ErrDisconnected      = errors.New("device closed the connection")
	ErrMalformedResponse = errors.New("malformed device response")
	ErrPollerStopped     = errors.New("poller stopped")
)

type StatusError struct {
	Path       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("POST %s returned status %d", e.Path, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return ErrBadStatus
}
