package realtime

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("realtime: no credential available")
	ErrTransport       = errors.New("realtime: transport failure")
	ErrParse           = errors.New("realtime: malformed inbound frame")
	ErrNotConnected    = errors.New("realtime: not connected")
)

// SubscriberError reports a handler that returned an error or panicked during dispatch.
type SubscriberError struct {
	EventType string
	Err       error
}

func (e *SubscriberError) Error() string {
	return fmt.Sprintf("realtime: handler for %q failed: %v", e.EventType, e.Err)
}

func (e *SubscriberError) Unwrap() error {
	return e.Err
}
