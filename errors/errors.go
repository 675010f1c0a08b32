package errors

import "fmt"

var (
	ErrNotConnected     = fmt.Errorf("channel not connected")
	ErrEmptyContent     = fmt.Errorf("message content is empty")
	ErrRetriesExhausted = fmt.Errorf("retry budget exhausted")
	ErrMalformedEvent   = fmt.Errorf("malformed stream event")
	ErrSessionClosed    = fmt.Errorf("session closed")
)
