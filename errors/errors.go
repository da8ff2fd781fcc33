package errors

import "fmt"

var (
	ErrInvalidCredential = fmt.Errorf("invalid credential")
	ErrRoomNotFound      = fmt.Errorf("room not found")
	ErrMalformedFrame    = fmt.Errorf("malformed frame")
	ErrContentTooLong    = fmt.Errorf("content exceeds maximum length")
	ErrEmptyWords        = fmt.Errorf("no words have been found")
	ErrNotConnected      = fmt.Errorf("broker is not connected")
)
