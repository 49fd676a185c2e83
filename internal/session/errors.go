package session

import "errors"

var (
	ErrSessionNotFound   = errors.New("session_not_found")
	ErrSessionExists     = errors.New("session_exists")
	ErrSessionClosed     = errors.New("session_closed")
	ErrOperationActive   = errors.New("operation_already_active")
	ErrOperationInactive = errors.New("operation_not_active")
)
