package chat

import "errors"

// Connection errors
var (
	ErrConnClosed   = errors.New("connection closed")
	ErrWriteTimeout = errors.New("write timeout")
)

// Registry errors
var (
	ErrNilConn      = errors.New("connection cannot be nil")
	ErrNotConnected = errors.New("user has no live connection")
)
