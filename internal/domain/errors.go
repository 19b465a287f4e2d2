package domain

import "errors"

var (
	ErrShuttingDown      = errors.New("server is shutting down")
	ErrAtCapacity        = errors.New("server at capacity")
	ErrBrokerUnavailable = errors.New("broker unavailable")
	ErrConnectionClosed  = errors.New("connection closed")
)
