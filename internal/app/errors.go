package app

import "errors"

// Caller errors: reported back on the request that caused them, never
// fatal for the process or for other peers.
var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrPeerNotFound      = errors.New("peer not found")
	ErrTransportNotFound = errors.New("transport not found")
	ErrConsumerNotFound  = errors.New("consumer not found")
	ErrCannotConsume     = errors.New("cannot consume")
)
