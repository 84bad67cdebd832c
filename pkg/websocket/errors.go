package websocket

import "errors"

// ErrConnectionClosed is returned for operations on a closed connection.
var ErrConnectionClosed = errors.New("websocket: connection closed")
