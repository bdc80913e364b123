package apperror

import "errors"

var (
	ErrRoomFull         = errors.New("room is already full")
	ErrRoomNotFound     = errors.New("room not found")
	ErrPlayerNotFound   = errors.New("player not found")
	ErrNoOpponent       = errors.New("player has no opponent")
	ErrNotInRoom        = errors.New("player is not in a room")
	ErrConnectionClosed = errors.New("connection is closed")
	ErrHeartbeatTimeout = errors.New("heartbeat timed out")
)
