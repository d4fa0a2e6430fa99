package storage

import "kvchat/internal/utils"

var (
	ErrNoRows         = utils.NewChatError("no rows in result set")
	ErrDBNotConnected = utils.NewChatError("history database not connected")
	ErrQueueFull      = utils.NewChatError("history write queue full")
	ErrStopped        = utils.NewChatError("history writer stopped")
)
