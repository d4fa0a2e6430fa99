package profile

import (
	"kvchat/internal/utils"
)

var (
	ErrProfileNotFound = utils.NewChatError("profile not found")
	ErrInvalidPassword = utils.NewChatError("invalid password")
	ErrKeyNotFound     = utils.NewChatError("key not found")
	ErrCorruptKey      = utils.NewChatError("corrupt key file")
)
