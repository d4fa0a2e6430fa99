package client

import "kvchat/internal/utils"

var (
	ErrSendMessageFailed = utils.NewChatError("send message failed")
	ErrNotLoggedIn       = utils.NewChatError("not logged in")
	ErrNoRoom            = utils.NewChatError("no room open")
	ErrNotApproved       = utils.NewChatError("not approved in this room yet")
	ErrNoPendingUser     = utils.NewChatError("no such user waiting in this room")
)
