package chat

import (
	"kvchat/internal/utils"
)

var (
	ErrDuplicateRoom       = utils.NewChatError("duplicate room name")
	ErrAlreadyMember       = utils.NewChatError("user already in room")
	ErrStoreUnavailable    = utils.NewChatError("store unavailable")
	ErrKeyUnavailable      = utils.NewChatError("room private key unavailable")
	ErrDecryptionIntegrity = utils.NewChatError("message failed integrity check")
	ErrRoomNotFound        = utils.NewChatError("room not found")
	ErrInvalidName         = utils.NewChatError("invalid name")
	ErrMessageNotFound     = utils.NewChatError("message not found")
	ErrMalformedValue      = utils.NewChatError("malformed store value")
	// ErrConflict is returned when a transactional update kept losing to
	// concurrent writers.
	ErrConflict = utils.NewChatError("too many concurrent updates")
)

func validateName(kind, name string) error {
	if err := utils.ValidateName(kind, name); err != nil {
		return ErrInvalidName.Wrap(err)
	}
	return nil
}
