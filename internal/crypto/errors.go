package crypto

import "kvchat/internal/utils"

var (
	ErrEncryptionFailed  = utils.NewChatError("encryption failed")
	ErrPlaintextTooLarge = utils.NewChatError("plaintext exceeds asymmetric block size")
	ErrDecryption        = utils.NewChatError("asymmetric decryption failed")
	ErrIntegrity         = utils.NewChatError("ciphertext failed authentication")
	ErrBadKey            = utils.NewChatError("invalid key provided")
	ErrUnknownScheme     = utils.NewChatError("unknown key scheme")
)
