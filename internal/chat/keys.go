package chat

import (
	"encoding/hex"
	"strconv"
	"strings"
)

const (
	roomsKey      = "meta/chatrooms"
	listSeparator = "/"
)

// grantSentinel fills a joiner's encrypted private key slot until an
// approver overwrites it.
var grantSentinel = hex.EncodeToString([]byte("NULL"))

func metaKey(parts ...string) string {
	return "meta/" + strings.Join(parts, "/")
}

func membersKey(room string) string       { return metaKey(room, "members") }
func numMembersKey(room string) string    { return metaKey(room, "num_members") }
func numMessagesKey(room string) string   { return metaKey(room, "num_messages") }
func roomPublicKeyKey(room string) string { return metaKey(room, "public_key") }

func userPublicKeyKey(room, user string) string {
	return metaKey(room, user, "public_key")
}

func userEncryptedPrivateKeyKey(room, user string) string {
	return metaKey(room, user, "encrypted_private_key")
}

func userEncryptedAESKeyKey(room, user string) string {
	return metaKey(room, user, "encrypted_aes_key")
}

func messageKey(room string, index int) string {
	return "chats/" + room + "/" + strconv.Itoa(index)
}

func messageAESKeyKey(room string, index int) string {
	return messageKey(room, index) + "/encrypted_aes_key"
}

func messageAuthorKey(room string, index int) string {
	return messageKey(room, index) + "/author"
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, listSeparator)
}

func joinList(items []string) string {
	return strings.Join(items, listSeparator)
}

// parseCount reads a decimal counter; an absent key counts as zero.
func parseCount(key, raw string, present bool) (int, error) {
	if !present || raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, ErrMalformedValue.WithDetails(key + "=" + raw)
	}
	return n, nil
}

func decodeHex(key, raw string) ([]byte, error) {
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, ErrMalformedValue.WithDetails(key).Wrap(err)
	}
	return b, nil
}

func hexString(b []byte) string {
	return hex.EncodeToString(b)
}
