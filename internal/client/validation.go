package client

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"kvchat/internal/utils"
)

// MaxMessageLength bounds a single message in bytes.
const MaxMessageLength = 16 * 1024

// approvePrefix starts a line that approves a pending member instead of
// being sent: "!bob".
const approvePrefix = "!"

// parseApproval reports the candidate named by an approval line.
func parseApproval(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, approvePrefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, approvePrefix)), true
}

func validateMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return utils.ValidationError("message cannot be empty")
	}
	if len(text) > MaxMessageLength {
		return utils.ValidationError(fmt.Sprintf("message exceeds maximum length of %d bytes", MaxMessageLength))
	}
	if !utf8.ValidString(text) {
		return utils.ValidationError("message is not valid UTF-8")
	}
	return nil
}
