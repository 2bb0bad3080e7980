package whatsapp

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/types"
)

// normalizeRecipient converts an operator-supplied phone number ("+49 171
// 1234567", "0049...", "491711234567") into a WhatsApp user JID. Everything
// except digits is stripped; the result must look like a full international
// number including country code.
func normalizeRecipient(raw string) (types.JID, error) {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	number := strings.TrimPrefix(digits.String(), "00")
	if len(number) < 8 || len(number) > 15 {
		return types.EmptyJID, fmt.Errorf("invalid phone number %q", raw)
	}

	return types.NewJID(number, types.DefaultUserServer), nil
}
