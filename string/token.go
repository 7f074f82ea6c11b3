package string

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// NoToken is what MaskToken and Fingerprint render for an absent credential.
const NoToken = "<none>"

// Fingerprint returns a short stable identifier for a credential so that log
// lines about the same token can be correlated without printing the token.
func Fingerprint(token string) string {
	return strconv.FormatUint(xxhash.Sum64String(token), 16)
}

// FingerprintPtr is Fingerprint for an optional credential.
func FingerprintPtr(token *string) string {
	if token == nil {
		return NoToken
	}
	return Fingerprint(*token)
}

// MaskToken masks an optional credential for display.
func MaskToken(token *string) string {
	if token == nil {
		return NoToken
	}
	return Mask(*token)
}
