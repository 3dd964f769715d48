package cloudapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifySignature checks the X-Hub-Signature-256 header against an
// HMAC-SHA256 of the raw body under the app secret. Constant-time compare.
func VerifySignature(appSecret string, body []byte, header string) bool {
	provided, ok := strings.CutPrefix(header, "sha256=")
	if !ok || provided == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(provided))
}

// VerifyChallenge implements the GET handshake: token match echoes the
// challenge back, anything else is rejected.
func VerifyChallenge(configuredToken, mode, token, challenge string) (string, bool) {
	if mode != "subscribe" || configuredToken == "" || token != configuredToken {
		return "", false
	}
	return challenge, true
}
