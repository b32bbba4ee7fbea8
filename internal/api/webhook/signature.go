package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const SignatureHeader = "X-Hub-Signature-256"

var (
	ErrSignatureFormat   = errors.New("invalid signature format: missing sha256= prefix")
	ErrSignatureMismatch = errors.New("signature verification failed")
)

// VerifySignature verifies the Meta webhook signature
// The signature is in the format: sha256=<hex_signature>
func VerifySignature(signature string, payload []byte, appSecret string) error {
	expectedSig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return ErrSignatureFormat
	}

	if !hmac.Equal([]byte(expectedSig), []byte(Sign(payload, appSecret))) {
		return ErrSignatureMismatch
	}

	return nil
}

// Sign returns the hex HMAC-SHA256 of payload, as Meta computes it.
func Sign(payload []byte, appSecret string) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
