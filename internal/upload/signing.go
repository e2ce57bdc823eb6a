package upload

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the hex-encoded HMAC-SHA256 of body under secret, the
// value transmitted in the X-Signature header. The upload path signs the
// whole request body, which is a canonical JSON array even for a
// single-item batch, so the header carries the HMAC of the array bytes;
// it differs from the HMAC of any one item's canonical JSON.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
