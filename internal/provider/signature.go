package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the callback authentication signature.
const SignatureHeader = "X-Callback-Signature"

// Sign computes the hex HMAC-SHA256 of the job reference under the job's
// callback secret. The provider sends this value in SignatureHeader.
func Sign(jobID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(jobID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a presented signature in constant time.
func VerifySignature(jobID, secret, signature string) bool {
	expected := Sign(jobID, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
