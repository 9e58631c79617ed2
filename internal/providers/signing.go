package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"strings"
)

func hmacHex(newHash func() hash.Hash, key, data string) string {
	mac := hmac.New(newHash, []byte(key))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func hmacSHA256Hex(key, data string) string { return hmacHex(sha256.New, key, data) }

func hmacSHA512Hex(key, data string) string { return hmacHex(sha512.New, key, data) }

// signatureMatches compares hex digests in constant time, ignoring case.
func signatureMatches(expected, got string) bool {
	if got == "" {
		return false
	}
	return hmac.Equal([]byte(strings.ToLower(expected)), []byte(strings.ToLower(got)))
}

// keyedSignatureMatches is signatureMatches for a digest computed under key. An unset key
// never matches, so a provider without a configured secret rejects every callback.
func keyedSignatureMatches(key, expected, got string) bool {
	return key != "" && signatureMatches(expected, got)
}
