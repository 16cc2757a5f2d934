package transport

import (
	"crypto/sha256"
	"encoding/base64"
)

// sha256FingerprintBase64 computes a SHA-256 SPKI-style fingerprint of a
// raw leaf certificate, encoded the way HPKP-style pin configuration
// ("sha256/<base64>") is conventionally written.
func sha256FingerprintBase64(der []byte) string {
	sum := sha256.Sum256(der)
	return "sha256/" + base64.StdEncoding.EncodeToString(sum[:])
}
