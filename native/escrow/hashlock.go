package escrow

import (
	"crypto/sha256"
	"crypto/subtle"
)

// VerifySecret reports whether the revealed secret hashes to the stored
// commitment. The hash is fixed to sha256 because the commitments this module
// settles against were produced with it; the comparison is constant-time so
// the check leaks nothing beyond what the hash itself does.
func VerifySecret(secret []byte, hashlock [32]byte) bool {
	digest := sha256.Sum256(secret)
	return subtle.ConstantTimeCompare(digest[:], hashlock[:]) == 1
}

// ComputeHashlock returns the commitment for a secret. Exposed for swap
// coordinators and tests that build schedules around a known preimage.
func ComputeHashlock(secret []byte) [32]byte {
	return sha256.Sum256(secret)
}
