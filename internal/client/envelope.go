package client

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SessionData is the plaintext of the encrypted session envelope.
type SessionData struct {
	UserID        int64  `json:"userId"`
	PlatformID    string `json:"platformId"`
	SessionToken  string `json:"sessionToken"`
	ExpiresAt     int64  `json:"expiresAt"` // unix milliseconds
	IntegrityHash string `json:"integrityHash"`
}

// StoredEnvelope is what actually sits in client storage: the
// ciphertext plus the non-secret salt, IV and freshness timestamp.
type StoredEnvelope struct {
	Encrypted    string `json:"encrypted"`
	Salt         string `json:"salt"`
	IV           string `json:"iv"`
	LastActiveAt int64  `json:"lastActiveAt"` // unix milliseconds
}

// IntegrityHash binds the envelope to one identity. It is recomputed
// after decryption; a mismatch means the wrong password produced
// parseable garbage, or the envelope was corrupted.
func IntegrityHash(userID int64, platformID string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s", userID, platformID)))
	return hex.EncodeToString(sum[:])
}

// CheckIntegrity reports whether the decrypted payload matches its own
// embedded hash.
func (d *SessionData) CheckIntegrity() bool {
	return d.IntegrityHash == IntegrityHash(d.UserID, d.PlatformID)
}
