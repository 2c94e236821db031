// Package passcrypt holds the password-based primitives for the
// client-held session envelope: key derivation, AES-CBC encryption with
// hex encodings, token generation and password strength scoring.
//
// Decrypt succeeding is not proof of the right password. CBC carries no
// authenticator, so callers must check the integrity hash embedded in
// the decrypted payload before trusting it.
package passcrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"unicode"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyLen     = 32
	saltLen    = 16
	iterations = 10000
)

// ErrDecryptFailed covers every decryption failure: bad hex, truncated
// ciphertext, or the padding error a wrong password manifests as.
// Callers treat it as "wrong password", not as a system error.
var ErrDecryptFailed = errors.New("decryption failed")

// EncryptedBlob is the hex-encoded output of Encrypt. Salt and IV are
// stored alongside the ciphertext; neither is secret.
type EncryptedBlob struct {
	Ciphertext string `json:"encrypted"`
	Salt       string `json:"salt"`
	IV         string `json:"iv"`
}

// DeriveKey derives a 32-byte AES key from a password and hex salt
// using PBKDF2-SHA256. Deterministic for the same inputs.
func DeriveKey(password, salt string) []byte {
	return pbkdf2.Key([]byte(password), []byte(salt), iterations, keyLen, sha256.New)
}

// GenerateSalt returns 16 random bytes rendered as hex.
func GenerateSalt() (string, error) {
	return randomHex(saltLen)
}

// NewSessionToken returns a 256-bit random token rendered as 64 hex chars.
func NewSessionToken() (string, error) {
	return randomHex(32)
}

// Encrypt encrypts plaintext under a fresh random salt and IV.
func Encrypt(plaintext []byte, password string) (*EncryptedBlob, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}
	return EncryptWithSalt(plaintext, password, salt)
}

// EncryptWithSalt encrypts plaintext with AES-256-CBC under a key
// derived from the given salt. A fresh random IV is always generated.
func EncryptWithSalt(plaintext []byte, password, salt string) (*EncryptedBlob, error) {
	key := DeriveKey(password, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return &EncryptedBlob{
		Ciphertext: hex.EncodeToString(ciphertext),
		Salt:       salt,
		IV:         hex.EncodeToString(iv),
	}, nil
}

// Decrypt reverses Encrypt. Any failure is reported as ErrDecryptFailed
// so callers can distinguish a wrong password from a system error.
func Decrypt(ciphertext, password, salt, ivHex string) ([]byte, error) {
	ct, err := hex.DecodeString(ciphertext)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return nil, ErrDecryptFailed
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return nil, ErrDecryptFailed
	}

	key := DeriveKey(password, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrDecryptFailed
	}

	plaintext := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ct)

	unpadded, ok := pkcs7Unpad(plaintext, aes.BlockSize)
	if !ok {
		return nil, ErrDecryptFailed
	}
	return unpadded, nil
}

// StrengthResult is advisory UX feedback on a candidate password. The
// hard gate is IsValid; the score only drives the strength meter.
type StrengthResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
	Score   float64  `json:"score"`
}

// ValidateStrength checks the three hard requirements (length >= 6, at
// least one letter, at least one digit) and scores up to 5 with bonuses
// for mixed case, symbols and extra length.
func ValidateStrength(password string) StrengthResult {
	var errs []string
	var score float64

	if len(password) < 6 {
		errs = append(errs, "password must be at least 6 characters")
	} else {
		score++
	}

	hasLetter := strings.ContainsFunc(password, unicode.IsLetter)
	if !hasLetter {
		errs = append(errs, "password must contain letters")
	} else {
		score++
	}

	hasDigit := strings.ContainsFunc(password, unicode.IsDigit)
	if !hasDigit {
		errs = append(errs, "password must contain digits")
	} else {
		score++
	}

	if strings.ContainsFunc(password, unicode.IsUpper) {
		score += 0.5
	}
	if strings.ContainsFunc(password, unicode.IsLower) {
		score += 0.5
	}
	if strings.ContainsAny(password, `!@#$%^&*(),.?":{}|<>`) {
		score++
	}
	if len(password) >= 8 {
		score += 0.5
	}
	if len(password) >= 12 {
		score += 0.5
	}
	if score > 5 {
		score = 5
	}

	return StrengthResult{
		IsValid: len(errs) == 0,
		Errors:  errs,
		Score:   score,
	}
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, false
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, false
		}
	}
	return data[:len(data)-n], true
}
