package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
	"unicode"
)

const (
	oneShotTokenBytes = 32
	twoFactorDigits   = 6
)

// generateOneShotToken devuelve un token URL-safe de 256 bits.
func generateOneShotToken() (string, error) {
	buf := make([]byte, oneShotTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// hashOneShotToken es lo que se persiste; el valor en claro solo viaja por email.
func hashOneShotToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}

func generateTwoFactorCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// hashTwoFactorCode liga el codigo a la cuenta para que no sirva en otra.
func hashTwoFactorCode(accountID, code string) string {
	digest := sha256.Sum256([]byte(accountID + ":" + code))
	return hex.EncodeToString(digest[:])
}

func isValidTwoFactorCode(code string) bool {
	if len(code) != twoFactorDigits {
		return false
	}
	for _, r := range code {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func expired(expiresAt *time.Time, now time.Time) bool {
	return expiresAt == nil || !now.Before(*expiresAt)
}
