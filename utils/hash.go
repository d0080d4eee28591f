package utils

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MD5Hex returns the lowercase hex MD5 digest of s. Used for deterministic
// cache keys, not for anything security-sensitive.
func MD5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashOperatorKey produces the bcrypt hash stored in OPERATOR_KEY_HASH.
func HashOperatorKey(key string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash operator key: %v", err)
	}
	return string(hashed), nil
}

// CheckOperatorKey reports whether key matches the configured bcrypt hash.
func CheckOperatorKey(key, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
	return err == nil
}
