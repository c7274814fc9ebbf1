// internal/utils/crypto.go
package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashBytes returns the hex SHA-256 digest stored alongside licence
// documents.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func ValidateFileHash(fileData []byte, expectedHash string) bool {
	return HashBytes(fileData) == expectedHash
}
